package plan

import "github.com/evalforge/evalforge/pkg/models"

// OptimizationStrategy proposes an alternative layering of the same task set.
// A proposal is accepted only when it reduces the estimated total without
// touching required edges; strategies signal rejection by returning ok=false.
type OptimizationStrategy interface {
	Name() string
	Optimize(specs []models.TaskSpec, current *models.DependencyGraph) (*models.DependencyGraph, bool)
}

// RelaxOptionalEdges re-layers the plan with every optional dependency edge
// removed. Optional edges are best-effort data enrichment, so dropping them
// from the schedule is always legal; the relaxed plan is kept only when it is
// actually faster.
type RelaxOptionalEdges struct{}

func (RelaxOptionalEdges) Name() string { return "relax-optional-edges" }

func (RelaxOptionalEdges) Optimize(specs []models.TaskSpec, current *models.DependencyGraph) (*models.DependencyGraph, bool) {
	relaxed := make([]models.TaskSpec, 0, len(specs))
	removed := false

	for _, spec := range specs {
		var required []models.DependencyEdge

		for _, edge := range spec.DependsOn {
			if edge.Optional {
				removed = true

				continue
			}

			required = append(required, edge)
		}

		spec.DependsOn = required
		relaxed = append(relaxed, spec)
	}

	if !removed {
		return nil, false
	}

	candidate := layer(relaxed)
	if candidate.EstimatedTotal >= current.EstimatedTotal {
		return nil, false
	}

	candidate.CriticalPath = criticalPath(candidate)

	return candidate, true
}
