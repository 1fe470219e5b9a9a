// Package plan builds dependency-ordered execution plans for evaluation workflows.
package plan

import (
	"log/slog"
	"sort"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
)

// DefaultTaskDuration is assumed for task types without an estimate.
const DefaultTaskDuration = 30 * time.Second

// Builder turns a requested task set plus a dependency table into a layered
// execution plan. Builders are stateless apart from optional optimization
// strategies and safe for concurrent use.
type Builder struct {
	strategies []OptimizationStrategy
	logger     *slog.Logger
}

func NewBuilder(logger *slog.Logger, strategies ...OptimizationStrategy) *Builder {
	return &Builder{
		strategies: strategies,
		logger:     logger.With("module", "plan_builder"),
	}
}

// Build validates the table, detects cycles, and layers the tasks into
// execution groups with maximum legal parallelism (grouped Kahn's algorithm).
func (b *Builder) Build(specs []models.TaskSpec) (*models.DependencyGraph, error) {
	requested := make(map[models.TaskType]models.TaskSpec, len(specs))
	for _, spec := range specs {
		requested[spec.Type] = spec
	}

	for _, spec := range specs {
		for _, edge := range spec.DependsOn {
			if _, ok := requested[edge.On]; !ok {
				return nil, &ConfigurationError{Task: spec.Type, Dependency: edge.On}
			}
		}
	}

	if cycle := findCycle(specs); cycle != nil {
		return nil, &CyclicDependencyError{Cycle: cycle}
	}

	graph := layer(specs)
	graph.CriticalPath = criticalPath(graph)

	for _, strategy := range b.strategies {
		optimized, ok := strategy.Optimize(specs, graph)
		if !ok {
			continue
		}

		b.logger.Debug("Accepted plan optimization",
			"strategy", strategy.Name(),
			"estimated_total", optimized.EstimatedTotal,
			"previous_total", graph.EstimatedTotal)

		graph = optimized
	}

	return graph, nil
}

// findCycle runs a depth-first search with recursion-stack tracking and
// returns the offending path, or nil for acyclic tables.
func findCycle(specs []models.TaskSpec) []models.TaskType {
	table := make(map[models.TaskType][]models.DependencyEdge, len(specs))
	for _, spec := range specs {
		table[spec.Type] = spec.DependsOn
	}

	visited := make(map[models.TaskType]bool)
	inStack := make(map[models.TaskType]bool)

	var path []models.TaskType

	var visit func(t models.TaskType) []models.TaskType

	visit = func(t models.TaskType) []models.TaskType {
		visited[t] = true
		inStack[t] = true
		path = append(path, t)

		for _, edge := range table[t] {
			if inStack[edge.On] {
				return append(path, edge.On)
			}

			if !visited[edge.On] {
				if cycle := visit(edge.On); cycle != nil {
					return cycle
				}
			}
		}

		inStack[t] = false
		path = path[:len(path)-1]

		return nil
	}

	for _, spec := range sortedSpecs(specs) {
		if !visited[spec.Type] {
			if cycle := visit(spec.Type); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

// layer runs grouped-BFS Kahn layering: each round extracts every
// zero-in-degree unvisited node as one execution group.
func layer(specs []models.TaskSpec) *models.DependencyGraph {
	nodes := make(map[models.TaskType]*models.DependencyNode, len(specs))

	for _, spec := range specs {
		duration := spec.EstimatedDuration
		if duration <= 0 {
			duration = DefaultTaskDuration
		}

		nodes[spec.Type] = &models.DependencyNode{
			Type:              spec.Type,
			Dependencies:      spec.DependsOn,
			EstimatedDuration: duration,
			ConsumesKeys:      spec.ConsumesKeys,
			ProducesKeys:      spec.ProducesKeys,
		}
	}

	inDegree := make(map[models.TaskType]int, len(nodes))

	for _, spec := range specs {
		inDegree[spec.Type] = len(spec.DependsOn)

		for _, edge := range spec.DependsOn {
			nodes[edge.On].Dependents = append(nodes[edge.On].Dependents, spec.Type)
		}
	}

	var (
		groups         [][]models.TaskType
		total          time.Duration
		maxParallelism int
	)

	remaining := len(nodes)

	for remaining > 0 {
		var group []models.TaskType

		for _, spec := range sortedSpecs(specs) {
			if degree, ok := inDegree[spec.Type]; ok && degree == 0 {
				group = append(group, spec.Type)
			}
		}

		var groupMax time.Duration

		for _, taskType := range group {
			node := nodes[taskType]
			node.GroupIndex = len(groups)
			node.Parallelizable = len(group) > 1

			if node.EstimatedDuration > groupMax {
				groupMax = node.EstimatedDuration
			}

			delete(inDegree, taskType)

			for _, dependent := range node.Dependents {
				if _, ok := inDegree[dependent]; ok {
					inDegree[dependent]--
				}
			}
		}

		// The group runs in parallel, so it costs as much as its slowest member.
		total += groupMax

		if len(group) > maxParallelism {
			maxParallelism = len(group)
		}

		groups = append(groups, group)
		remaining -= len(group)
	}

	return &models.DependencyGraph{
		Nodes:          nodes,
		Groups:         groups,
		EstimatedTotal: total,
		MaxParallelism: maxParallelism,
	}
}

// criticalPath finds the dependency chain with the largest cumulative
// duration: path time is computed recursively per node, then the path is
// reconstructed greedily by always following the slowest dependency.
func criticalPath(graph *models.DependencyGraph) []models.TaskType {
	pathTime := make(map[models.TaskType]time.Duration, len(graph.Nodes))

	var timeOf func(t models.TaskType) time.Duration

	timeOf = func(t models.TaskType) time.Duration {
		if cached, ok := pathTime[t]; ok {
			return cached
		}

		node := graph.Nodes[t]

		var longest time.Duration

		for _, edge := range node.Dependencies {
			if dep := timeOf(edge.On); dep > longest {
				longest = dep
			}
		}

		pathTime[t] = longest + node.EstimatedDuration

		return pathTime[t]
	}

	var end models.TaskType

	var endTime time.Duration

	for taskType := range graph.Nodes {
		if t := timeOf(taskType); t > endTime || (t == endTime && (end == "" || taskType < end)) {
			end = taskType
			endTime = t
		}
	}

	if end == "" {
		return nil
	}

	var reversed []models.TaskType

	current := end
	for {
		reversed = append(reversed, current)

		node := graph.Nodes[current]
		if len(node.Dependencies) == 0 {
			break
		}

		var next models.TaskType

		var nextTime time.Duration

		for _, edge := range node.Dependencies {
			if t := pathTime[edge.On]; t > nextTime || (t == nextTime && (next == "" || edge.On < next)) {
				next = edge.On
				nextTime = t
			}
		}

		current = next
	}

	path := make([]models.TaskType, len(reversed))
	for i, taskType := range reversed {
		path[len(reversed)-1-i] = taskType
	}

	return path
}

// sortedSpecs gives a deterministic iteration order so repeated builds of the
// same definition yield identical plans.
func sortedSpecs(specs []models.TaskSpec) []models.TaskSpec {
	sorted := make([]models.TaskSpec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })

	return sorted
}
