package models

import "time"

// DependencyNode is the per-task-type view of a built execution plan.
// Nodes are derived per plan request and never persisted.
type DependencyNode struct {
	Type              TaskType         `json:"type"`
	Dependencies      []DependencyEdge `json:"dependencies,omitempty"`
	Dependents        []TaskType       `json:"dependents,omitempty"`
	GroupIndex        int              `json:"group_index"`
	Parallelizable    bool             `json:"parallelizable"`
	EstimatedDuration time.Duration    `json:"estimated_duration"`
	ConsumesKeys      []string         `json:"consumes_keys,omitempty"`
	ProducesKeys      []string         `json:"produces_keys,omitempty"`
}

// DependencyGraph is one workflow execution's plan: layered execution groups
// with maximum legal parallelism per layer. Built once, read-only afterwards.
type DependencyGraph struct {
	Nodes          map[TaskType]*DependencyNode `json:"nodes"`
	Groups         [][]TaskType                 `json:"groups"`
	EstimatedTotal time.Duration                `json:"estimated_total"`
	MaxParallelism int                          `json:"max_parallelism"`
	CriticalPath   []TaskType                   `json:"critical_path"`
}

// RequiredDependencies returns the non-optional inbound edges of a node.
func (n *DependencyNode) RequiredDependencies() []TaskType {
	var required []TaskType

	for _, edge := range n.Dependencies {
		if !edge.Optional {
			required = append(required, edge.On)
		}
	}

	return required
}
