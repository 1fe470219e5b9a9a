package plan

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func edge(on models.TaskType) models.DependencyEdge {
	return models.DependencyEdge{On: on}
}

func optionalEdge(on models.TaskType) models.DependencyEdge {
	return models.DependencyEdge{On: on, Optional: true}
}

func TestBuild_LayersIndependentTasksIntoOneGroup(t *testing.T) {
	builder := NewBuilder(testLogger())

	graph, err := builder.Build([]models.TaskSpec{
		{Type: models.TaskMarketResearch, EstimatedDuration: 10 * time.Second},
		{Type: models.TaskCompetitiveAnalysis, EstimatedDuration: 20 * time.Second},
		{Type: models.TaskFinancialAnalysis, EstimatedDuration: 15 * time.Second},
	})
	require.NoError(t, err)

	require.Len(t, graph.Groups, 1)
	assert.Len(t, graph.Groups[0], 3)
	assert.Equal(t, 3, graph.MaxParallelism)
	// The group costs as much as its slowest member.
	assert.Equal(t, 20*time.Second, graph.EstimatedTotal)

	for _, node := range graph.Nodes {
		assert.True(t, node.Parallelizable)
		assert.Equal(t, 0, node.GroupIndex)
	}
}

func TestBuild_LayersDiamondDependency(t *testing.T) {
	builder := NewBuilder(testLogger())

	graph, err := builder.Build([]models.TaskSpec{
		{Type: models.TaskMarketResearch, EstimatedDuration: 10 * time.Second},
		{
			Type:              models.TaskCompetitiveAnalysis,
			DependsOn:         []models.DependencyEdge{edge(models.TaskMarketResearch)},
			EstimatedDuration: 20 * time.Second,
		},
		{
			Type:              models.TaskCustomerSegments,
			DependsOn:         []models.DependencyEdge{edge(models.TaskMarketResearch)},
			EstimatedDuration: 30 * time.Second,
		},
		{
			Type: models.TaskSynthesis,
			DependsOn: []models.DependencyEdge{
				edge(models.TaskCompetitiveAnalysis),
				edge(models.TaskCustomerSegments),
			},
			EstimatedDuration: 5 * time.Second,
		},
	})
	require.NoError(t, err)

	require.Len(t, graph.Groups, 3)
	assert.Equal(t, []models.TaskType{models.TaskMarketResearch}, graph.Groups[0])
	assert.ElementsMatch(t,
		[]models.TaskType{models.TaskCompetitiveAnalysis, models.TaskCustomerSegments},
		graph.Groups[1])
	assert.Equal(t, []models.TaskType{models.TaskSynthesis}, graph.Groups[2])

	assert.Equal(t, 2, graph.MaxParallelism)
	assert.Equal(t, 45*time.Second, graph.EstimatedTotal)

	assert.False(t, graph.Nodes[models.TaskSynthesis].Parallelizable)
	assert.Equal(t, 2, graph.Nodes[models.TaskSynthesis].GroupIndex)
}

func TestBuild_GroupsCoverEveryTaskExactlyOnce(t *testing.T) {
	builder := NewBuilder(testLogger())

	specs := []models.TaskSpec{
		{Type: models.TaskMarketResearch},
		{Type: models.TaskFinancialAnalysis},
		{Type: models.TaskRiskAssessment, DependsOn: []models.DependencyEdge{edge(models.TaskFinancialAnalysis)}},
		{Type: models.TaskTeamEvaluation},
		{Type: models.TaskSynthesis, DependsOn: []models.DependencyEdge{
			edge(models.TaskMarketResearch),
			edge(models.TaskRiskAssessment),
		}},
	}

	graph, err := builder.Build(specs)
	require.NoError(t, err)

	seen := make(map[models.TaskType]int)
	for _, group := range graph.Groups {
		for _, taskType := range group {
			seen[taskType]++
		}
	}

	require.Len(t, seen, len(specs))

	for _, spec := range specs {
		assert.Equal(t, 1, seen[spec.Type], "task %s", spec.Type)
	}
}

func TestBuild_DeterministicAcrossRepeatedBuilds(t *testing.T) {
	builder := NewBuilder(testLogger())

	specs := []models.TaskSpec{
		{Type: models.TaskTeamEvaluation},
		{Type: models.TaskMarketResearch},
		{Type: models.TaskProductAnalysis},
		{Type: models.TaskSynthesis, DependsOn: []models.DependencyEdge{
			edge(models.TaskMarketResearch),
			edge(models.TaskProductAnalysis),
		}},
	}

	first, err := builder.Build(specs)
	require.NoError(t, err)

	for range 10 {
		again, err := builder.Build(specs)
		require.NoError(t, err)
		assert.Equal(t, first.Groups, again.Groups)
		assert.Equal(t, first.CriticalPath, again.CriticalPath)
	}
}

func TestBuild_RejectsUnknownDependency(t *testing.T) {
	builder := NewBuilder(testLogger())

	_, err := builder.Build([]models.TaskSpec{
		{Type: models.TaskSynthesis, DependsOn: []models.DependencyEdge{edge(models.TaskMarketResearch)}},
	})

	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	var confErr *ConfigurationError

	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, models.TaskSynthesis, confErr.Task)
	assert.Equal(t, models.TaskMarketResearch, confErr.Dependency)
}

func TestBuild_DetectsCycleWithPath(t *testing.T) {
	builder := NewBuilder(testLogger())

	_, err := builder.Build([]models.TaskSpec{
		{Type: models.TaskMarketResearch, DependsOn: []models.DependencyEdge{edge(models.TaskSynthesis)}},
		{Type: models.TaskCompetitiveAnalysis, DependsOn: []models.DependencyEdge{edge(models.TaskMarketResearch)}},
		{Type: models.TaskSynthesis, DependsOn: []models.DependencyEdge{edge(models.TaskCompetitiveAnalysis)}},
	})

	require.Error(t, err)
	assert.True(t, IsCyclicDependencyError(err))

	var cycleErr *CyclicDependencyError

	require.ErrorAs(t, err, &cycleErr)
	// The reported path ends where it started.
	require.GreaterOrEqual(t, len(cycleErr.Cycle), 2)
	assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1])
}

func TestBuild_SelfDependencyIsACycle(t *testing.T) {
	builder := NewBuilder(testLogger())

	_, err := builder.Build([]models.TaskSpec{
		{Type: models.TaskMarketResearch, DependsOn: []models.DependencyEdge{edge(models.TaskMarketResearch)}},
	})

	require.Error(t, err)
	assert.True(t, IsCyclicDependencyError(err))
}

func TestBuild_CriticalPathFollowsSlowestChain(t *testing.T) {
	builder := NewBuilder(testLogger())

	graph, err := builder.Build([]models.TaskSpec{
		{Type: models.TaskMarketResearch, EstimatedDuration: 10 * time.Second},
		{Type: models.TaskFinancialAnalysis, EstimatedDuration: 40 * time.Second},
		{
			Type:              models.TaskRiskAssessment,
			DependsOn:         []models.DependencyEdge{edge(models.TaskFinancialAnalysis)},
			EstimatedDuration: 20 * time.Second,
		},
		{
			Type: models.TaskSynthesis,
			DependsOn: []models.DependencyEdge{
				edge(models.TaskMarketResearch),
				edge(models.TaskRiskAssessment),
			},
			EstimatedDuration: 5 * time.Second,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []models.TaskType{
		models.TaskFinancialAnalysis,
		models.TaskRiskAssessment,
		models.TaskSynthesis,
	}, graph.CriticalPath)
}

func TestBuild_DefaultsMissingDurations(t *testing.T) {
	builder := NewBuilder(testLogger())

	graph, err := builder.Build([]models.TaskSpec{{Type: models.TaskMarketResearch}})
	require.NoError(t, err)

	assert.Equal(t, DefaultTaskDuration, graph.Nodes[models.TaskMarketResearch].EstimatedDuration)
	assert.Equal(t, DefaultTaskDuration, graph.EstimatedTotal)
}

func TestRelaxOptionalEdges_AcceptsOnlyFasterPlans(t *testing.T) {
	builder := NewBuilder(testLogger(), RelaxOptionalEdges{})

	// The optional edge serializes two tasks; relaxing it halves the plan.
	graph, err := builder.Build([]models.TaskSpec{
		{Type: models.TaskMarketResearch, EstimatedDuration: 30 * time.Second},
		{
			Type:              models.TaskProductAnalysis,
			DependsOn:         []models.DependencyEdge{optionalEdge(models.TaskMarketResearch)},
			EstimatedDuration: 30 * time.Second,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, graph.EstimatedTotal)
	require.Len(t, graph.Groups, 1)
	assert.Len(t, graph.Groups[0], 2)
}

func TestRelaxOptionalEdges_KeepsRequiredOrdering(t *testing.T) {
	builder := NewBuilder(testLogger(), RelaxOptionalEdges{})

	graph, err := builder.Build([]models.TaskSpec{
		{Type: models.TaskMarketResearch, EstimatedDuration: 30 * time.Second},
		{
			Type:              models.TaskSynthesis,
			DependsOn:         []models.DependencyEdge{edge(models.TaskMarketResearch)},
			EstimatedDuration: 30 * time.Second,
		},
	})
	require.NoError(t, err)

	require.Len(t, graph.Groups, 2)
	assert.Equal(t, time.Minute, graph.EstimatedTotal)
}
