package depgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/plan"
)

func steps() []*plan.Step {
	return []*plan.Step{
		{ID: "step_1", Kind: plan.NAVIGATE, EstimatedCost: 500},
		{ID: "step_2", Kind: plan.DOM_QUERY, Dependencies: []string{"step_1"}, EstimatedCost: 10},
		{ID: "step_3", Kind: plan.FILTER, Dependencies: []string{"step_2"}, EstimatedCost: 1},
	}
}

func TestBuildDetectsDuplicateIDs(t *testing.T) {
	dup := append(steps(), &plan.Step{ID: "step_1", Kind: plan.LIMIT})
	_, err := Build(dup)
	require.Error(t, err)
}

func TestBuildDetectsMissingDependency(t *testing.T) {
	broken := []*plan.Step{{ID: "step_1", Dependencies: []string{"step_99"}}}
	_, err := Build(broken)
	require.Error(t, err)
}

func TestTopoSortLinearChain(t *testing.T) {
	g, err := Build(steps())
	require.NoError(t, err)
	order, ok := g.TopoSort([]string{"step_1", "step_2", "step_3"})
	require.True(t, ok)
	require.Equal(t, []string{"step_1", "step_2", "step_3"}, order)
}

func TestTopoSortFallsBackOnCycle(t *testing.T) {
	cyclic := []*plan.Step{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}
	g, err := Build(cyclic)
	require.NoError(t, err)
	order, ok := g.TopoSort([]string{"a", "b"})
	require.False(t, ok)
	require.Equal(t, []string{"a", "b"}, order)
}

func TestParallelGroupsDetectsConcurrentLevel(t *testing.T) {
	fanOut := []*plan.Step{
		{ID: "step_1", Kind: plan.NAVIGATE},
		{ID: "step_2", Kind: plan.NAVIGATE, Dependencies: []string{"step_1"}},
		{ID: "step_3", Kind: plan.NAVIGATE, Dependencies: []string{"step_1"}},
	}
	g, err := Build(fanOut)
	require.NoError(t, err)
	groups := g.ParallelGroups()
	require.Len(t, groups, 1)
	require.ElementsMatch(t, []string{"step_2", "step_3"}, groups[0])
}

func TestCriticalPathFollowsHighestCostChain(t *testing.T) {
	g, err := Build(steps())
	require.NoError(t, err)
	path, total := g.CriticalPath()
	require.Equal(t, []string{"step_1", "step_2", "step_3"}, path)
	require.InDelta(t, 511.0, total, 1e-9)
}

func TestParallelEndTimeReflectsMaxDependencyChain(t *testing.T) {
	g, err := Build(steps())
	require.NoError(t, err)
	require.InDelta(t, 511.0, g.ParallelEndTime(), 1e-9)
}
