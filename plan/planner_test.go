package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/optimizer"
	"github.com/webql/webql/parser"
)

func planQuery(t *testing.T, query string) *Plan {
	t.Helper()
	stmt, err := parser.Parse(query)
	require.NoError(t, err)
	res := optimizer.New(optimizer.Config{}).Optimize(stmt)
	return New(res.Cache).Plan(res.Statement)
}

func TestSelectFromURLLowersToNavigateDomQuery(t *testing.T) {
	p := planQuery(t, `SELECT name FROM 'https://example.com'`)
	require.Len(t, p.Steps, 2)
	require.Equal(t, NAVIGATE, p.Steps[0].Kind)
	require.Equal(t, DOM_QUERY, p.Steps[1].Kind)
	require.Equal(t, p.Steps[1].ID, p.ResultID)
}

func TestSelectWithWhereAddsFilterStep(t *testing.T) {
	p := planQuery(t, `SELECT name FROM 'https://example.com' WHERE name = 'x'`)
	require.Equal(t, FILTER, p.Steps[len(p.Steps)-1].Kind)
}

func TestSelectWithOrderByAndLimitChains(t *testing.T) {
	p := planQuery(t, `SELECT name FROM 'https://example.com' ORDER BY name LIMIT 10`)
	kinds := make([]Kind, len(p.Steps))
	for i, s := range p.Steps {
		kinds[i] = s.Kind
	}
	require.Equal(t, []Kind{NAVIGATE, DOM_QUERY, SORT, LIMIT}, kinds)
}

func TestDeadCodeIfCollapsesToSingleReadVariableStep(t *testing.T) {
	p := planQuery(t, `IF false THEN SHOW CACHE ELSE SHOW METRICS`)
	require.Len(t, p.Steps, 1)
	require.Equal(t, READ_VARIABLE, p.Steps[0].Kind)
	require.Equal(t, "METRICS", p.Steps[0].VariableName)
}

func TestForLowersToLoopStepWithDetachedBody(t *testing.T) {
	p := planQuery(t, `FOR EACH u IN ['https://a','https://b'] { SET x = 1 }`)
	require.Len(t, p.Steps, 1)
	require.Equal(t, LOOP, p.Steps[0].Kind)
	require.NotNil(t, p.Steps[0].Body)
	require.Len(t, p.Steps[0].Body.Steps, 1)
	require.Equal(t, ASSIGN, p.Steps[0].Body.Steps[0].Kind)
}

func TestNavigateResourceEstimateBumpsMemoryAndCPU(t *testing.T) {
	p := planQuery(t, `NAVIGATE TO 'https://example.com'`)
	require.GreaterOrEqual(t, p.Resources.CPU, 30)
	require.GreaterOrEqual(t, p.Resources.MemoryMB, 100)
}

func TestSelectorInferenceFromURLFragment(t *testing.T) {
	p := planQuery(t, `SELECT name FROM 'https://example.com#main'`)
	require.Equal(t, "#main", p.Steps[0].Selector)
}

func TestSelectorDefaultsToBody(t *testing.T) {
	p := planQuery(t, `SELECT name FROM 'https://example.com'`)
	require.Equal(t, "body", p.Steps[0].Selector)
}
