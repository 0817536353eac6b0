package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/parser"
)

func optimize(t *testing.T, query string) *Result {
	t.Helper()
	stmt, err := parser.Parse(query)
	require.NoError(t, err)
	return New(Config{}).Optimize(stmt)
}

func TestConstantFoldingArithmetic(t *testing.T) {
	res := optimize(t, `SELECT 2 + 3 AS n FROM 'https://example.com'`)
	sel := res.Statement.(*ast.Select)
	lit, ok := sel.Fields[0].Expr.(*ast.Literal)
	require.True(t, ok)
	require.Equal(t, 5.0, lit.Value)
	require.Contains(t, res.AppliedPasses, passConstantFold)
}

func TestDeadCodeEliminationDropsUntakenBranch(t *testing.T) {
	res := optimize(t, `IF false THEN SHOW CACHE ELSE SHOW METRICS`)
	show, ok := res.Statement.(*ast.Show)
	require.True(t, ok)
	require.Equal(t, "METRICS", show.Name)
}

func TestForOverEmptyLiteralArrayEliminated(t *testing.T) {
	stmt, err := parser.Parse(`FOR EACH u IN [] { SHOW CACHE }`)
	require.NoError(t, err)
	res := New(Config{}).Optimize(stmt)
	require.Nil(t, res.Statement)
}

func TestPredicatePushdownSplitsConjuncts(t *testing.T) {
	res := optimize(t, `SELECT name FROM (SELECT name, age FROM 'https://example.com') WHERE age > 18`)
	outer := res.Statement.(*ast.Select)
	require.Nil(t, outer.Where)
	inner := outer.From.Subquery.(*ast.Select)
	require.NotNil(t, inner.Where)
}

func TestProjectionPushdownPrunesUnusedFields(t *testing.T) {
	res := optimize(t, `SELECT name FROM (SELECT name, age FROM 'https://example.com')`)
	outer := res.Statement.(*ast.Select)
	inner := outer.From.Subquery.(*ast.Select)
	require.Len(t, inner.Fields, 1)
	require.Equal(t, "name", inner.Fields[0].Name)
}

func TestCacheabilitySelectFromURL(t *testing.T) {
	res := optimize(t, `SELECT name FROM 'https://example.com'`)
	info := res.Cache[res.Statement]
	require.True(t, info.Cacheable)
	require.Equal(t, 60, info.TTLSeconds)
}

func TestCacheabilitySelectFromVariableIsNotCacheable(t *testing.T) {
	res := optimize(t, `SELECT name FROM src`)
	info := res.Cache[res.Statement]
	require.False(t, info.Cacheable)
}

func TestCacheabilityNonDeterministicCallDisqualifies(t *testing.T) {
	res := optimize(t, `SELECT UUID() AS id FROM 'https://example.com'`)
	info := res.Cache[res.Statement]
	require.False(t, info.Cacheable)
}

func TestParallelGroupDetectedForIndependentForBody(t *testing.T) {
	stmt, err := parser.Parse(`FOR EACH u IN ['https://a','https://b'] { NAVIGATE TO u; NAVIGATE TO 'https://c' }`)
	require.NoError(t, err)
	res := New(Config{}).Optimize(stmt)
	// the two body statements write nothing, so they form one group
	require.Len(t, res.ParallelGroups, 1)
	require.Len(t, res.ParallelGroups[0], 2)
}

func TestOptimizerMonotonicity(t *testing.T) {
	stmt, err := parser.Parse(`SELECT 1 + 1 AS n FROM 'https://example.com'`)
	require.NoError(t, err)
	res := New(Config{}).Optimize(stmt)
	require.LessOrEqual(t, res.CostAfter.Total(), res.CostBefore.Total()+1e-9)
}

func TestOptimizeAppliesCacheHitAdjustmentToEstimatedTotal(t *testing.T) {
	res := optimize(t, `SELECT title FROM 'https://example.com'`)
	info, ok := res.Cache[res.Statement]
	require.True(t, ok)
	require.True(t, info.Cacheable)
	require.Less(t, res.EstimatedTotalMS, res.CostAfter.Total(),
		"a cacheable statement's wall estimate carries the cache-hit discount")
	require.GreaterOrEqual(t, res.EstimatedTotalMS, 0.0)
}
