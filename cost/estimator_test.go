package cost

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/parser"
)

func TestSelectFromURLIncludesNavigateAndCacheLookup(t *testing.T) {
	stmt, err := parser.Parse(`SELECT name FROM 'https://example.com'`)
	require.NoError(t, err)
	c := New().Statement(stmt)
	require.Greater(t, c.Network, 0.0)
	require.Greater(t, c.CacheLookup, 0.0)
}

func TestSelectFromVariableHasNoNetworkCost(t *testing.T) {
	stmt, err := parser.Parse(`SELECT name FROM src`)
	require.NoError(t, err)
	c := New().Statement(stmt)
	require.Equal(t, 0.0, c.Network)
}

func TestForMultipliesByIterationCount(t *testing.T) {
	stmt, err := parser.Parse(`FOR EACH u IN ['a','b','c'] { SET x = 1 }`)
	require.NoError(t, err)
	c := New().Statement(stmt)

	bodyOnly, err := parser.Parse(`SET x = 1`)
	require.NoError(t, err)
	single := New().Statement(bodyOnly)

	require.InDelta(t, single.Total()*3, c.Total(), 1e-9)
}

func TestIfCostIsConditionPlusAverageOfBranches(t *testing.T) {
	stmt, err := parser.Parse(`IF x > 1 THEN SET y = UPPER(z) ELSE SET y = 2`)
	require.NoError(t, err)
	c := New().Statement(stmt)
	require.Greater(t, c.Compute, 0.0)
	// condition: one operator; branches: one call (then) and a literal (else)
	b := DefaultBaseCosts()
	require.InDelta(t, b.JSExecution+(b.DOMQuery+0)/2, c.Compute, 1e-9)
}

func TestParallelDiscountReducesTotal(t *testing.T) {
	s := DefaultScaling()
	undiscounted := s.ParallelDiscount(1000, 1)
	discounted := s.ParallelDiscount(1000, 4)
	require.Equal(t, 1000.0, undiscounted)
	require.Less(t, discounted, undiscounted)
}
