package symtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/types"
)

func TestPushPopNestsAndUnwindsScopes(t *testing.T) {
	tbl := New()
	require.Equal(t, 0, tbl.Depth())
	require.Equal(t, tbl.Global, tbl.Current())

	q := tbl.Push(QUERY)
	require.Equal(t, 1, tbl.Depth())
	require.Equal(t, q, tbl.Current())
	require.Equal(t, tbl.Global, q.Parent)

	tbl.Pop()
	require.Equal(t, 0, tbl.Depth())
	require.Equal(t, tbl.Global, tbl.Current())
}

func TestLookupWalksParentChainAndFindsNearestBinding(t *testing.T) {
	tbl := New()
	tbl.Global.Define("x", VARIABLE, types.NUMBER, false)

	inner := tbl.Push(FOR_LOOP)
	inner.Define("x", VARIABLE, types.STRING, false)

	sym, ok := inner.Lookup("x")
	require.True(t, ok)
	require.Equal(t, types.STRING, sym.Type, "inner scope's binding must shadow the outer one")

	_, ok = inner.LookupLocal("x")
	require.True(t, ok)

	tbl.Pop()
	sym, ok = tbl.Global.Lookup("x")
	require.True(t, ok)
	require.Equal(t, types.NUMBER, sym.Type)
}

func TestLookupLocalDoesNotSeeParentBindings(t *testing.T) {
	tbl := New()
	tbl.Global.Define("y", VARIABLE, types.NUMBER, false)
	inner := tbl.Push(SUBQUERY)

	_, ok := inner.LookupLocal("y")
	require.False(t, ok, "LookupLocal must not walk to the parent scope")

	_, ok = inner.Lookup("y")
	require.True(t, ok, "Lookup must walk to the parent scope")
}

func TestLookupUnknownNameFails(t *testing.T) {
	tbl := New()
	_, ok := tbl.Global.Lookup("nope")
	require.False(t, ok)
}

func TestVisibleNamesCollectsAcrossScopeChain(t *testing.T) {
	tbl := New()
	tbl.Global.Define("a", VARIABLE, types.NUMBER, false)
	inner := tbl.Push(QUERY)
	inner.Define("b", FIELD, types.STRING, true)

	names := inner.VisibleNames()
	require.Contains(t, names, "a")
	require.Contains(t, names, "b")
}

func TestScopesReturnsEveryCreatedScopeInCreationOrder(t *testing.T) {
	tbl := New()
	q := tbl.Push(QUERY)
	f := tbl.Push(FOR_LOOP)

	scopes := tbl.Scopes()
	require.Equal(t, []*Scope{tbl.Global, q, f}, scopes)
}
