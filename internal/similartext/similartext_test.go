package similartext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindSuggestsClosestVisibleName(t *testing.T) {
	require.Empty(t, Find(nil, "title"))

	names := []string{"title", "status", "rows", "rowz"}

	require.Equal(t, ", maybe you mean title?", Find(names, "titel"))
	require.Empty(t, Find(names, ""))

	// An exact match still gets the suffix; the caller only asks when the
	// name failed to resolve in scope.
	require.Equal(t, ", maybe you mean title?", Find(names, "title"))

	// Nothing within maxDistance: no suggestion at all.
	require.Empty(t, Find(names, "completelyUnrelatedName"))

	// A tie between two candidates names both.
	require.Equal(t, ", maybe you mean rows or rowz?", Find(names, "rowa"))
}

func TestFindFromMapSuggestsFromKeys(t *testing.T) {
	var empty map[string]int
	require.Empty(t, FindFromMap(empty, "status"))

	vars := map[string]int{"status": 1, "title": 2}

	require.Equal(t, ", maybe you mean status?", FindFromMap(vars, "statsu"))
	require.Empty(t, FindFromMap(vars, ""))
	require.Equal(t, ", maybe you mean title?", FindFromMap(vars, "title"))
}
