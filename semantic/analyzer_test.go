package semantic

import (
	"testing"

	"github.com/stretchr/testify/require"

	werrors "github.com/webql/webql/errors"
	"github.com/webql/webql/parser"
	"github.com/webql/webql/types"
)

func analyze(t *testing.T, query string, cfg Config) (*Annotated, error) {
	t.Helper()
	stmt, err := parser.Parse(query)
	require.NoError(t, err)
	return New(cfg).Analyze(stmt)
}

func TestAnalyzeSimpleSelect(t *testing.T) {
	a, err := analyze(t, `SELECT 2 + 3 AS n FROM 'https://example.com'`, Config{})
	require.NoError(t, err)
	sel := a.Statement
	require.NotNil(t, sel)
}

func TestAnalyzeWhereMustBeBoolean(t *testing.T) {
	_, err := analyze(t, `SELECT name FROM 'https://x' WHERE 1 + 2`, Config{AllowUndefinedVariables: true})
	require.Error(t, err)
	require.True(t, werrors.TypeCheck.Is(err), "the error must come from the WHERE type check")
}

func TestAnalyzeUndefinedVariableFails(t *testing.T) {
	_, err := analyze(t, `SELECT name FROM x WHERE missing_var = 1`, Config{})
	require.Error(t, err)
}

func TestAnalyzeAllowsUndefinedVariablesWhenConfigured(t *testing.T) {
	_, err := analyze(t, `SELECT name FROM x WHERE missing_var = 1`, Config{AllowUndefinedVariables: true})
	require.NoError(t, err)
}

func TestAnalyzeDuplicateFieldNameFails(t *testing.T) {
	_, err := analyze(t, `SELECT name, name FROM x`, Config{AllowUndefinedVariables: true})
	require.Error(t, err)
}

func TestAnalyzeOrderByMustBeInSelectList(t *testing.T) {
	_, err := analyze(t, `SELECT name FROM x ORDER BY age`, Config{AllowUndefinedVariables: true})
	require.Error(t, err)

	_, err = analyze(t, `SELECT name, age FROM x ORDER BY age`, Config{AllowUndefinedVariables: true})
	require.NoError(t, err)
}

func TestAnalyzeLimitMustBePositive(t *testing.T) {
	_, err := parser.Parse(`SELECT name FROM x LIMIT 0`)
	require.NoError(t, err) // parses fine; validator below rejects it
	_, err = analyze(t, `SELECT name FROM x LIMIT 0`, Config{AllowUndefinedVariables: true})
	require.Error(t, err)
}

func TestAnalyzeRejectsBadURLProtocol(t *testing.T) {
	_, err := analyze(t, `SELECT name FROM 'ftp://example.com'`, Config{AllowUndefinedVariables: true})
	require.Error(t, err)

	_, err = analyze(t, `SELECT name FROM 'about:blank'`, Config{AllowUndefinedVariables: true})
	require.NoError(t, err, "about: is in the default protocol allow-list")
}

func TestAnalyzeForLoopVariableScoped(t *testing.T) {
	a, err := analyze(t, `FOR EACH u IN ['https://a'] { NAVIGATE TO u }`, Config{})
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestAnalyzeNestingDepthExceeded(t *testing.T) {
	query := `IF true THEN IF true THEN IF true THEN SHOW CACHE`
	_, err := analyze(t, query, Config{MaxNestingDepth: 1})
	require.Error(t, err)
}

func TestAnalyzeBuiltinCallReturnType(t *testing.T) {
	a, err := analyze(t, `SELECT UPPER(name) AS n FROM x WHERE EXISTS(name)`, Config{AllowUndefinedVariables: true})
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestTypeOfReturnsUnknownForUntrackedExpression(t *testing.T) {
	a, err := analyze(t, `SELECT name FROM x`, Config{AllowUndefinedVariables: true})
	require.NoError(t, err)
	require.Equal(t, types.UNKNOWN, a.TypeOf(nil))
}
