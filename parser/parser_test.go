package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/ast"
)

func TestParseSelectFromWhere(t *testing.T) {
	stmt, err := Parse(`SELECT foo, bar FROM 'https://example.com' WHERE foo = bar`)
	require.NoError(t, err)

	sel, ok := stmt.(*ast.Select)
	require.True(t, ok)
	require.Len(t, sel.Fields, 2)
	require.Equal(t, "foo", sel.Fields[0].Name)
	require.Equal(t, "bar", sel.Fields[1].Name)
	require.NotNil(t, sel.From.URL)
	require.Equal(t, "https://example.com", sel.From.URL.Value)

	bin, ok := sel.Where.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, ast.OpEq, bin.Op)
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM 'https://x'`)
	require.NoError(t, err)
	sel := stmt.(*ast.Select)
	require.Len(t, sel.Fields, 1)
	require.Equal(t, "*", sel.Fields[0].Name)
}

func TestParseOrderByLimitOffset(t *testing.T) {
	stmt, err := Parse(`SELECT name FROM 'https://x' ORDER BY name DESC LIMIT 10 OFFSET 5`)
	require.NoError(t, err)
	sel := stmt.(*ast.Select)
	require.Len(t, sel.OrderBy, 1)
	require.True(t, sel.OrderBy[0].Descending)
	require.Equal(t, 10, *sel.Limit)
	require.Equal(t, 5, *sel.Offset)
}

func TestParseSubquerySource(t *testing.T) {
	stmt, err := Parse(`SELECT name FROM (SELECT name, age FROM src) WHERE age > 18`)
	require.NoError(t, err)
	sel := stmt.(*ast.Select)
	require.NotNil(t, sel.From.Subquery)
	inner := sel.From.Subquery.(*ast.Select)
	require.Equal(t, "src", inner.From.Variable)
}

func TestOperatorPrecedence(t *testing.T) {
	stmt, err := Parse(`SELECT a FROM x WHERE a = 1 AND b = 2 OR c = 3`)
	require.NoError(t, err)
	sel := stmt.(*ast.Select)
	top, ok := sel.Where.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, ast.OpOr, top.Op) // OR is lowest precedence, binds last
	left, ok := top.Left.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, ast.OpAnd, left.Op)
}

func TestArithmeticPrecedence(t *testing.T) {
	stmt, err := Parse(`SELECT 2 + 3 * 4 AS n FROM 'about:blank'`)
	require.NoError(t, err)
	sel := stmt.(*ast.Select)
	top := sel.Fields[0].Expr.(*ast.Binary)
	require.Equal(t, ast.OpAdd, top.Op)
	right := top.Right.(*ast.Binary)
	require.Equal(t, ast.OpMul, right.Op)
}

func TestNotInAndNotLike(t *testing.T) {
	stmt, err := Parse(`SELECT a FROM x WHERE a NOT IN ['x','y'] AND b NOT LIKE '%foo%'`)
	require.NoError(t, err)
	sel := stmt.(*ast.Select)
	top := sel.Where.(*ast.Binary)
	require.Equal(t, ast.OpAnd, top.Op)
	left := top.Left.(*ast.Binary)
	require.Equal(t, ast.OpNotIn, left.Op)
	right := top.Right.(*ast.Binary)
	require.Equal(t, ast.OpNotLike, right.Op)
}

func TestParseNavigateWithOptionsAndCapture(t *testing.T) {
	stmt, err := Parse(`NAVIGATE TO 'https://x' WITH { waitUntil: 'load', timeout: 5000 } CAPTURE title`)
	require.NoError(t, err)
	nav := stmt.(*ast.Navigate)
	require.NotNil(t, nav.Options)
	require.NotNil(t, nav.Options.WaitUntil)
	require.Len(t, nav.Capture, 1)
}

func TestParseNavigateRejectsUnknownOption(t *testing.T) {
	_, err := Parse(`NAVIGATE TO 'https://x' WITH { bogus: true }`)
	require.Error(t, err)
}

func TestParseNavigateRejectsBothWaitForAndWaitUntil(t *testing.T) {
	_, err := Parse(`NAVIGATE TO 'https://x' WITH { waitFor: 'load', waitUntil: 'load' }`)
	require.Error(t, err)
}

func TestParseSetDottedPath(t *testing.T) {
	stmt, err := Parse(`SET config.timeout = 500`)
	require.NoError(t, err)
	set := stmt.(*ast.Set)
	require.Equal(t, "config.timeout", set.Path)
}

func TestParseForEach(t *testing.T) {
	stmt, err := Parse(`FOR EACH u IN ['https://a','https://b'] { NAVIGATE TO u }`)
	require.NoError(t, err)
	f := stmt.(*ast.For)
	require.Equal(t, "u", f.Variable)
	require.Len(t, f.Body, 1)
}

func TestParseIfElse(t *testing.T) {
	stmt, err := Parse(`IF false THEN SHOW CACHE ELSE SHOW METRICS`)
	require.NoError(t, err)
	i := stmt.(*ast.If)
	require.Len(t, i.Then, 1)
	require.Len(t, i.Else, 1)
}

func TestParseWith(t *testing.T) {
	stmt, err := Parse(`WITH a AS (SELECT x FROM y) SELECT x FROM a`)
	require.NoError(t, err)
	w := stmt.(*ast.With)
	require.Len(t, w.CTEs, 1)
	require.Equal(t, "a", w.CTEs[0].Name)
}

func TestParseWithDuplicateNameFails(t *testing.T) {
	_, err := Parse(`WITH a AS (SELECT x FROM y), a AS (SELECT x FROM z) SELECT x FROM a`)
	require.Error(t, err)
}

func TestParseInsertUpdateDelete(t *testing.T) {
	_, err := Parse(`INSERT INTO form VALUES ('a', 1)`)
	require.NoError(t, err)

	stmt, err := Parse(`UPDATE form SET x = 1, y = 2 WHERE z = 3`)
	require.NoError(t, err)
	u := stmt.(*ast.Update)
	require.Len(t, u.Assignments, 2)

	_, err = Parse(`DELETE FROM form WHERE x = 1`)
	require.NoError(t, err)
}

func TestParseUnknownStatementFails(t *testing.T) {
	_, err := Parse(`FROB 1 2 3`)
	require.Error(t, err)
}

func TestParseMemberAndCallAndIndex(t *testing.T) {
	stmt, err := Parse(`SELECT UPPER(response.status) AS s FROM x WHERE items[0] = 1`)
	require.NoError(t, err)
	sel := stmt.(*ast.Select)
	call := sel.Fields[0].Expr.(*ast.Call)
	require.Equal(t, "UPPER", call.Callee)
	member := call.Args[0].(*ast.Member)
	require.False(t, member.Computed)

	where := sel.Where.(*ast.Binary)
	idx := where.Left.(*ast.Member)
	require.True(t, idx.Computed)
}

func TestNoErrorRecoveryStopsAtFirstError(t *testing.T) {
	_, err := Parse(`SELECT FROM`)
	require.Error(t, err)
}
