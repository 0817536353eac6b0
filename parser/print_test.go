package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/lexer"
	"github.com/webql/webql/token"
)

// reprint parses q, prints it, re-parses the printed text, and requires the
// second print to be identical: ast.Print is deterministic and
// position-independent, so a print fixpoint is structural equality of the
// two trees.
func reprint(t *testing.T, q string) string {
	t.Helper()
	stmt, err := Parse(q)
	require.NoError(t, err)
	printed := ast.Print(stmt)

	stmt2, err := Parse(printed)
	require.NoError(t, err, "printed form must re-parse: %s", printed)
	require.Equal(t, printed, ast.Print(stmt2))
	return printed
}

func TestPrintRoundTrip(t *testing.T) {
	queries := []string{
		`SELECT * FROM 'https://example.com'`,
		`SELECT foo, bar AS b FROM 'https://example.com' WHERE foo = bar`,
		`SELECT name FROM (SELECT name, age FROM src) WHERE age > 18`,
		`SELECT a FROM 'https://x' ORDER BY a DESC, b LIMIT 10 OFFSET 5`,
		`SELECT a.b.c AS deep FROM items`,
		`SELECT items[0], UPPER(name) FROM src`,
		`SELECT 2 + 3 * 4 FROM 'https://x'`,
		`SELECT (2 + 3) * 4 FROM 'https://x'`,
		`SELECT a - (b - c) FROM src`,
		`SELECT NOT (a = b) OR c AND d FROM src`,
		`SELECT name FROM src WHERE name NOT IN ['a', 'b'] AND city NOT LIKE '%x%'`,
		`SELECT a || 'suffix' FROM src WHERE a MATCHES '^h' OR a CONTAINS 'tt'`,
		`SELECT -x, +y, NOT z FROM src`,
		`SELECT {k: 1, 'two words': 2, 'from': 3} FROM src`,
		`SELECT [1, 2.5, TRUE, NULL, 'it\'s'] FROM src`,
		`NAVIGATE TO 'https://example.com'`,
		`NAVIGATE TO 'https://example.com' WITH {timeout: 5000ms, screenshot: TRUE} CAPTURE title, body`,
		`NAVIGATE TO 'https://x' WITH {proxy: {cacheEnabled: FALSE, enabled: TRUE}, browser: {headless: TRUE}, waitFor: '.content'}`,
		`SET config.timeout = 30`,
		`SHOW METRICS`,
		`FOR EACH u IN ['https://a', 'https://b'] { NAVIGATE TO u }`,
		`IF x > 0 THEN { SHOW CACHE } ELSE { SHOW METRICS }`,
		`IF TRUE THEN SHOW CACHE`,
		`INSERT INTO form VALUES ('alice', 42)`,
		`UPDATE profile SET name = 'bob', meta.age = 7 WHERE id = 1`,
		`DELETE FROM rows WHERE stale = TRUE`,
		`WITH src AS (SELECT name, age FROM 'https://x') SELECT name FROM src`,
	}
	for _, q := range queries {
		reprint(t, q)
	}
}

func TestPrintCanonicalForms(t *testing.T) {
	// Queries already in canonical spelling print back verbatim.
	canonical := []string{
		`SELECT * FROM 'https://example.com'`,
		`SELECT foo, bar AS b FROM 'https://example.com' WHERE foo = bar`,
		`SELECT a FROM 'https://x' ORDER BY a DESC LIMIT 10 OFFSET 5`,
		`NAVIGATE TO 'https://example.com' WITH {timeout: 5000ms} CAPTURE title`,
		`SET config.timeout = 30`,
		`FOR EACH u IN ['https://a', 'https://b'] { NAVIGATE TO u }`,
		`DELETE FROM rows WHERE stale = TRUE`,
	}
	for _, q := range canonical {
		stmt, err := Parse(q)
		require.NoError(t, err)
		require.Equal(t, q, ast.Print(stmt))
	}
}

func TestPrintPreservesParenthesizedStructure(t *testing.T) {
	stmt, err := Parse(`SELECT (2 + 3) * 4 FROM 'https://x'`)
	require.NoError(t, err)
	printed := ast.Print(stmt)
	require.Contains(t, printed, `(2 + 3) * 4`)

	stmt, err = Parse(`SELECT a - (b - c) FROM src`)
	require.NoError(t, err)
	require.Contains(t, ast.Print(stmt), `a - (b - c)`)
}

func TestPrintTokenStreamModuloComments(t *testing.T) {
	// tokens -> parse -> print -> tokens drops only comments and whitespace.
	src := `SELECT name, age -- projected fields
FROM 'https://x' /* the
source */ WHERE age >= 21`
	stmt, err := Parse(src)
	require.NoError(t, err)

	want, err := lexer.Tokenize(src)
	require.NoError(t, err)
	got, err := lexer.Tokenize(ast.Print(stmt))
	require.NoError(t, err)

	require.Equal(t, len(want), len(got))
	for i := range want {
		require.Equal(t, want[i].Kind, got[i].Kind, "token %d", i)
		if want[i].Kind != token.EOF {
			require.Equal(t, want[i].Lexeme, got[i].Lexeme, "token %d", i)
		}
	}
}

func TestPrintQuotesReservedObjectKeys(t *testing.T) {
	stmt, err := Parse(`SELECT {'from': 1, plain: 2} FROM src`)
	require.NoError(t, err)
	printed := ast.Print(stmt)
	require.Contains(t, printed, `'from': 1`)
	require.Contains(t, printed, `plain: 2`)
	_, err = Parse(printed)
	require.NoError(t, err)
}
