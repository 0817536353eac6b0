package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/token"
)

type lexCase struct {
	input string
	want  token.Kind
	text  string
}

func testLex(t *testing.T, cases []lexCase) {
	t.Helper()
	for _, c := range cases {
		tok, err := New(c.input).Next()
		require.NoError(t, err, c.input)
		require.Equal(t, c.want, tok.Kind, c.input)
		if c.text != "" {
			require.Equal(t, c.text, tok.Lexeme, c.input)
		}
	}
}

func TestLexNumber(t *testing.T) {
	testLex(t, []lexCase{
		{"12", token.NUMBER, "12"},
		{"12.45", token.NUMBER, "12.45"},
		{"12.45e2", token.NUMBER, "12.45e2"},
		{"500ms", token.DURATION, "500ms"},
		{"5s", token.DURATION, "5s"},
		{"2m", token.DURATION, "2m"},
		{"1h", token.DURATION, "1h"},
		{"10KB", token.BYTES, "10KB"},
		{"2MB", token.BYTES, "2MB"},
		{"1GB", token.BYTES, "1GB"},
	})
}

func TestLexIdentifierAndKeyword(t *testing.T) {
	testLex(t, []lexCase{
		{"select *", token.SELECT, "select"},
		{"p_name", token.IDENTIFIER, "p_name"},
		{"TRUE", token.BOOLEAN, "TRUE"},
		{"false", token.BOOLEAN, "false"},
		{"NULL", token.NULL, "NULL"},
	})
}

func TestLexOperator(t *testing.T) {
	testLex(t, []lexCase{
		{"=5", token.ASSIGN_EQ, "="},
		{">=foo", token.GTE, ">="},
		{"!=5", token.NEQ, "!="},
		{"||x", token.CONCAT, "||"},
		{"->x", token.ARROW, "->"},
	})
}

func TestLexUnknownOperatorFails(t *testing.T) {
	_, err := New("!foo").Next()
	require.Error(t, err)
	_, err = New("|foo").Next()
	require.Error(t, err)
}

func TestLexString(t *testing.T) {
	tok, err := New(`'hello \'world\''`).Next()
	require.NoError(t, err)
	require.Equal(t, token.STRING, tok.Kind)
	require.Equal(t, `hello 'world'`, tok.Lexeme)

	tok, err = New(`"line\nbreak"`).Next()
	require.NoError(t, err)
	require.Equal(t, "line\nbreak", tok.Lexeme)

	tok, err = New(`"A"`).Next()
	require.NoError(t, err)
	require.Equal(t, "A", tok.Lexeme)
}

func TestLexUnterminatedString(t *testing.T) {
	_, err := New(`'unterminated`).Next()
	require.Error(t, err)
}

func TestLexCommentsAndWhitespace(t *testing.T) {
	toks, err := Tokenize("-- leading comment\nSELECT /* inline\nblock */ 1")
	require.NoError(t, err)
	kinds := make([]token.Kind, len(toks))
	for i, tk := range toks {
		kinds[i] = tk.Kind
	}
	require.Equal(t, []token.Kind{token.SELECT, token.NUMBER, token.EOF}, kinds)
}

func TestTokenizeEmitsEOF(t *testing.T) {
	toks, err := Tokenize("")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.Equal(t, token.EOF, toks[0].Kind)
}

func TestLinesAndColumnsTracked(t *testing.T) {
	toks, err := Tokenize("SELECT\n  1")
	require.NoError(t, err)
	require.Equal(t, 1, toks[0].Position.Line)
	require.Equal(t, 2, toks[1].Position.Line)
	require.Equal(t, 3, toks[1].Position.Column)
}

func TestLexLoneBangAndPipeAreUnknown(t *testing.T) {
	testLex(t, []lexCase{
		{"!", token.ILLEGAL, "!"},
		{"|", token.ILLEGAL, "|"},
	})

	toks, err := Tokenize("a ! b")
	require.NoError(t, err)
	require.Equal(t, token.IDENTIFIER, toks[0].Kind)
	require.Equal(t, token.ILLEGAL, toks[1].Kind)
	require.Equal(t, token.IDENTIFIER, toks[2].Kind)
	require.Equal(t, token.EOF, toks[3].Kind)
}
