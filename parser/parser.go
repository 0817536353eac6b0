// Package parser implements a recursive-descent parser with precedence
// climbing for expressions, producing the ast package's Statement/Expression
// trees. It does not attempt error recovery: parsing stops at the first
// syntax error.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	werrors "github.com/webql/webql/errors"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/lexer"
	"github.com/webql/webql/token"
	"github.com/webql/webql/types"
)

// Parser consumes a token stream produced by the lexer and builds an AST.
type Parser struct {
	toks []token.Token
	pos  int
}

// Parse tokenizes and parses src into a single Statement.
func Parse(src string) (ast.Statement, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if !p.at(token.EOF) && !p.at(token.SEMICOLON) {
		return nil, p.errorf("unexpected trailing token %s", p.cur().Lexeme)
	}
	return stmt, nil
}

func (p *Parser) cur() token.Token {
	return p.toks[p.pos]
}

func (p *Parser) at(k token.Kind) bool {
	return p.cur().Kind == k
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if !p.at(k) {
		return token.Token{}, p.errorf("expected %s, got %s %q", k, p.cur().Kind, p.cur().Lexeme)
	}
	return p.advance(), nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	tok := p.cur()
	return werrors.At(werrors.Parser, tok.Position.Line, tok.Position.Column, "%s", fmt.Sprintf(format, args...))
}

// parseStatement dispatches on the leading token.
func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur().Kind {
	case token.SELECT:
		return p.parseSelect()
	case token.NAVIGATE:
		return p.parseNavigate()
	case token.SET:
		return p.parseSet()
	case token.SHOW:
		return p.parseShow()
	case token.FOR:
		return p.parseFor()
	case token.IF:
		return p.parseIf()
	case token.INSERT:
		return p.parseInsert()
	case token.UPDATE:
		return p.parseUpdate()
	case token.DELETE:
		return p.parseDelete()
	case token.WITH:
		return p.parseWith()
	default:
		return nil, p.errorf("unexpected token %s %q; expected a statement", p.cur().Kind, p.cur().Lexeme)
	}
}

// --- SELECT ---

func (p *Parser) parseSelect() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // SELECT

	fields, err := p.parseFieldList()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(token.FROM); err != nil {
		return nil, err
	}
	source, err := p.parseSource()
	if err != nil {
		return nil, err
	}

	var where ast.Expression
	if p.at(token.WHERE) {
		p.advance()
		where, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}

	var orderBy []ast.SortField
	if p.at(token.ORDER) {
		p.advance()
		if _, err := p.expect(token.BY); err != nil {
			return nil, err
		}
		for {
			f, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.at(token.ASC) {
				p.advance()
			} else if p.at(token.DESC) {
				p.advance()
				desc = true
			}
			orderBy = append(orderBy, ast.SortField{Field: f, Descending: desc})
			if p.at(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}

	var limit, offset *int
	if p.at(token.LIMIT) {
		p.advance()
		n, err := p.parseIntLiteralValue()
		if err != nil {
			return nil, err
		}
		limit = &n
		if p.at(token.OFFSET) {
			p.advance()
			n, err := p.parseIntLiteralValue()
			if err != nil {
				return nil, err
			}
			offset = &n
		}
	}

	return ast.NewSelect(start, fields, source, where, orderBy, limit, offset), nil
}

func (p *Parser) parseIntLiteralValue() (int, error) {
	tok, err := p.expect(token.NUMBER)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(tok.Lexeme)
	if convErr != nil {
		return 0, p.errorf("invalid integer literal %q", tok.Lexeme)
	}
	return n, nil
}

// parseFieldList parses a comma-separated field list, or the bare `*`
// wildcard (which must be the only field, per the AST invariant).
func (p *Parser) parseFieldList() ([]ast.Field, error) {
	if p.at(token.STAR) {
		pos := p.cur().Position
		p.advance()
		return []ast.Field{{Expr: ast.NewIdentifier(pos, "*"), Name: "*"}}, nil
	}

	var fields []ast.Field
	for {
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	return fields, nil
}

// parseField parses one `expr [AS alias]` and resolves its output name:
// identifier -> its name; member -> its root with the full dotted path
// recorded; otherwise the alias or the literal string "expr".
func (p *Parser) parseField() (ast.Field, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return ast.Field{}, err
	}
	alias := ""
	if p.at(token.AS) {
		p.advance()
		tok, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return ast.Field{}, err
		}
		alias = tok.Lexeme
	}

	name := ""
	path := ""
	if ident, ok := expr.(*ast.Identifier); ok {
		path = ident.Name
		name = ident.Name
	} else if root, path2, ok := ast.DottedPath(expr); ok {
		path = path2
		name = root
	} else {
		name = alias
	}
	if name == "" {
		name = "expr"
	}
	return ast.Field{Expr: expr, Alias: alias, Name: name, Path: path}, nil
}

// parseSource parses the FROM clause: a quoted URL literal, a parenthesized
// subquery, or a bare identifier naming a bound variable.
func (p *Parser) parseSource() (ast.Source, error) {
	switch {
	case p.at(token.STRING):
		tok := p.advance()
		lit := ast.NewLiteral(tok.Position, types.URL, tok.Lexeme)
		return ast.Source{URL: lit}, nil
	case p.at(token.LPAREN):
		p.advance()
		stmt, err := p.parseStatement()
		if err != nil {
			return ast.Source{}, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return ast.Source{}, err
		}
		return ast.Source{Subquery: stmt}, nil
	case p.at(token.IDENTIFIER):
		tok := p.advance()
		return ast.Source{Variable: tok.Lexeme}, nil
	default:
		return ast.Source{}, p.errorf("expected a URL literal, subquery, or variable name in FROM clause")
	}
}

// --- NAVIGATE ---

var navigateKeys = map[string]bool{
	"proxy": true, "browser": true, "waitFor": true, "waitUntil": true,
	"timeout": true, "screenshot": true,
}

// proxyKeys and browserKeys are the closed key sets for NAVIGATE's nested
// `proxy` and `browser` option objects.
var proxyKeys = map[string]bool{"enabled": true, "cacheEnabled": true, "rateLimit": true}
var browserKeys = map[string]bool{"headless": true, "viewport": true, "userAgent": true}

func (p *Parser) parseNavigate() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // NAVIGATE
	if _, err := p.expect(token.TO); err != nil {
		return nil, err
	}
	url, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	var options *ast.NavigateOptions
	if p.at(token.WITH) {
		p.advance()
		options, err = p.parseNavigateOptions()
		if err != nil {
			return nil, err
		}
	}

	var capture []ast.Field
	if p.at(token.CAPTURE) {
		p.advance()
		capture, err = p.parseFieldList()
		if err != nil {
			return nil, err
		}
	}

	return ast.NewNavigate(start, url, options, capture), nil
}

func (p *Parser) parseNavigateOptions() (*ast.NavigateOptions, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	opts := &ast.NavigateOptions{}
	for !p.at(token.RBRACE) {
		keyTok, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		key := keyTok.Lexeme
		if !navigateKeys[key] {
			return nil, p.errorf("unrecognized NAVIGATE option %q", key)
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		switch key {
		case "proxy":
			m, err := p.parseClosedObject(proxyKeys, "proxy")
			if err != nil {
				return nil, err
			}
			opts.Proxy = m
		case "browser":
			m, err := p.parseClosedObject(browserKeys, "browser")
			if err != nil {
				return nil, err
			}
			opts.Browser = m
		case "waitFor":
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			opts.WaitFor = v
		case "waitUntil":
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			opts.WaitUntil = v
		case "timeout":
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			opts.Timeout = v
		case "screenshot":
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			opts.Screenshot = v
		}
		if p.at(token.COMMA) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}

	if opts.WaitFor != nil && opts.WaitUntil != nil {
		return nil, p.errorf("NAVIGATE options cannot set both waitFor and waitUntil")
	}
	if err := validateWaitValue(opts.WaitFor); err != nil {
		return nil, p.wrapErr(err)
	}
	if err := validateWaitValue(opts.WaitUntil); err != nil {
		return nil, p.wrapErr(err)
	}
	return opts, nil
}

func (p *Parser) wrapErr(err error) error {
	tok := p.cur()
	return werrors.At(werrors.Parser, tok.Position.Line, tok.Position.Column, "%s", err.Error())
}

// validateWaitValue enforces the closed waitFor/waitUntil vocabulary: one of
// {load, domcontentloaded, networkidle}, or a CSS-selector-looking string
// beginning with '.', '#', or '['.
func validateWaitValue(e ast.Expression) error {
	if e == nil {
		return nil
	}
	lit, ok := e.(*ast.Literal)
	if !ok {
		return nil // non-literal: deferred to runtime
	}
	s, ok := lit.Value.(string)
	if !ok {
		return fmt.Errorf("waitFor/waitUntil must be a string")
	}
	switch s {
	case "load", "domcontentloaded", "networkidle":
		return nil
	}
	if strings.HasPrefix(s, ".") || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "[") {
		return nil
	}
	return fmt.Errorf("invalid waitFor/waitUntil value %q", s)
}

func (p *Parser) parseClosedObject(allowed map[string]bool, label string) (map[string]ast.Expression, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	m := map[string]ast.Expression{}
	for !p.at(token.RBRACE) {
		keyTok, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if !allowed[keyTok.Lexeme] {
			return nil, p.errorf("unrecognized %s option %q", label, keyTok.Lexeme)
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		v, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		m[keyTok.Lexeme] = v
		if p.at(token.COMMA) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return m, nil
}

// --- SET / SHOW ---

func (p *Parser) parseSet() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // SET
	path, err := p.parseDottedPath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.ASSIGN_EQ); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return ast.NewSet(start, path, value), nil
}

func (p *Parser) parseDottedPath() (string, error) {
	tok, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return "", err
	}
	path := tok.Lexeme
	for p.at(token.DOT) {
		p.advance()
		t, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return "", err
		}
		path += "." + t.Lexeme
	}
	return path, nil
}

func (p *Parser) parseShow() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // SHOW
	tok, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	return ast.NewShow(start, tok.Lexeme), nil
}

// --- FOR / IF ---

func (p *Parser) parseFor() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // FOR
	if _, err := p.expect(token.EACH); err != nil {
		return nil, err
	}
	varTok, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return ast.NewFor(start, varTok.Lexeme, iterable, body), nil
}

func (p *Parser) parseIf() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // IF
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	var then, els []ast.Statement
	if p.at(token.THEN) {
		p.advance()
		then, err = p.parseBlockOrSingle()
		if err != nil {
			return nil, err
		}
	} else {
		then, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}

	if p.at(token.ELSE) {
		p.advance()
		els, err = p.parseBlockOrSingle()
		if err != nil {
			return nil, err
		}
	}
	return ast.NewIf(start, cond, then, els), nil
}

// parseBlock parses a brace-delimited statement list `{ stmt; stmt; ... }`.
func (p *Parser) parseBlock() ([]ast.Statement, error) {
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	var stmts []ast.Statement
	for !p.at(token.RBRACE) {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.at(token.SEMICOLON) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return stmts, nil
}

// parseBlockOrSingle accepts either a braced block or a single bare
// statement, as in `IF x THEN SHOW CACHE ELSE SHOW METRICS`.
func (p *Parser) parseBlockOrSingle() ([]ast.Statement, error) {
	if p.at(token.LBRACE) {
		return p.parseBlock()
	}
	s, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return []ast.Statement{s}, nil
}

// --- INSERT / UPDATE / DELETE ---

func (p *Parser) parseInsert() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // INSERT
	if _, err := p.expect(token.INTO); err != nil {
		return nil, err
	}
	tgt, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.VALUES); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var values []ast.Expression
	for !p.at(token.RPAREN) {
		v, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.at(token.COMMA) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return ast.NewInsert(start, tgt.Lexeme, values), nil
}

func (p *Parser) parseUpdate() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // UPDATE
	tgt, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SET); err != nil {
		return nil, err
	}
	var assigns []ast.Assignment
	for {
		path, err := p.parseDottedPath()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.ASSIGN_EQ); err != nil {
			return nil, err
		}
		v, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, ast.Assignment{Path: path, Value: v})
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	var where ast.Expression
	if p.at(token.WHERE) {
		p.advance()
		where, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return ast.NewUpdate(start, tgt.Lexeme, assigns, where), nil
}

func (p *Parser) parseDelete() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // DELETE
	if _, err := p.expect(token.FROM); err != nil {
		return nil, err
	}
	tgt, err := p.expect(token.IDENTIFIER)
	if err != nil {
		return nil, err
	}
	var where ast.Expression
	if p.at(token.WHERE) {
		p.advance()
		where, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return ast.NewDelete(start, tgt.Lexeme, where), nil
}

// --- WITH ---

func (p *Parser) parseWith() (ast.Statement, error) {
	start := p.cur().Position
	p.advance() // WITH
	var ctes []ast.CTE
	seen := map[string]bool{}
	for {
		nameTok, err := p.expect(token.IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if seen[nameTok.Lexeme] {
			return nil, p.errorf("duplicate CTE name %q", nameTok.Lexeme)
		}
		seen[nameTok.Lexeme] = true
		if _, err := p.expect(token.AS); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		inner, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		ctes = append(ctes, ast.CTE{Name: nameTok.Lexeme, Query: inner})
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	query, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return ast.NewWith(start, ctes, query), nil
}
