package parser

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/token"
	"github.com/webql/webql/types"
)

// parseExpression is the entry point for expression parsing: OR is the
// lowest-precedence level.
func (p *Parser) parseExpression() (ast.Expression, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(token.OR) {
		pos := p.cur().Position
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(pos, ast.OpOr, left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expression, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(token.AND) {
		pos := p.cur().Position
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(pos, ast.OpAnd, left, right)
	}
	return left, nil
}

// parseEquality handles =, !=, IN, NOT IN, LIKE, NOT LIKE, MATCHES, CONTAINS.
func (p *Parser) parseEquality() (ast.Expression, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur().Position
		switch p.cur().Kind {
		case token.ASSIGN_EQ:
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = ast.NewBinary(pos, ast.OpEq, left, right)
		case token.NEQ:
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = ast.NewBinary(pos, ast.OpNeq, left, right)
		case token.IN:
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = ast.NewBinary(pos, ast.OpIn, left, right)
		case token.LIKE:
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = ast.NewBinary(pos, ast.OpLike, left, right)
		case token.MATCHES:
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = ast.NewBinary(pos, ast.OpMatches, left, right)
		case token.CONTAINS:
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = ast.NewBinary(pos, ast.OpContains, left, right)
		case token.NOT:
			if op, ok := p.peekNotCompound(); ok {
				p.advance() // NOT
				p.advance() // IN or LIKE
				right, err := p.parseComparison()
				if err != nil {
					return nil, err
				}
				left = ast.NewBinary(pos, op, left, right)
				continue
			}
			return left, nil
		default:
			return left, nil
		}
	}
}

// peekNotCompound reports whether the token after NOT forms a two-word
// operator (NOT IN / NOT LIKE), returning the resulting BinaryOp.
func (p *Parser) peekNotCompound() (ast.BinaryOp, bool) {
	if p.pos+1 >= len(p.toks) {
		return 0, false
	}
	switch p.toks[p.pos+1].Kind {
	case token.IN:
		return ast.OpNotIn, true
	case token.LIKE:
		return ast.OpNotLike, true
	}
	return 0, false
}

func (p *Parser) parseComparison() (ast.Expression, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur().Position
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.GT:
			op = ast.OpGt
		case token.GTE:
			op = ast.OpGte
		case token.LT:
			op = ast.OpLt
		case token.LTE:
			op = ast.OpLte
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(pos, op, left, right)
	}
}

func (p *Parser) parseConcat() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(token.CONCAT) {
		pos := p.cur().Position
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(pos, ast.OpConcat, left, right)
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur().Position
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.PLUS:
			op = ast.OpAdd
		case token.MINUS:
			op = ast.OpSub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(pos, op, left, right)
	}
}

func (p *Parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur().Position
		var op ast.BinaryOp
		switch p.cur().Kind {
		case token.STAR:
			op = ast.OpMul
		case token.SLASH:
			op = ast.OpDiv
		case token.PERCENT:
			op = ast.OpMod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinary(pos, op, left, right)
	}
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	pos := p.cur().Position
	switch p.cur().Kind {
	case token.NOT:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnary(pos, ast.OpNot, operand), nil
	case token.MINUS:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnary(pos, ast.OpNeg, operand), nil
	case token.PLUS:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnary(pos, ast.OpPos, operand), nil
	default:
		return p.parseCallOrMember()
	}
}

// parseCallOrMember parses a primary expression followed by any chain of
// `.prop`, `[expr]`, or `(args)` postfix operators.
func (p *Parser) parseCallOrMember() (ast.Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur().Position
		switch p.cur().Kind {
		case token.DOT:
			p.advance()
			propTok, err := p.expect(token.IDENTIFIER)
			if err != nil {
				return nil, err
			}
			expr = ast.NewMember(pos, expr, ast.NewIdentifier(propTok.Position, propTok.Lexeme), false)
		case token.LBRACKET:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			expr = ast.NewMember(pos, expr, index, true)
		case token.LPAREN:
			if ident, ok := expr.(*ast.Identifier); ok {
				p.advance()
				args, err := p.parseArgList()
				if err != nil {
					return nil, err
				}
				expr = ast.NewCall(pos, ident.Name, args)
				continue
			}
			return expr, nil
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArgList() ([]ast.Expression, error) {
	var args []ast.Expression
	for !p.at(token.RPAREN) {
		a, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	tok := p.cur()
	switch tok.Kind {
	case token.NUMBER:
		p.advance()
		if strings.ContainsAny(tok.Lexeme, ".eE") {
			v, err := strconv.ParseFloat(tok.Lexeme, 64)
			if err != nil {
				return nil, p.errorf("invalid number literal %q", tok.Lexeme)
			}
			return ast.NewLiteral(tok.Position, types.NUMBER, v), nil
		}
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid number literal %q", tok.Lexeme)
		}
		return ast.NewLiteral(tok.Position, types.NUMBER, float64(v)), nil
	case token.STRING:
		p.advance()
		return ast.NewLiteral(tok.Position, types.STRING, tok.Lexeme), nil
	case token.BOOLEAN:
		p.advance()
		return ast.NewLiteral(tok.Position, types.BOOLEAN, strings.EqualFold(tok.Lexeme, "true")), nil
	case token.NULL:
		p.advance()
		return ast.NewLiteral(tok.Position, types.NULL, nil), nil
	case token.DURATION:
		p.advance()
		ms, err := parseDurationMillis(tok.Lexeme)
		if err != nil {
			return nil, p.errorf("%s", err.Error())
		}
		return ast.NewLiteral(tok.Position, types.DURATION, ms), nil
	case token.BYTES:
		p.advance()
		b, err := parseByteCount(tok.Lexeme)
		if err != nil {
			return nil, p.errorf("%s", err.Error())
		}
		return ast.NewLiteral(tok.Position, types.BYTES, b), nil
	case token.IDENTIFIER:
		p.advance()
		return ast.NewIdentifier(tok.Position, tok.Lexeme), nil
	case token.LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	case token.LBRACKET:
		p.advance()
		var elems []ast.Expression
		for !p.at(token.RBRACKET) {
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.at(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(token.RBRACKET); err != nil {
			return nil, err
		}
		return ast.NewArray(tok.Position, elems), nil
	case token.LBRACE:
		return p.parseObjectLiteral()
	default:
		return nil, p.errorf("unexpected token %s %q in expression", tok.Kind, tok.Lexeme)
	}
}

func (p *Parser) parseObjectLiteral() (ast.Expression, error) {
	start := p.cur().Position
	p.advance() // '{'
	var props []ast.ObjectProperty
	for !p.at(token.RBRACE) {
		var key string
		switch p.cur().Kind {
		case token.IDENTIFIER:
			key = p.advance().Lexeme
		case token.STRING:
			key = p.advance().Lexeme
		default:
			return nil, p.errorf("expected object property key")
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		v, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		props = append(props, ast.ObjectProperty{Key: key, Value: v})
		if p.at(token.COMMA) {
			p.advance()
		}
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return ast.NewObject(start, props), nil
}

// parseDurationMillis converts a DURATION lexeme (e.g. "500ms", "5s", "2m",
// "1h") into a millisecond count.
func parseDurationMillis(lexeme string) (float64, error) {
	unit := "ms"
	numPart := lexeme
	for _, u := range []string{"ms", "s", "m", "h"} {
		if strings.HasSuffix(lexeme, u) {
			unit = u
			numPart = strings.TrimSuffix(lexeme, u)
			break
		}
	}
	n, err := cast.ToFloat64E(numPart)
	if err != nil {
		return 0, err
	}
	switch unit {
	case "ms":
		return n, nil
	case "s":
		return n * 1000, nil
	case "m":
		return n * 60 * 1000, nil
	case "h":
		return n * 60 * 60 * 1000, nil
	}
	return n, nil
}

// parseByteCount converts a BYTES lexeme (e.g. "10KB") into a byte count.
func parseByteCount(lexeme string) (float64, error) {
	unit := "KB"
	numPart := lexeme
	for _, u := range []string{"KB", "MB", "GB"} {
		if strings.HasSuffix(lexeme, u) {
			unit = u
			numPart = strings.TrimSuffix(lexeme, u)
			break
		}
	}
	n, err := cast.ToFloat64E(numPart)
	if err != nil {
		return 0, err
	}
	switch unit {
	case "KB":
		return n * 1024, nil
	case "MB":
		return n * 1024 * 1024, nil
	case "GB":
		return n * 1024 * 1024 * 1024, nil
	}
	return n, nil
}
