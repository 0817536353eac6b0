package ast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/webql/webql/token"
	"github.com/webql/webql/types"
)

// Print renders a Statement back to canonical WebQL source text. The output
// re-parses to a structurally equal tree: parenthesization is derived from
// the same precedence table the parser climbs, string literals re-escape the
// lexer's escape set, and map-valued NAVIGATE options are emitted in sorted
// key order so printing is deterministic.
func Print(s Statement) string {
	var b strings.Builder
	printStatement(&b, s)
	return b.String()
}

// PrintExpression renders a single Expression to canonical WebQL source.
func PrintExpression(e Expression) string {
	var b strings.Builder
	printExpr(&b, e)
	return b.String()
}

func printStatement(b *strings.Builder, s Statement) {
	switch n := s.(type) {
	case *Select:
		b.WriteString("SELECT ")
		printFieldList(b, n.Fields)
		b.WriteString(" FROM ")
		printSource(b, n.From)
		if n.Where != nil {
			b.WriteString(" WHERE ")
			printExpr(b, n.Where)
		}
		if len(n.OrderBy) > 0 {
			b.WriteString(" ORDER BY ")
			for i, k := range n.OrderBy {
				if i > 0 {
					b.WriteString(", ")
				}
				printExpr(b, k.Field)
				if k.Descending {
					b.WriteString(" DESC")
				}
			}
		}
		if n.Limit != nil {
			fmt.Fprintf(b, " LIMIT %d", *n.Limit)
			if n.Offset != nil {
				fmt.Fprintf(b, " OFFSET %d", *n.Offset)
			}
		}
	case *Navigate:
		b.WriteString("NAVIGATE TO ")
		printExpr(b, n.URL)
		if n.Options != nil {
			b.WriteString(" WITH ")
			printNavigateOptions(b, n.Options)
		}
		if len(n.Capture) > 0 {
			b.WriteString(" CAPTURE ")
			printFieldList(b, n.Capture)
		}
	case *Set:
		b.WriteString("SET ")
		b.WriteString(n.Path)
		b.WriteString(" = ")
		printExpr(b, n.Value)
	case *Show:
		b.WriteString("SHOW ")
		b.WriteString(n.Name)
	case *For:
		b.WriteString("FOR EACH ")
		b.WriteString(n.Variable)
		b.WriteString(" IN ")
		printExpr(b, n.Iterable)
		b.WriteString(" ")
		printBlock(b, n.Body)
	case *If:
		b.WriteString("IF ")
		printExpr(b, n.Condition)
		b.WriteString(" THEN ")
		printBlock(b, n.Then)
		if n.Else != nil {
			b.WriteString(" ELSE ")
			printBlock(b, n.Else)
		}
	case *Insert:
		b.WriteString("INSERT INTO ")
		b.WriteString(n.Target)
		b.WriteString(" VALUES (")
		for i, v := range n.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			printExpr(b, v)
		}
		b.WriteString(")")
	case *Update:
		b.WriteString("UPDATE ")
		b.WriteString(n.Target)
		b.WriteString(" SET ")
		for i, a := range n.Assignments {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.Path)
			b.WriteString(" = ")
			printExpr(b, a.Value)
		}
		if n.Where != nil {
			b.WriteString(" WHERE ")
			printExpr(b, n.Where)
		}
	case *Delete:
		b.WriteString("DELETE FROM ")
		b.WriteString(n.Target)
		if n.Where != nil {
			b.WriteString(" WHERE ")
			printExpr(b, n.Where)
		}
	case *With:
		b.WriteString("WITH ")
		for i, cte := range n.CTEs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(cte.Name)
			b.WriteString(" AS (")
			printStatement(b, cte.Query)
			b.WriteString(")")
		}
		b.WriteString(" ")
		printStatement(b, n.Query)
	}
}

func printBlock(b *strings.Builder, stmts []Statement) {
	b.WriteString("{ ")
	for i, s := range stmts {
		if i > 0 {
			b.WriteString("; ")
		}
		printStatement(b, s)
	}
	b.WriteString(" }")
}

func printFieldList(b *strings.Builder, fields []Field) {
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		printExpr(b, f.Expr)
		if f.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(f.Alias)
		}
	}
}

func printSource(b *strings.Builder, src Source) {
	switch {
	case src.URL != nil:
		s, _ := src.URL.Value.(string)
		b.WriteString(quoteString(s))
	case src.Subquery != nil:
		b.WriteString("(")
		printStatement(b, src.Subquery)
		b.WriteString(")")
	default:
		b.WriteString(src.Variable)
	}
}

func printNavigateOptions(b *strings.Builder, o *NavigateOptions) {
	b.WriteString("{")
	first := true
	entry := func(key string) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(key)
		b.WriteString(": ")
	}
	if o.Proxy != nil {
		entry("proxy")
		printOptionMap(b, o.Proxy)
	}
	if o.Browser != nil {
		entry("browser")
		printOptionMap(b, o.Browser)
	}
	if o.WaitFor != nil {
		entry("waitFor")
		printExpr(b, o.WaitFor)
	}
	if o.WaitUntil != nil {
		entry("waitUntil")
		printExpr(b, o.WaitUntil)
	}
	if o.Timeout != nil {
		entry("timeout")
		printExpr(b, o.Timeout)
	}
	if o.Screenshot != nil {
		entry("screenshot")
		printExpr(b, o.Screenshot)
	}
	b.WriteString("}")
}

func printOptionMap(b *strings.Builder, m map[string]Expression) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		printExpr(b, m[k])
	}
	b.WriteString("}")
}

// Precedence levels mirror the parser's climbing order; a child is
// parenthesized when its level binds looser than its parent's.
func binaryPrec(op BinaryOp) int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNeq, OpIn, OpNotIn, OpLike, OpNotLike, OpMatches, OpContains:
		return 3
	case OpGt, OpGte, OpLt, OpLte:
		return 4
	case OpConcat:
		return 5
	case OpAdd, OpSub:
		return 6
	case OpMul, OpDiv, OpMod:
		return 7
	}
	return 7
}

const (
	unaryPrec   = 8
	postfixPrec = 9
)

func exprPrec(e Expression) int {
	switch n := e.(type) {
	case *Binary:
		return binaryPrec(n.Op)
	case *Unary:
		return unaryPrec
	default:
		return postfixPrec
	}
}

func printExpr(b *strings.Builder, e Expression) {
	switch n := e.(type) {
	case *Literal:
		b.WriteString(formatLiteral(n))
	case *Identifier:
		b.WriteString(n.Name)
	case *Binary:
		prec := binaryPrec(n.Op)
		printChild(b, n.Left, prec, false)
		b.WriteString(" ")
		b.WriteString(n.Op.String())
		b.WriteString(" ")
		// Every binary level is left-associative, so an equal-precedence
		// right child must keep its parentheses.
		printChild(b, n.Right, prec, true)
	case *Unary:
		switch n.Op {
		case OpNot:
			b.WriteString("NOT ")
		case OpNeg:
			b.WriteString("-")
		case OpPos:
			b.WriteString("+")
		}
		// A nested sign would lex as `--` (a comment), so nested unaries
		// are always parenthesized.
		_, nested := n.Operand.(*Unary)
		if nested || exprPrec(n.Operand) < unaryPrec {
			b.WriteString("(")
			printExpr(b, n.Operand)
			b.WriteString(")")
		} else {
			printExpr(b, n.Operand)
		}
	case *Call:
		b.WriteString(n.Callee)
		b.WriteString("(")
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			printExpr(b, a)
		}
		b.WriteString(")")
	case *Member:
		if exprPrec(n.Object) < postfixPrec {
			b.WriteString("(")
			printExpr(b, n.Object)
			b.WriteString(")")
		} else {
			printExpr(b, n.Object)
		}
		if n.Computed {
			b.WriteString("[")
			printExpr(b, n.Property)
			b.WriteString("]")
		} else {
			b.WriteString(".")
			printExpr(b, n.Property)
		}
	case *Array:
		b.WriteString("[")
		for i, el := range n.Elements {
			if i > 0 {
				b.WriteString(", ")
			}
			printExpr(b, el)
		}
		b.WriteString("]")
	case *Object:
		b.WriteString("{")
		for i, p := range n.Properties {
			if i > 0 {
				b.WriteString(", ")
			}
			if isIdentName(p.Key) {
				b.WriteString(p.Key)
			} else {
				b.WriteString(quoteString(p.Key))
			}
			b.WriteString(": ")
			printExpr(b, p.Value)
		}
		b.WriteString("}")
	}
}

func printChild(b *strings.Builder, child Expression, parentPrec int, right bool) {
	childPrec := exprPrec(child)
	need := childPrec < parentPrec || (right && childPrec == parentPrec)
	if need {
		b.WriteString("(")
		printExpr(b, child)
		b.WriteString(")")
		return
	}
	printExpr(b, child)
}

func formatLiteral(l *Literal) string {
	switch l.DataType {
	case types.NULL:
		return "NULL"
	case types.BOOLEAN:
		if v, _ := l.Value.(bool); v {
			return "TRUE"
		}
		return "FALSE"
	case types.NUMBER:
		return formatNumber(literalFloat(l.Value))
	case types.DURATION:
		return formatNumber(literalFloat(l.Value)) + "ms"
	case types.BYTES:
		return formatNumber(literalFloat(l.Value)/1024) + "KB"
	case types.STRING, types.URL, types.DOCUMENT:
		s, _ := l.Value.(string)
		return quoteString(s)
	default:
		return quoteString(fmt.Sprint(l.Value))
	}
}

func literalFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) && v < 1e15 && v > -1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\x00':
			b.WriteString(`\0`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\v':
			b.WriteString(`\v`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// isIdentName reports whether s can be printed as a bare object-literal key:
// identifier-shaped and not a reserved word (a bare `from` or `true` would
// lex as a keyword or boolean and break re-parsing).
func isIdentName(s string) bool {
	if s == "" {
		return false
	}
	upper := strings.ToUpper(s)
	if upper == "TRUE" || upper == "FALSE" || token.Lookup(upper) != token.IDENTIFIER {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
