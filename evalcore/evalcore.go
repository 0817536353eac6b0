// Package evalcore holds the value-level evaluation rules shared by the
// optimizer's constant folder and the executor's runtime expression
// evaluator, so the two can never drift out of sync: evaluating a
// fully-literal expression at runtime must equal folding it. It knows nothing
// about scopes or tree walking: apart from converting single ast.Literal
// nodes to and from Values, it only applies ast.BinaryOp/ast.UnaryOp to
// typed values.
package evalcore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/types"
)

// Value pairs an inferred type with its Go runtime representation: float64
// for NUMBER, DURATION (milliseconds) and BYTES (a byte count), string for
// STRING/URL/DOCUMENT, bool for BOOLEAN, nil for NULL, []Value for ARRAY,
// map[string]Value for OBJECT.
type Value struct {
	Type types.DataType
	Val  interface{}
}

// ErrNotFoldable signals that evaluation cannot be done at compile time
// (used by the constant folder to decide "leave the node intact").
var ErrNotFoldable = fmt.Errorf("expression is not foldable")

// Binary evaluates a binary operator over two already-evaluated operands.
// Division/modulo by zero return ErrNotFoldable rather than panicking or
// producing Inf/NaN, so the constant folder leaves such expressions intact.
func Binary(op ast.BinaryOp, l, r Value) (Value, error) {
	switch op {
	case ast.OpAdd:
		if l.Type == types.STRING || r.Type == types.STRING {
			return Value{Type: types.STRING, Val: toStr(l) + toStr(r)}, nil
		}
		ln, lok := asNumber(l)
		rn, rok := asNumber(r)
		if !lok || !rok {
			return Value{}, ErrNotFoldable
		}
		return Value{Type: types.NUMBER, Val: ln + rn}, nil
	case ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		ln, lok := asNumber(l)
		rn, rok := asNumber(r)
		if !lok || !rok {
			return Value{}, ErrNotFoldable
		}
		switch op {
		case ast.OpSub:
			return Value{Type: types.NUMBER, Val: ln - rn}, nil
		case ast.OpMul:
			return Value{Type: types.NUMBER, Val: ln * rn}, nil
		case ast.OpDiv:
			if rn == 0 {
				return Value{}, ErrNotFoldable
			}
			return Value{Type: types.NUMBER, Val: ln / rn}, nil
		case ast.OpMod:
			if rn == 0 {
				return Value{}, ErrNotFoldable
			}
			return Value{Type: types.NUMBER, Val: float64(int64(ln) % int64(rn))}, nil
		}
	case ast.OpConcat:
		return Value{Type: types.STRING, Val: toStr(l) + toStr(r)}, nil
	case ast.OpAnd:
		lb, lok := asBool(l)
		rb, rok := asBool(r)
		if !lok || !rok {
			return Value{}, ErrNotFoldable
		}
		return Value{Type: types.BOOLEAN, Val: lb && rb}, nil
	case ast.OpOr:
		lb, lok := asBool(l)
		rb, rok := asBool(r)
		if !lok || !rok {
			return Value{}, ErrNotFoldable
		}
		return Value{Type: types.BOOLEAN, Val: lb || rb}, nil
	case ast.OpEq:
		return Value{Type: types.BOOLEAN, Val: equal(l, r)}, nil
	case ast.OpNeq:
		return Value{Type: types.BOOLEAN, Val: !equal(l, r)}, nil
	case ast.OpGt, ast.OpGte, ast.OpLt, ast.OpLte:
		return compareNumericOrString(op, l, r)
	case ast.OpLike, ast.OpNotLike:
		s, sok := l.Val.(string)
		pattern, pok := r.Val.(string)
		if !sok || !pok {
			return Value{}, ErrNotFoldable
		}
		re, err := CompileLikePattern(pattern)
		if err != nil {
			return Value{}, ErrNotFoldable
		}
		matched := re.MatchString(s)
		if op == ast.OpNotLike {
			matched = !matched
		}
		return Value{Type: types.BOOLEAN, Val: matched}, nil
	case ast.OpMatches:
		s, sok := l.Val.(string)
		pattern, pok := r.Val.(string)
		if !sok || !pok {
			return Value{}, ErrNotFoldable
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Value{}, ErrNotFoldable
		}
		return Value{Type: types.BOOLEAN, Val: re.MatchString(s)}, nil
	case ast.OpContains:
		s, sok := l.Val.(string)
		sub, subok := r.Val.(string)
		if sok && subok {
			return Value{Type: types.BOOLEAN, Val: strings.Contains(s, sub)}, nil
		}
		if arr, ok := l.Val.([]Value); ok {
			for _, el := range arr {
				if equal(el, r) {
					return Value{Type: types.BOOLEAN, Val: true}, nil
				}
			}
			return Value{Type: types.BOOLEAN, Val: false}, nil
		}
		return Value{}, ErrNotFoldable
	case ast.OpIn, ast.OpNotIn:
		arr, ok := r.Val.([]Value)
		if !ok {
			return Value{}, ErrNotFoldable
		}
		found := false
		for _, el := range arr {
			if equal(el, l) {
				found = true
				break
			}
		}
		if op == ast.OpNotIn {
			found = !found
		}
		return Value{Type: types.BOOLEAN, Val: found}, nil
	}
	return Value{}, ErrNotFoldable
}

// Unary evaluates a unary operator over an already-evaluated operand.
func Unary(op ast.UnaryOp, v Value) (Value, error) {
	switch op {
	case ast.OpNot:
		b, ok := asBool(v)
		if !ok {
			return Value{}, ErrNotFoldable
		}
		return Value{Type: types.BOOLEAN, Val: !b}, nil
	case ast.OpNeg:
		n, ok := asNumber(v)
		if !ok {
			return Value{}, ErrNotFoldable
		}
		return Value{Type: types.NUMBER, Val: -n}, nil
	case ast.OpPos:
		n, ok := asNumber(v)
		if !ok {
			return Value{}, ErrNotFoldable
		}
		return Value{Type: types.NUMBER, Val: n}, nil
	}
	return Value{}, ErrNotFoldable
}

func asNumber(v Value) (float64, bool) {
	n, ok := v.Val.(float64)
	return n, ok
}

func asBool(v Value) (bool, bool) {
	b, ok := v.Val.(bool)
	return b, ok
}

func toStr(v Value) string {
	switch x := v.Val.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}

func equal(l, r Value) bool {
	if l.Val == nil || r.Val == nil {
		return l.Val == nil && r.Val == nil
	}
	switch lv := l.Val.(type) {
	case float64:
		rv, ok := asNumber(r)
		return ok && lv == rv
	case string:
		rv, ok := r.Val.(string)
		return ok && lv == rv
	case bool:
		rv, ok := r.Val.(bool)
		return ok && lv == rv
	}
	return l.Val == r.Val
}

func compareNumericOrString(op ast.BinaryOp, l, r Value) (Value, error) {
	var cmp int
	if ln, lok := asNumber(l); lok {
		rn, rok := asNumber(r)
		if !rok {
			return Value{}, ErrNotFoldable
		}
		switch {
		case ln < rn:
			cmp = -1
		case ln > rn:
			cmp = 1
		}
	} else if ls, lok := l.Val.(string); lok {
		rs, rok := r.Val.(string)
		if !rok {
			return Value{}, ErrNotFoldable
		}
		cmp = strings.Compare(ls, rs)
	} else {
		return Value{}, ErrNotFoldable
	}
	var result bool
	switch op {
	case ast.OpGt:
		result = cmp > 0
	case ast.OpGte:
		result = cmp >= 0
	case ast.OpLt:
		result = cmp < 0
	case ast.OpLte:
		result = cmp <= 0
	}
	return Value{Type: types.BOOLEAN, Val: result}, nil
}

var likePatternCache sync.Map

// CompileLikePattern translates a SQL-style LIKE pattern (% -> any run of
// characters, _ -> any single character) to a compiled regular expression.
// \% and \_ escape a literal percent/underscore, per this port's decision on
// the open escaping question the distilled spec left unresolved.
func CompileLikePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := likePatternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	var sb strings.Builder
	sb.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			if i+1 < len(runes) && (runes[i+1] == '%' || runes[i+1] == '_') {
				sb.WriteString(regexp.QuoteMeta(string(runes[i+1])))
				i++
				continue
			}
			sb.WriteString(regexp.QuoteMeta(string(r)))
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, err
	}
	likePatternCache.Store(pattern, re)
	return re, nil
}

// FromLiteral converts a parsed literal node into a Value for evaluation.
func FromLiteral(lit *ast.Literal) Value {
	return Value{Type: lit.DataType, Val: lit.Value}
}

// ToLiteral converts a Value back into a literal node at the given
// position, for folding a sub-expression into a single AST node.
func ToLiteral(pos ast.Expression, v Value) *ast.Literal {
	return ast.NewLiteral(pos.Pos(), v.Type, v.Val)
}

// Truthy implements the executor's truthiness rule: true, 1, a non-empty
// string, a non-zero number, or a non-empty array/object are truthy.
func Truthy(v Value) bool {
	switch x := v.Val.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case nil:
		return false
	case []Value:
		return len(x) > 0
	case map[string]Value:
		return len(x) > 0
	default:
		return v.Val != nil
	}
}
