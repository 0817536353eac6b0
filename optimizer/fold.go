package optimizer

import (
	"github.com/webql/webql/ast"
	"github.com/webql/webql/evalcore"
)

// foldConstants recursively evaluates BINARY/UNARY nodes whose operands are
// all LITERAL, replacing them with a single Literal node. ARRAY, OBJECT,
// CALL and MEMBER nodes get their children folded but are kept as nodes of
// their own kind, never collapsed into a Literal.
// Division/modulo by zero and any other non-foldable operation leave the
// node intact (evalcore.ErrNotFoldable is exactly "leave this node alone").
func foldConstants(stmt ast.Statement) (ast.Statement, bool) {
	changed := false
	result := mapStatement(stmt, func(e ast.Expression) ast.Expression {
		folded, did := foldExpression(e)
		if did {
			changed = true
		}
		return folded
	})
	return result, changed
}

func foldExpression(expr ast.Expression) (ast.Expression, bool) {
	switch n := expr.(type) {
	case *ast.Binary:
		left, lc := foldExpression(n.Left)
		right, rc := foldExpression(n.Right)
		changed := lc || rc
		ll, lok := left.(*ast.Literal)
		rl, rok := right.(*ast.Literal)
		if lok && rok {
			v, err := evalcore.Binary(n.Op, evalcore.FromLiteral(ll), evalcore.FromLiteral(rl))
			if err == nil {
				return evalcore.ToLiteral(n, v), true
			}
		}
		if changed {
			return ast.NewBinary(n.Pos(), n.Op, left, right), true
		}
		return n, false
	case *ast.Unary:
		operand, oc := foldExpression(n.Operand)
		if ol, ok := operand.(*ast.Literal); ok {
			v, err := evalcore.Unary(n.Op, evalcore.FromLiteral(ol))
			if err == nil {
				return evalcore.ToLiteral(n, v), true
			}
		}
		if oc {
			return ast.NewUnary(n.Pos(), n.Op, operand), true
		}
		return n, false
	case *ast.Array:
		changed := false
		elems := make([]ast.Expression, len(n.Elements))
		for i, el := range n.Elements {
			folded, c := foldExpression(el)
			elems[i] = folded
			changed = changed || c
		}
		if !changed {
			return n, false
		}
		return ast.NewArray(n.Pos(), elems), true
	case *ast.Object:
		changed := false
		props := make([]ast.ObjectProperty, len(n.Properties))
		for i, p := range n.Properties {
			folded, c := foldExpression(p.Value)
			props[i] = ast.ObjectProperty{Key: p.Key, Value: folded}
			changed = changed || c
		}
		if !changed {
			return n, false
		}
		return ast.NewObject(n.Pos(), props), true
	case *ast.Call:
		changed := false
		args := make([]ast.Expression, len(n.Args))
		for i, a := range n.Args {
			folded, c := foldExpression(a)
			args[i] = folded
			changed = changed || c
		}
		if !changed {
			return n, false
		}
		return ast.NewCall(n.Pos(), n.Callee, args), true
	case *ast.Member:
		obj, oc := foldExpression(n.Object)
		prop := n.Property
		pc := false
		if n.Computed {
			prop, pc = foldExpression(n.Property)
		}
		if !oc && !pc {
			return n, false
		}
		return ast.NewMember(n.Pos(), obj, prop, n.Computed), true
	default:
		return expr, false
	}
}
