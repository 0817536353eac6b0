package optimizer

import "github.com/webql/webql/ast"

// eliminateDeadCode collapses IF with a constant boolean condition to its
// taken branch, drops FOR over a literal empty array, and collapses WITH
// whose CTEs are all eliminated. Runs after constant folding so conditions
// folded to a Literal in this same Optimize call are caught immediately.
//
// A collapsed IF branch can only replace the IF node one-for-one when it
// holds exactly one statement: this AST has no block-statement node, so a
// multi-statement branch has nowhere to go but the IF's own Then/Else
// slices. Multi-statement branches are still pruned down to a single
// constant-condition IF (the untaken branch is dropped), just not folded
// away entirely.
func eliminateDeadCode(stmt ast.Statement) (ast.Statement, bool) {
	switch n := stmt.(type) {
	case *ast.If:
		then, thenChanged := eliminateInBlock(n.Then)
		els, elsChanged := eliminateInBlock(n.Else)
		changed := thenChanged || elsChanged

		if lit, ok := n.Condition.(*ast.Literal); ok {
			if b, isBool := lit.Value.(bool); isBool {
				if b {
					if len(then) == 1 {
						return then[0], true
					}
					return ast.NewIf(n.Pos(), n.Condition, then, nil), true
				}
				if len(els) == 0 {
					return nil, true
				}
				if len(els) == 1 {
					return els[0], true
				}
				// invert the condition and keep only the else branch
				return ast.NewIf(n.Pos(), ast.NewUnary(n.Condition.Pos(), ast.OpNot, n.Condition), els, nil), true
			}
		}
		if changed {
			return ast.NewIf(n.Pos(), n.Condition, then, els), true
		}
		return n, false

	case *ast.For:
		body, bodyChanged := eliminateInBlock(n.Body)
		if arr, ok := n.Iterable.(*ast.Array); ok && len(arr.Elements) == 0 {
			return nil, true
		}
		if bodyChanged {
			return ast.NewFor(n.Pos(), n.Variable, n.Iterable, body), true
		}
		return n, false

	case *ast.With:
		ctes := make([]ast.CTE, 0, len(n.CTEs))
		changed := false
		for _, cte := range n.CTEs {
			rewritten, c := eliminateDeadCode(cte.Query)
			if c {
				changed = true
			}
			if rewritten == nil {
				continue
			}
			ctes = append(ctes, ast.CTE{Name: cte.Name, Query: rewritten})
		}
		query, qc := eliminateDeadCode(n.Query)
		if query == nil {
			return nil, true
		}
		if len(ctes) == 0 {
			return query, true
		}
		if len(ctes) != len(n.CTEs) || changed || qc {
			return ast.NewWith(n.Pos(), ctes, query), true
		}
		return n, false

	case *ast.Select:
		if n.From.Subquery != nil {
			sub, changed := eliminateDeadCode(n.From.Subquery)
			if changed {
				from := n.From
				from.Subquery = sub
				return ast.NewSelect(n.Pos(), n.Fields, from, n.Where, n.OrderBy, n.Limit, n.Offset), true
			}
		}
		return n, false
	}
	return stmt, false
}

func eliminateInBlock(body []ast.Statement) ([]ast.Statement, bool) {
	if body == nil {
		return nil, false
	}
	out := make([]ast.Statement, 0, len(body))
	changed := false
	for _, s := range body {
		rewritten, c := eliminateDeadCode(s)
		if c {
			changed = true
		}
		if rewritten != nil {
			out = append(out, rewritten)
		} else {
			changed = true
		}
	}
	return out, changed
}
