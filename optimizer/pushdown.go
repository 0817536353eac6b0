package optimizer

import "github.com/webql/webql/ast"

// pushdownPredicates implements predicate pushdown: for SELECT ... FROM
// (subquery) WHERE P, split P at AND boundaries and move every conjunct
// whose identifiers are all drawn from the subquery's output field names
// into the subquery's own WHERE (combined with AND), leaving the rest on
// the outer WHERE.
func pushdownPredicates(stmt ast.Statement) (ast.Statement, bool) {
	switch n := stmt.(type) {
	case *ast.Select:
		sub, subChanged := pushdownPredicates(n.From.Subquery)
		if n.From.Subquery == nil || n.Where == nil {
			if subChanged {
				from := n.From
				from.Subquery = sub
				return ast.NewSelect(n.Pos(), n.Fields, from, n.Where, n.OrderBy, n.Limit, n.Offset), true
			}
			return n, false
		}
		subSelect, ok := sub.(*ast.Select)
		if !ok {
			return n, false
		}

		outputNames := map[string]bool{}
		allFields := false
		for _, f := range subSelect.Fields {
			if f.Name == "*" {
				allFields = true
			}
			outputNames[f.Name] = true
		}
		if allFields {
			// pushing a predicate referencing "*" columns we can't enumerate
			// would silently assume field availability; never pushed.
			return n, false
		}

		pushable, remaining := splitConjuncts(n.Where, outputNames)
		if len(pushable) == 0 {
			return n, false
		}

		newSubWhere := subSelect.Where
		for _, p := range pushable {
			if newSubWhere == nil {
				newSubWhere = p
			} else {
				newSubWhere = ast.NewBinary(p.Pos(), ast.OpAnd, newSubWhere, p)
			}
		}
		newSub := ast.NewSelect(subSelect.Pos(), subSelect.Fields, subSelect.From, newSubWhere, subSelect.OrderBy, subSelect.Limit, subSelect.Offset)

		from := n.From
		from.Subquery = newSub
		return ast.NewSelect(n.Pos(), n.Fields, from, remaining, n.OrderBy, n.Limit, n.Offset), true

	default:
		children := childStatements(stmt)
		if len(children) == 0 {
			return stmt, false
		}
		return rewriteChildren(stmt, pushdownPredicates)
	}
}

// splitConjuncts flattens expr at top-level AND boundaries and partitions
// the conjuncts into those whose identifiers are all in allowed, and the
// AND-combination of the rest. A conjunct referencing any unknown name is
// never pushed.
func splitConjuncts(expr ast.Expression, allowed map[string]bool) (pushable []ast.Expression, remaining ast.Expression) {
	for _, conjunct := range flattenAnd(expr) {
		ids := map[string]bool{}
		collectIdentifiers(conjunct, ids)
		ok := true
		for id := range ids {
			if !allowed[id] {
				ok = false
				break
			}
		}
		if ok && len(ids) > 0 {
			pushable = append(pushable, conjunct)
			continue
		}
		if remaining == nil {
			remaining = conjunct
		} else {
			remaining = ast.NewBinary(conjunct.Pos(), ast.OpAnd, remaining, conjunct)
		}
	}
	return pushable, remaining
}

func flattenAnd(expr ast.Expression) []ast.Expression {
	if b, ok := expr.(*ast.Binary); ok && b.Op == ast.OpAnd {
		return append(flattenAnd(b.Left), flattenAnd(b.Right)...)
	}
	return []ast.Expression{expr}
}

// pushdownProjection implements projection pushdown: for SELECT ... FROM
// (subquery), compute the field names the outer query actually references
// and prune subquery fields not in that set. Never prunes a subquery
// selecting "*", and never prunes down to zero fields.
func pushdownProjection(stmt ast.Statement) (ast.Statement, bool) {
	sel, ok := stmt.(*ast.Select)
	if !ok {
		children := childStatements(stmt)
		if len(children) == 0 {
			return stmt, false
		}
		return rewriteChildren(stmt, pushdownProjection)
	}
	if sel.From.Subquery == nil {
		return sel, false
	}
	subSelect, ok := sel.From.Subquery.(*ast.Select)
	if !ok {
		inner, changed := pushdownProjection(sel.From.Subquery)
		if !changed {
			return sel, false
		}
		from := sel.From
		from.Subquery = inner
		return ast.NewSelect(sel.Pos(), sel.Fields, from, sel.Where, sel.OrderBy, sel.Limit, sel.Offset), true
	}

	for _, f := range subSelect.Fields {
		if f.Name == "*" {
			return sel, false
		}
	}

	referenced := map[string]bool{}
	for _, f := range sel.Fields {
		collectIdentifiers(f.Expr, referenced)
	}
	if sel.Where != nil {
		collectIdentifiers(sel.Where, referenced)
	}
	for _, ob := range sel.OrderBy {
		collectIdentifiers(ob.Field, referenced)
	}

	pruned := make([]ast.Field, 0, len(subSelect.Fields))
	for _, f := range subSelect.Fields {
		if referenced[f.Name] {
			pruned = append(pruned, f)
		}
	}
	if len(pruned) == 0 || len(pruned) == len(subSelect.Fields) {
		return sel, false
	}

	newSub := ast.NewSelect(subSelect.Pos(), pruned, subSelect.From, subSelect.Where, subSelect.OrderBy, subSelect.Limit, subSelect.Offset)
	from := sel.From
	from.Subquery = newSub
	return ast.NewSelect(sel.Pos(), sel.Fields, from, sel.Where, sel.OrderBy, sel.Limit, sel.Offset), true
}

// rewriteChildren applies pass to every nested statement of stmt (FOR body,
// IF branches, WITH's CTEs/query) and rebuilds stmt if anything changed.
func rewriteChildren(stmt ast.Statement, pass func(ast.Statement) (ast.Statement, bool)) (ast.Statement, bool) {
	switch n := stmt.(type) {
	case *ast.For:
		body := make([]ast.Statement, len(n.Body))
		changed := false
		for i, s := range n.Body {
			r, c := pass(s)
			body[i] = r
			changed = changed || c
		}
		if !changed {
			return n, false
		}
		return ast.NewFor(n.Pos(), n.Variable, n.Iterable, body), true
	case *ast.If:
		then := make([]ast.Statement, len(n.Then))
		changed := false
		for i, s := range n.Then {
			r, c := pass(s)
			then[i] = r
			changed = changed || c
		}
		var els []ast.Statement
		if n.Else != nil {
			els = make([]ast.Statement, len(n.Else))
			for i, s := range n.Else {
				r, c := pass(s)
				els[i] = r
				changed = changed || c
			}
		}
		if !changed {
			return n, false
		}
		return ast.NewIf(n.Pos(), n.Condition, then, els), true
	case *ast.With:
		ctes := make([]ast.CTE, len(n.CTEs))
		changed := false
		for i, cte := range n.CTEs {
			r, c := pass(cte.Query)
			ctes[i] = ast.CTE{Name: cte.Name, Query: r}
			changed = changed || c
		}
		query, qc := pass(n.Query)
		if !changed && !qc {
			return n, false
		}
		return ast.NewWith(n.Pos(), ctes, query), true
	}
	return stmt, false
}
