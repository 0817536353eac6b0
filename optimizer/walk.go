package optimizer

import "github.com/webql/webql/ast"

// mapStatement rewrites every expression reachable from stmt by applying f,
// rebuilding statement nodes only where a child actually changed. This is
// the one place passes that need "touch every expression in the tree" share
// traversal logic.
func mapStatement(stmt ast.Statement, f func(ast.Expression) ast.Expression) ast.Statement {
	switch n := stmt.(type) {
	case nil:
		return nil
	case *ast.Select:
		fields := make([]ast.Field, len(n.Fields))
		for i, fld := range n.Fields {
			fields[i] = ast.Field{Expr: f(fld.Expr), Alias: fld.Alias, Name: fld.Name, Path: fld.Path}
		}
		from := n.From
		if from.Subquery != nil {
			from.Subquery = mapStatement(from.Subquery, f)
		}
		where := n.Where
		if where != nil {
			where = f(where)
		}
		orderBy := make([]ast.SortField, len(n.OrderBy))
		for i, ob := range n.OrderBy {
			orderBy[i] = ast.SortField{Field: f(ob.Field), Descending: ob.Descending}
		}
		return ast.NewSelect(n.Pos(), fields, from, where, orderBy, n.Limit, n.Offset)
	case *ast.Navigate:
		url := f(n.URL)
		var opts *ast.NavigateOptions
		if n.Options != nil {
			opts = &ast.NavigateOptions{
				Proxy:      mapExprMap(n.Options.Proxy, f),
				Browser:    mapExprMap(n.Options.Browser, f),
				WaitFor:    mapMaybe(n.Options.WaitFor, f),
				WaitUntil:  mapMaybe(n.Options.WaitUntil, f),
				Timeout:    mapMaybe(n.Options.Timeout, f),
				Screenshot: mapMaybe(n.Options.Screenshot, f),
			}
		}
		capture := make([]ast.Field, len(n.Capture))
		for i, c := range n.Capture {
			capture[i] = ast.Field{Expr: f(c.Expr), Alias: c.Alias, Name: c.Name, Path: c.Path}
		}
		return ast.NewNavigate(n.Pos(), url, opts, capture)
	case *ast.Set:
		return ast.NewSet(n.Pos(), n.Path, f(n.Value))
	case *ast.Show:
		return n
	case *ast.For:
		body := make([]ast.Statement, len(n.Body))
		for i, s := range n.Body {
			body[i] = mapStatement(s, f)
		}
		return ast.NewFor(n.Pos(), n.Variable, f(n.Iterable), body)
	case *ast.If:
		then := make([]ast.Statement, len(n.Then))
		for i, s := range n.Then {
			then[i] = mapStatement(s, f)
		}
		var els []ast.Statement
		if n.Else != nil {
			els = make([]ast.Statement, len(n.Else))
			for i, s := range n.Else {
				els[i] = mapStatement(s, f)
			}
		}
		return ast.NewIf(n.Pos(), f(n.Condition), then, els)
	case *ast.Insert:
		values := make([]ast.Expression, len(n.Values))
		for i, v := range n.Values {
			values[i] = f(v)
		}
		return ast.NewInsert(n.Pos(), n.Target, values)
	case *ast.Update:
		assignments := make([]ast.Assignment, len(n.Assignments))
		for i, a := range n.Assignments {
			assignments[i] = ast.Assignment{Path: a.Path, Value: f(a.Value)}
		}
		return ast.NewUpdate(n.Pos(), n.Target, assignments, mapMaybe(n.Where, f))
	case *ast.Delete:
		return ast.NewDelete(n.Pos(), n.Target, mapMaybe(n.Where, f))
	case *ast.With:
		ctes := make([]ast.CTE, len(n.CTEs))
		for i, cte := range n.CTEs {
			ctes[i] = ast.CTE{Name: cte.Name, Query: mapStatement(cte.Query, f)}
		}
		return ast.NewWith(n.Pos(), ctes, mapStatement(n.Query, f))
	}
	return stmt
}

func mapMaybe(e ast.Expression, f func(ast.Expression) ast.Expression) ast.Expression {
	if e == nil {
		return nil
	}
	return f(e)
}

func mapExprMap(m map[string]ast.Expression, f func(ast.Expression) ast.Expression) map[string]ast.Expression {
	if m == nil {
		return nil
	}
	out := make(map[string]ast.Expression, len(m))
	for k, v := range m {
		out[k] = f(v)
	}
	return out
}

// childStatements returns the immediate nested statements of stmt (THEN/ELSE
// blocks, FOR bodies, subqueries, CTE queries), used by the non-mutating
// analysis passes to recurse without rewriting.
func childStatements(stmt ast.Statement) []ast.Statement {
	switch n := stmt.(type) {
	case *ast.Select:
		if n.From.Subquery != nil {
			return []ast.Statement{n.From.Subquery}
		}
	case *ast.For:
		return n.Body
	case *ast.If:
		out := append([]ast.Statement{}, n.Then...)
		return append(out, n.Else...)
	case *ast.With:
		out := make([]ast.Statement, 0, len(n.CTEs)+1)
		for _, cte := range n.CTEs {
			out = append(out, cte.Query)
		}
		return append(out, n.Query)
	}
	return nil
}
