package optimizer

import "github.com/webql/webql/ast"

// detectParallelGroups identifies statements within the same block (a FOR
// body, an IF branch, a WITH's CTE list) whose dependency sets are
// disjoint and can therefore run concurrently. The planner consumes these
// groups to decide fan-out; this pass never rewrites the tree.
//
// Two statements are independent when neither reads a variable the other
// writes and neither writes the same variable, approximated here by the
// set of bare identifiers each one references (reads) versus the dotted
// path each SET/assignment targets (writes) - which is exactly the
// information a NAVIGATE-in-a-loop fan-out needs: distinct loop iterations
// touch disjoint loop-variable bindings and write no shared state.
func detectParallelGroups(stmt ast.Statement) [][]ast.Statement {
	var groups [][]ast.Statement

	var visitBlock func(block []ast.Statement)
	visitBlock = func(block []ast.Statement) {
		if group := disjointGroup(block); len(group) > 1 {
			groups = append(groups, group)
		}
		for _, s := range block {
			for _, child := range childStatements(s) {
				visitBlock([]ast.Statement{child})
			}
		}
	}

	switch n := stmt.(type) {
	case *ast.For:
		// A single FOR body is one template statement executed once per
		// iteration; the parallel unit is "the iterations", which the
		// planner materializes from the iterable, not from the AST here.
		// What this pass can see statically is whether the body itself is
		// internally free of cross-statement dependencies.
		if group := disjointGroup(n.Body); len(group) > 1 {
			groups = append(groups, group)
		}
		for _, s := range n.Body {
			for _, child := range childStatements(s) {
				visitBlock([]ast.Statement{child})
			}
		}
	case *ast.If:
		if group := disjointGroup(n.Then); len(group) > 1 {
			groups = append(groups, group)
		}
		if group := disjointGroup(n.Else); len(group) > 1 {
			groups = append(groups, group)
		}
	case *ast.With:
		block := make([]ast.Statement, 0, len(n.CTEs))
		for _, cte := range n.CTEs {
			block = append(block, cte.Query)
		}
		if group := disjointGroup(block); len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// disjointGroup returns the subset of block whose read/write sets are all
// pairwise disjoint - i.e. the statements in block form a single group that
// could all run concurrently. Conservative: if any pair conflicts, no group
// is reported for this block (the planner's dependency graph, not this
// pass, handles partial independence within a mixed block).
func disjointGroup(block []ast.Statement) []ast.Statement {
	if len(block) < 2 {
		return nil
	}
	reads := make([]map[string]bool, len(block))
	writes := make([]map[string]bool, len(block))
	for i, s := range block {
		reads[i], writes[i] = readWriteSets(s)
	}
	for i := range block {
		for j := range block {
			if i == j {
				continue
			}
			if conflicts(reads[i], writes[i], reads[j], writes[j]) {
				return nil
			}
		}
	}
	return block
}

func conflicts(readsA, writesA, readsB, writesB map[string]bool) bool {
	for w := range writesA {
		if readsB[w] || writesB[w] {
			return true
		}
	}
	for w := range writesB {
		if readsA[w] {
			return true
		}
	}
	return false
}

func readWriteSets(stmt ast.Statement) (reads, writes map[string]bool) {
	reads = map[string]bool{}
	writes = map[string]bool{}
	switch n := stmt.(type) {
	case *ast.Select:
		for _, f := range n.Fields {
			collectIdentifiers(f.Expr, reads)
		}
		collectIdentifiers(n.Where, reads)
		if n.From.Variable != "" {
			reads[n.From.Variable] = true
		}
	case *ast.Navigate:
		collectIdentifiers(n.URL, reads)
		for _, f := range n.Capture {
			collectIdentifiers(f.Expr, reads)
		}
	case *ast.Set:
		writes[rootOf(n.Path)] = true
		collectIdentifiers(n.Value, reads)
	case *ast.For:
		collectIdentifiers(n.Iterable, reads)
	case *ast.If:
		collectIdentifiers(n.Condition, reads)
	case *ast.Insert:
		reads[n.Target] = true
		for _, v := range n.Values {
			collectIdentifiers(v, reads)
		}
	case *ast.Update:
		writes[n.Target] = true
		for _, a := range n.Assignments {
			collectIdentifiers(a.Value, reads)
		}
		collectIdentifiers(n.Where, reads)
	case *ast.Delete:
		writes[n.Target] = true
		collectIdentifiers(n.Where, reads)
	}
	return reads, writes
}

func rootOf(dottedPath string) string {
	for i, r := range dottedPath {
		if r == '.' {
			return dottedPath[:i]
		}
	}
	return dottedPath
}
