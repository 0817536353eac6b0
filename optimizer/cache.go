package optimizer

import (
	"fmt"
	"strings"

	"github.com/webql/webql/ast"
)

// nonDeterministicFunctions are builtin calls that make a statement
// uncacheable regardless of anything else about it.
var nonDeterministicFunctions = map[string]bool{
	"NOW": true, "CURRENT_TIME": true, "CURRENT_DATE": true,
	"RANDOM": true, "RAND": true, "UUID": true, "NEWID": true,
}

// timeSensitiveFieldNames is the heuristic list used to shorten a SELECT's
// TTL when its WHERE clause appears to reference a time-varying field.
var timeSensitiveFieldNames = map[string]bool{
	"timestamp": true, "updatedAt": true, "updated_at": true,
	"lastModified": true, "last_modified": true, "now": true,
}

// analyzeCacheability records {cacheable, key, ttl, reason} for stmt and
// every nested statement into out. It never mutates the tree.
func analyzeCacheability(stmt ast.Statement, out map[ast.Statement]CacheInfo) {
	if stmt == nil {
		return
	}
	out[stmt] = cacheInfoFor(stmt)
	for _, child := range childStatements(stmt) {
		analyzeCacheability(child, out)
	}
}

func cacheInfoFor(stmt ast.Statement) CacheInfo {
	switch n := stmt.(type) {
	case *ast.Select:
		return selectCacheInfo(n)
	case *ast.Navigate:
		return navigateCacheInfo(n)
	default:
		return CacheInfo{Cacheable: false, Reason: "statement kind is never cacheable"}
	}
}

func selectCacheInfo(n *ast.Select) CacheInfo {
	if n.From.URL == nil {
		return CacheInfo{Cacheable: false, Reason: "source is not a URL literal"}
	}
	if hasNonDeterministicCall(n.Where) {
		return CacheInfo{Cacheable: false, Reason: "WHERE references a non-deterministic function"}
	}
	for _, f := range n.Fields {
		if hasNonDeterministicCall(f.Expr) {
			return CacheInfo{Cacheable: false, Reason: "a projected field references a non-deterministic function"}
		}
	}
	for _, ob := range n.OrderBy {
		if hasNonDeterministicCall(ob.Field) {
			return CacheInfo{Cacheable: false, Reason: "ORDER BY references a non-deterministic function"}
		}
	}

	ttl := 60
	if len(n.OrderBy) > 0 || n.Limit != nil {
		ttl = 30
	}
	if whereReferencesTimeSensitiveField(n.Where) {
		ttl = 10
	}

	key := fmt.Sprintf("select:%v:%s:%s:%s:%d:%d",
		n.From.URL.Value, fieldsKeyPart(n.Fields), exprKeyPart(n.Where), orderByKeyPart(n.OrderBy), limitOf(n.Limit), limitOf(n.Offset))
	return CacheInfo{Cacheable: true, Key: key, TTLSeconds: ttl}
}

func navigateCacheInfo(n *ast.Navigate) CacheInfo {
	lit, ok := n.URL.(*ast.Literal)
	if !ok {
		return CacheInfo{Cacheable: false, Reason: "URL is not a literal"}
	}
	if n.Options != nil {
		if disabled, ok := n.Options.Proxy["cacheEnabled"]; ok {
			if lit, ok := disabled.(*ast.Literal); ok {
				if b, ok := lit.Value.(bool); ok && !b {
					return CacheInfo{Cacheable: false, Reason: "proxy cache explicitly disabled"}
				}
			}
		}
	}
	return CacheInfo{Cacheable: true, Key: fmt.Sprintf("navigate:%v", lit.Value), TTLSeconds: 300}
}

func hasNonDeterministicCall(expr ast.Expression) bool {
	found := false
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		if found || e == nil {
			return
		}
		switch n := e.(type) {
		case *ast.Call:
			if nonDeterministicFunctions[strings.ToUpper(n.Callee)] {
				found = true
				return
			}
			for _, a := range n.Args {
				walk(a)
			}
		case *ast.Binary:
			walk(n.Left)
			walk(n.Right)
		case *ast.Unary:
			walk(n.Operand)
		case *ast.Member:
			walk(n.Object)
			if n.Computed {
				walk(n.Property)
			}
		case *ast.Array:
			for _, el := range n.Elements {
				walk(el)
			}
		case *ast.Object:
			for _, p := range n.Properties {
				walk(p.Value)
			}
		}
	}
	walk(expr)
	return found
}

func whereReferencesTimeSensitiveField(expr ast.Expression) bool {
	ids := map[string]bool{}
	collectIdentifiers(expr, ids)
	for id := range ids {
		if timeSensitiveFieldNames[id] {
			return true
		}
	}
	return false
}

func fieldsKeyPart(fields []ast.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + "=" + exprKeyPart(f.Expr)
	}
	return strings.Join(parts, ",")
}

func orderByKeyPart(orderBy []ast.SortField) string {
	parts := make([]string, len(orderBy))
	for i, ob := range orderBy {
		dir := "ASC"
		if ob.Descending {
			dir = "DESC"
		}
		parts[i] = exprKeyPart(ob.Field) + " " + dir
	}
	return strings.Join(parts, ",")
}

// exprKeyPart renders a stable textual encoding of an expression for use in
// a cache key. It is not meant to be parsed back.
func exprKeyPart(expr ast.Expression) string {
	switch n := expr.(type) {
	case nil:
		return ""
	case *ast.Literal:
		return fmt.Sprintf("%v", n.Value)
	case *ast.Identifier:
		return n.Name
	case *ast.Binary:
		return fmt.Sprintf("(%sop%d%s)", exprKeyPart(n.Left), n.Op, exprKeyPart(n.Right))
	case *ast.Unary:
		return fmt.Sprintf("u%d(%s)", n.Op, exprKeyPart(n.Operand))
	case *ast.Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = exprKeyPart(a)
		}
		return n.Callee + "(" + strings.Join(args, ",") + ")"
	case *ast.Member:
		return exprKeyPart(n.Object) + "." + exprKeyPart(n.Property)
	case *ast.Array:
		parts := make([]string, len(n.Elements))
		for i, el := range n.Elements {
			parts[i] = exprKeyPart(el)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case *ast.Object:
		parts := make([]string, len(n.Properties))
		for i, p := range n.Properties {
			parts[i] = p.Key + ":" + exprKeyPart(p.Value)
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	return ""
}

func limitOf(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
