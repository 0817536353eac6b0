package cost

import (
	"github.com/webql/webql/ast"
)

// Estimator computes a deterministic cost for a statement, given a
// base/scaling configuration. It never inspects runtime state - identical
// ASTs always produce identical costs, which is what lets the optimizer
// driver compare before/after cost across a pass.
type Estimator struct {
	Base    BaseCosts
	Scaling Scaling
}

// New returns an Estimator using the default base costs and scaling.
func New() *Estimator {
	return &Estimator{Base: DefaultBaseCosts(), Scaling: DefaultScaling()}
}

// Statement estimates the total cost of one statement (without any
// parallelism discount - that is applied by the caller once the largest
// parallel group is known).
func (e *Estimator) Statement(s ast.Statement) Cost {
	switch n := s.(type) {
	case *ast.Select:
		return e.selectCost(n)
	case *ast.Navigate:
		return e.navigateCost(n)
	case *ast.Set:
		return Cost{Compute: e.Expression(n.Value)}
	case *ast.Show:
		return Cost{Compute: e.Base.DOMTraversal}
	case *ast.For:
		return e.forCost(n)
	case *ast.If:
		return e.ifCost(n)
	case *ast.Insert:
		c := Cost{}
		for _, v := range n.Values {
			c.Compute += e.Expression(v)
		}
		return c
	case *ast.Update:
		c := Cost{Compute: e.Base.JSExecution}
		for _, a := range n.Assignments {
			c.Compute += e.Expression(a.Value)
		}
		return c
	case *ast.Delete:
		return Cost{Compute: e.Base.JSExecution}
	case *ast.With:
		c := Cost{}
		for _, cte := range n.CTEs {
			c = c.Add(e.Statement(cte.Query))
		}
		return c.Add(e.Statement(n.Query))
	}
	return Cost{}
}

func (e *Estimator) selectCost(n *ast.Select) Cost {
	c := Cost{Compute: e.Base.DOMQuery}
	for _, f := range n.Fields {
		c.Compute += e.Base.DOMTraversal
		c.Compute += e.Expression(f.Expr)
	}
	if n.Where != nil {
		c.Compute += e.Expression(n.Where)
	}
	if len(n.OrderBy) > 0 {
		// A stable sort over an unknown-size result is modeled as a flat
		// per-key traversal charge; exact row counts are a runtime concern.
		c.Compute += float64(len(n.OrderBy)) * e.Base.DOMTraversal * 10
	}
	if n.From.URL != nil {
		c.Network += e.Base.Navigate * e.Scaling.NetworkLatency
		c.CacheLookup += e.Base.CacheLookup
	}
	if n.From.Subquery != nil {
		c = c.Add(e.Statement(n.From.Subquery))
	}
	return c
}

func (e *Estimator) navigateCost(n *ast.Navigate) Cost {
	c := Cost{
		Network: e.Base.Navigate * e.Scaling.NetworkLatency,
		Render:  e.Base.Render,
	}
	for range n.Capture {
		c.Compute += e.Base.DOMQuery
	}
	if n.Options != nil {
		if n.Options.Screenshot != nil {
			c.Render += e.Base.Screenshot
		}
	}
	return c
}

// forCost multiplies the body cost by an assumed iteration count: a literal
// array's length if known, otherwise 10 for function-call or dynamic
// iterables.
func (e *Estimator) forCost(n *ast.For) Cost {
	var body Cost
	for _, s := range n.Body {
		body = body.Add(e.Statement(s))
	}
	iterations := 10.0
	if arr, ok := n.Iterable.(*ast.Array); ok {
		iterations = float64(len(arr.Elements))
	}
	return body.Scale(iterations)
}

func (e *Estimator) ifCost(n *ast.If) Cost {
	condCost := Cost{Compute: e.Expression(n.Condition)}
	var then, els Cost
	for _, s := range n.Then {
		then = then.Add(e.Statement(s))
	}
	for _, s := range n.Else {
		els = els.Add(e.Statement(s))
	}
	branches := 1
	avg := then
	if len(n.Else) > 0 {
		branches = 2
		avg = then.Add(els)
	}
	return condCost.Add(avg.Scale(1.0 / float64(branches)))
}

// Expression estimates the compute-only cost of an expression: the sum of
// its sub-expression costs plus a small per-node overhead (js-execution for
// operators, dom-traversal for member access, dom-query-like for calls).
func (e *Estimator) Expression(expr ast.Expression) float64 {
	switch n := expr.(type) {
	case nil:
		return 0
	case *ast.Literal:
		return 0
	case *ast.Identifier:
		return 0
	case *ast.Binary:
		return e.Expression(n.Left) + e.Expression(n.Right) + e.Base.JSExecution
	case *ast.Unary:
		return e.Expression(n.Operand) + e.Base.JSExecution
	case *ast.Call:
		total := e.Base.DOMQuery
		for _, a := range n.Args {
			total += e.Expression(a)
		}
		return total
	case *ast.Member:
		total := e.Base.DOMTraversal
		total += e.Expression(n.Object)
		if n.Computed {
			total += e.Expression(n.Property)
		}
		return total
	case *ast.Array:
		total := 0.0
		for _, el := range n.Elements {
			total += e.Expression(el)
		}
		return total
	case *ast.Object:
		total := 0.0
		for _, p := range n.Properties {
			total += e.Expression(p.Value)
		}
		return total
	}
	return 0
}
