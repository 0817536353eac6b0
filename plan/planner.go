package plan

import (
	"fmt"
	"strings"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/cost"
	"github.com/webql/webql/optimizer"
)

// Planner lowers one optimized statement into a Plan. A single Planner
// instance must not be reused across unrelated statements: its id counter
// is part of the statement's own namespace (step_1, step_2, ...).
type Planner struct {
	cache     map[ast.Statement]optimizer.CacheInfo
	estimator *cost.Estimator
	counter   int
	steps     []*Step
}

// New returns a Planner that consults cache for per-statement cacheability
// metadata (normally optimizer.Result.Cache).
func New(cache map[ast.Statement]optimizer.CacheInfo) *Planner {
	return &Planner{cache: cache, estimator: cost.New()}
}

// Plan lowers stmt (the optimizer's rewritten statement) into a flat Plan.
func (p *Planner) Plan(stmt ast.Statement) *Plan {
	resultID := p.lower(stmt)
	plan := &Plan{Steps: p.steps, ResultID: resultID}
	plan.Resources = aggregateResources(plan.Steps)
	return plan
}

func (p *Planner) nextID() string {
	p.counter++
	return fmt.Sprintf("step_%d", p.counter)
}

func (p *Planner) add(s *Step) *Step {
	s.ID = p.nextID()
	p.steps = append(p.steps, s)
	return s
}

func (p *Planner) cacheInfo(stmt ast.Statement) optimizer.CacheInfo {
	if p.cache == nil {
		return optimizer.CacheInfo{}
	}
	return p.cache[stmt]
}

// lower dispatches on statement kind and returns the id of the step holding
// the statement's result.
func (p *Planner) lower(stmt ast.Statement) string {
	switch n := stmt.(type) {
	case *ast.Select:
		return p.lowerSelect(n)
	case *ast.Navigate:
		return p.lowerNavigate(n)
	case *ast.Set:
		return p.lowerSet(n)
	case *ast.Show:
		return p.lowerShow(n)
	case *ast.For:
		return p.lowerFor(n)
	case *ast.If:
		return p.lowerIf(n)
	case *ast.Insert:
		return p.lowerInsert(n)
	case *ast.Update:
		return p.lowerUpdate(n)
	case *ast.Delete:
		return p.lowerDelete(n)
	case *ast.With:
		return p.lowerWith(n)
	}
	return ""
}

func (p *Planner) lowerSelect(n *ast.Select) string {
	var base string

	switch {
	case n.From.URL != nil:
		nav := p.add(&Step{
			Kind: NAVIGATE, URL: n.From.URL, Cacheable: true, CacheKey: fmt.Sprintf("nav:%v", n.From.URL.Value),
			EstimatedCost: p.estimator.Base.Navigate * p.estimator.Scaling.NetworkLatency,
			Selector:      inferSelector(n),
		})
		base = nav.ID
		dom := p.add(&Step{
			Kind: DOM_QUERY, Dependencies: []string{nav.ID}, Fields: n.Fields,
			Selector:      nav.Selector,
			InputVariable: nav.ID,
			EstimatedCost: p.estimator.Base.DOMQuery,
		})
		base = dom.ID
	case n.From.Subquery != nil:
		subResult := p.lower(n.From.Subquery)
		dom := p.add(&Step{
			Kind: DOM_QUERY, Dependencies: []string{subResult}, Fields: n.Fields,
			InputVariable: subResult,
			EstimatedCost: p.estimator.Base.DOMQuery,
		})
		base = dom.ID
	case n.From.Variable != "":
		read := p.add(&Step{Kind: READ_VARIABLE, VariableName: n.From.Variable, EstimatedCost: 0})
		mapped := p.add(&Step{
			Kind: MAP, Dependencies: []string{read.ID}, Fields: n.Fields,
			InputVariable: read.ID, EstimatedCost: p.estimator.Base.DOMQuery,
		})
		base = mapped.ID
	}

	if n.Where != nil {
		filter := p.add(&Step{
			Kind: FILTER, Dependencies: []string{base}, Predicate: n.Where,
			InputVariable: base, EstimatedCost: p.estimator.Expression(n.Where),
		})
		base = filter.ID
	}
	if len(n.OrderBy) > 0 {
		sort := p.add(&Step{
			Kind: SORT, Dependencies: []string{base}, SortKeys: n.OrderBy,
			InputVariable: base, EstimatedCost: float64(len(n.OrderBy)) * p.estimator.Base.DOMTraversal * 10,
		})
		base = sort.ID
	}
	if n.Limit != nil || n.Offset != nil {
		limit := p.add(&Step{
			Kind: LIMIT, Dependencies: []string{base}, Limit: n.Limit, Offset: n.Offset,
			InputVariable: base, EstimatedCost: p.estimator.Base.DOMTraversal,
		})
		base = limit.ID
	}
	return base
}

func (p *Planner) lowerNavigate(n *ast.Navigate) string {
	info := p.cacheInfo(n)
	nav := p.add(&Step{
		Kind: NAVIGATE, URL: n.URL, NavigateOptions: n.Options, Cacheable: info.Cacheable, CacheKey: info.Key,
		EstimatedCost: p.estimator.Base.Navigate*p.estimator.Scaling.NetworkLatency + p.estimator.Base.Render,
	})
	if len(n.Capture) == 0 {
		return nav.ID
	}
	dom := p.add(&Step{
		Kind: DOM_QUERY, Dependencies: []string{nav.ID}, Fields: n.Capture,
		InputVariable: nav.ID, EstimatedCost: float64(len(n.Capture)) * p.estimator.Base.DOMQuery,
	})
	return dom.ID
}

func (p *Planner) lowerSet(n *ast.Set) string {
	s := p.add(&Step{
		Kind: ASSIGN, Path: n.Path, Value: n.Value, EstimatedCost: p.estimator.Expression(n.Value),
	})
	return s.ID
}

func (p *Planner) lowerShow(n *ast.Show) string {
	s := p.add(&Step{Kind: READ_VARIABLE, VariableName: n.Name, EstimatedCost: p.estimator.Base.DOMTraversal})
	return s.ID
}

func (p *Planner) lowerFor(n *ast.For) string {
	child := New(p.cache)
	child.counter = p.counter
	var bodyResult string
	for _, s := range n.Body {
		bodyResult = child.lower(s)
	}
	bodyPlan := &Plan{Steps: child.steps, ResultID: bodyResult}
	bodyPlan.Resources = aggregateResources(bodyPlan.Steps)
	p.counter = child.counter

	bodyCost := 0.0
	for _, s := range bodyPlan.Steps {
		bodyCost += s.EstimatedCost
	}
	loop := p.add(&Step{
		Kind: LOOP, IterVariable: n.Variable, Iterable: n.Iterable, Body: bodyPlan,
		EstimatedCost: bodyCost * 10,
	})
	return loop.ID
}

func (p *Planner) lowerIf(n *ast.If) string {
	thenPlan, thenCost := p.lowerBlock(n.Then)
	elsePlan, elseCost := p.lowerBlock(n.Else)

	avg := thenCost
	if n.Else != nil {
		avg = (thenCost + elseCost) / 2
	}
	branch := p.add(&Step{
		Kind: BRANCH, Predicate: n.Condition, Then: thenPlan, Else: elsePlan,
		EstimatedCost: avg,
	})
	return branch.ID
}

func (p *Planner) lowerBlock(body []ast.Statement) (*Plan, float64) {
	if body == nil {
		return nil, 0
	}
	child := New(p.cache)
	child.counter = p.counter
	var result string
	for _, s := range body {
		result = child.lower(s)
	}
	p.counter = child.counter
	plan := &Plan{Steps: child.steps, ResultID: result}
	plan.Resources = aggregateResources(plan.Steps)
	total := 0.0
	for _, s := range plan.Steps {
		total += s.EstimatedCost
	}
	return plan, total
}

func (p *Planner) lowerInsert(n *ast.Insert) string {
	values := make([]ast.Field, len(n.Values))
	for i, v := range n.Values {
		values[i] = ast.Field{Expr: v, Name: fmt.Sprintf("value_%d", i)}
	}
	s := p.add(&Step{Kind: TYPE, Path: n.Target, Fields: values})
	return s.ID
}

func (p *Planner) lowerUpdate(n *ast.Update) string {
	var last string
	for _, a := range n.Assignments {
		deps := []string{}
		if last != "" {
			deps = []string{last}
		}
		s := p.add(&Step{
			Kind: EVALUATE_JS, Dependencies: deps, Path: a.Path, Value: a.Value,
			EstimatedCost: p.estimator.Expression(a.Value),
		})
		last = s.ID
	}
	if last == "" {
		s := p.add(&Step{Kind: EVALUATE_JS, Path: n.Target})
		last = s.ID
	}
	return last
}

func (p *Planner) lowerDelete(n *ast.Delete) string {
	s := p.add(&Step{Kind: EVALUATE_JS, Path: n.Target, Predicate: n.Where})
	return s.ID
}

func (p *Planner) lowerWith(n *ast.With) string {
	for _, cte := range n.CTEs {
		cteResult := p.lower(cte.Query)
		for _, s := range p.steps {
			if s.ID == cteResult {
				s.OutputVariable = cte.Name
				break
			}
		}
	}
	return p.lower(n.Query)
}

// inferSelector derives a CSS selector for a SELECT's implicit DOM_QUERY
// from: a URL fragment, a WHERE clause of the shape `selector = "..."`, or
// an output field name that already looks like a selector. Defaults to
// "body".
func inferSelector(n *ast.Select) string {
	if n.From.URL != nil {
		if url, ok := n.From.URL.Value.(string); ok {
			if i := strings.IndexByte(url, '#'); i >= 0 && i+1 < len(url) {
				return "#" + url[i+1:]
			}
		}
	}
	if sel := selectorFromWhere(n.Where); sel != "" {
		return sel
	}
	for _, f := range n.Fields {
		if looksLikeSelector(f.Name) {
			return f.Name
		}
	}
	return "body"
}

func selectorFromWhere(expr ast.Expression) string {
	b, ok := expr.(*ast.Binary)
	if !ok || b.Op != ast.OpEq {
		return ""
	}
	id, ok := b.Left.(*ast.Identifier)
	if !ok || strings.ToLower(id.Name) != "selector" {
		return ""
	}
	lit, ok := b.Right.(*ast.Literal)
	if !ok {
		return ""
	}
	s, _ := lit.Value.(string)
	return s
}

func looksLikeSelector(name string) bool {
	if name == "" {
		return false
	}
	switch name[0] {
	case '.', '#':
		return true
	}
	return strings.ContainsAny(name, "[>")
}

// aggregateResources sums the per-step-kind resource bumps across
// every step in steps (including nested LOOP/BRANCH/PARALLEL/SEQUENTIAL
// bodies, since those still consume the same browser/CPU/memory budget
// when dispatched).
func aggregateResources(steps []*Step) ResourceEstimate {
	var r ResourceEstimate
	for _, s := range steps {
		switch s.Kind {
		case NAVIGATE:
			r.Browsers = maxInt(r.Browsers, 1)
			r.Pages++
			r.Connections++
			r.MemoryMB += 100
			r.CPU = maxInt(r.CPU, 30)
		case DOM_QUERY:
			r.CPU = maxInt(r.CPU, 20)
			r.MemoryMB += 10
		case SCREENSHOT, PDF:
			r.MemoryMB += 50
			r.CPU = maxInt(r.CPU, 40)
		case EVALUATE_JS:
			r.MemoryMB += 20
			r.CPU = maxInt(r.CPU, 25)
		case PARALLEL:
			r.CPU = maxInt(r.CPU, 60)
		}
		if s.Body != nil {
			r = combineResources(r, aggregateResources(s.Body.Steps))
		}
		if s.Then != nil {
			r = combineResources(r, aggregateResources(s.Then.Steps))
		}
		if s.Else != nil {
			r = combineResources(r, aggregateResources(s.Else.Steps))
		}
		for _, c := range s.Children {
			r = combineResources(r, aggregateResources(c.Steps))
		}
	}
	return r
}

func combineResources(a, b ResourceEstimate) ResourceEstimate {
	return ResourceEstimate{
		Browsers:    maxInt(a.Browsers, b.Browsers),
		Pages:       a.Pages + b.Pages,
		Connections: a.Connections + b.Connections,
		MemoryMB:    a.MemoryMB + b.MemoryMB,
		CPU:         maxInt(a.CPU, b.CPU),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
