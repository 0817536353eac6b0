// Package exec drives a validated plan to completion against the browser
// and proxy controllers. Execution is a topologically-ordered step dispatch
// rather than an iterator chain, since steps have heterogeneous side
// effects (navigate a page, write a cache entry, bind a variable) rather
// than a uniform row shape.
package exec

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/controllers"
	"github.com/webql/webql/depgraph"
	werrors "github.com/webql/webql/errors"
	"github.com/webql/webql/evalcore"
	"github.com/webql/webql/plan"
	"github.com/webql/webql/types"
)

// StepResult is what executing one step produced.
type StepResult struct {
	OK       bool
	Data     interface{}
	CacheHit bool
	Started  time.Time
	Elapsed  time.Duration
}

// execShared is the state every fork of an Executor (one per PARALLEL
// child) must agree on: the runtime cache and the per-step result table.
// Step ids are unique across the whole plan tree (nested LOOP/BRANCH/
// PARALLEL bodies share the planner's id counter with their parent), so
// these maps stay keyed consistently even when PARALLEL fans a query out
// across goroutines; mu guards them against the resulting concurrent
// writes.
type execShared struct {
	mu      sync.Mutex
	cache   map[string]interface{}
	results map[string]StepResult
	cancelled int32
}

// Executor runs one *plan.Plan to completion. It owns no cross-query state:
// one Executor is created per query execution. vars is per-fork so that
// PARALLEL children (see runParallel) each get an isolated variable scope
// that cannot race on or leak into a sibling's.
type Executor struct {
	Browser controllers.Browser
	Proxy   controllers.Proxy

	shared *execShared
	vars   *Stack
}

// New returns an Executor with a fresh global variable frame and an empty
// runtime cache.
func New(browser controllers.Browser, proxy controllers.Proxy) *Executor {
	return &Executor{
		Browser: browser,
		Proxy:   proxy,
		shared:  &execShared{cache: map[string]interface{}{}, results: map[string]StepResult{}},
		vars:    NewStack(),
	}
}

// fork returns a child Executor that shares this one's cache and result
// table but has its own independent copy of the variable stack, for
// PARALLEL children to run without racing on or clobbering each other's
// variable writes.
func (e *Executor) fork() *Executor {
	return &Executor{Browser: e.Browser, Proxy: e.Proxy, shared: e.shared, vars: e.vars.clone()}
}

// Cancel requests cooperative cancellation; observed before the next step
// dispatch and between loop iterations.
func (e *Executor) Cancel() {
	atomic.StoreInt32(&e.shared.cancelled, 1)
}

func (e *Executor) isCancelled() bool {
	return atomic.LoadInt32(&e.shared.cancelled) != 0
}

var ErrCancelled = werrors.Execution.New("query cancelled")

// Run executes every step of p in the given topological order, returning
// the StepResult of p.ResultID.
func (e *Executor) Run(ctx context.Context, p *plan.Plan, order []string) (StepResult, error) {
	for _, id := range order {
		if e.isCancelled() || ctx.Err() != nil {
			return StepResult{}, ErrCancelled
		}
		step := p.StepByID(id)
		if step == nil {
			continue
		}
		res, err := e.dispatch(ctx, step)
		if err != nil {
			return StepResult{}, err
		}
		e.shared.mu.Lock()
		e.shared.results[id] = res
		e.shared.mu.Unlock()
		// Downstream FILTER/MAP/SORT/LIMIT/JOIN steps read their input by
		// the producing step's id; CTEs additionally bind under their name.
		e.vars.Write(id, res.Data)
		if step.OutputVariable != "" {
			e.vars.Write(step.OutputVariable, res.Data)
		}
	}
	e.shared.mu.Lock()
	final, ok := e.shared.results[p.ResultID]
	e.shared.mu.Unlock()
	if !ok {
		return StepResult{}, werrors.Execution.New("plan result step was never dispatched")
	}
	return final, nil
}

// Stats walks root and every nested plan reachable through BRANCH/LOOP/
// PARALLEL/SEQUENTIAL bodies, tallying navigation-step dispatches and
// cache hit/miss counts from the steps that were actually executed. Used
// by the engine facade to populate QueryResult.Metadata.
func (e *Executor) Stats(root *plan.Plan) (executed, navigations, cacheHits, cacheMisses int) {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()

	var walk func(p *plan.Plan)
	walk = func(p *plan.Plan) {
		if p == nil {
			return
		}
		for _, s := range p.Steps {
			res, ok := e.shared.results[s.ID]
			if ok {
				executed++
				if s.Kind == plan.NAVIGATE {
					navigations++
				}
				if s.Cacheable && s.CacheKey != "" {
					if res.CacheHit {
						cacheHits++
					} else {
						cacheMisses++
					}
				}
			}
			walk(s.Then)
			walk(s.Else)
			walk(s.Body)
			for _, child := range s.Children {
				walk(child)
			}
		}
	}
	walk(root)
	return
}

func (e *Executor) dispatch(ctx context.Context, step *plan.Step) (StepResult, error) {
	started := time.Now()
	if step.Cacheable && step.CacheKey != "" {
		e.shared.mu.Lock()
		v, ok := e.shared.cache[step.CacheKey]
		e.shared.mu.Unlock()
		if ok {
			return StepResult{OK: true, Data: v, CacheHit: true, Started: started, Elapsed: time.Since(started)}, nil
		}
	}
	data, err := e.run(ctx, step)
	if err != nil {
		return StepResult{}, err
	}
	res := StepResult{OK: true, Data: data, Started: started, Elapsed: time.Since(started)}
	if step.Cacheable && step.CacheKey != "" {
		e.shared.mu.Lock()
		e.shared.cache[step.CacheKey] = data
		e.shared.mu.Unlock()
	}
	return res, nil
}

func (e *Executor) run(ctx context.Context, step *plan.Step) (interface{}, error) {
	switch step.Kind {
	case plan.NAVIGATE:
		url, _ := e.evalLiteralString(step.URL)
		return e.Browser.ExecuteNavigate(ctx, step.ID, url)
	case plan.DOM_QUERY:
		names := make([]string, len(step.Fields))
		for i, f := range step.Fields {
			names[i] = f.Name
		}
		return e.Browser.ExecuteDOMQuery(ctx, step.ID, step.Selector, names)
	case plan.CLICK:
		return nil, e.Browser.ExecuteClick(ctx, step.ID, step.Selector)
	case plan.TYPE:
		// The planner lowers INSERT to TYPE: Path is the target field/selector,
		// Fields carries the VALUES clause. Fill the field with each value's
		// evaluated text, in order.
		selector := step.Selector
		if selector == "" {
			selector = step.Path
		}
		text, err := e.joinFieldValues(step.Fields)
		if err != nil {
			return nil, err
		}
		return nil, e.Browser.ExecuteType(ctx, step.ID, selector, text)
	case plan.WAIT:
		return nil, e.Browser.ExecuteWait(ctx, step.ID, step.Selector, 0)
	case plan.SCREENSHOT:
		return e.Browser.ExecuteScreenshot(ctx, step.ID)
	case plan.PDF:
		return e.Browser.ExecutePDF(ctx, step.ID)
	case plan.EVALUATE_JS:
		// The planner lowers UPDATE/DELETE to EVALUATE_JS: Path names the
		// target, and either Value (assignment) or Predicate (delete
		// condition) supplies the mutation; render a small textual script
		// the browser controller's JS evaluator is expected to execute.
		script, err := e.evaluateJSScript(step)
		if err != nil {
			return nil, err
		}
		return e.Browser.ExecuteEvaluateJS(ctx, step.ID, script)

	case plan.INTERCEPT_REQUEST, plan.MODIFY_REQUEST:
		return e.Proxy.InterceptRequest(ctx, nil)
	case plan.CACHE_LOOKUP:
		return e.Proxy.ExecuteCacheLookup(ctx, step.CacheKey)
	case plan.CACHE_STORE:
		return nil, e.Proxy.ExecuteCacheStore(ctx, step.CacheKey, nil, 0)

	case plan.FILTER:
		return e.runFilter(step)
	case plan.MAP:
		return e.runMap(step)
	case plan.REDUCE:
		return e.runReduce(step)
	case plan.SORT:
		return e.runSort(step)
	case plan.LIMIT:
		return e.runLimit(step)
	case plan.BRANCH:
		return e.runBranch(ctx, step)
	case plan.LOOP:
		return e.runLoop(ctx, step)
	case plan.PARALLEL:
		return e.runParallel(ctx, step)
	case plan.SEQUENTIAL:
		return e.runSequential(ctx, step)
	case plan.ASSIGN:
		return e.runAssign(step)
	case plan.READ_VARIABLE:
		v, ok := e.vars.Read(step.VariableName)
		if !ok {
			return nil, werrors.Execution.New("undefined variable %q", step.VariableName).WithContext("variable", step.VariableName)
		}
		return v, nil
	case plan.WRITE_VARIABLE:
		return e.runWriteVariable(step)
	case plan.JOIN:
		return e.runJoin(step)
	}
	return nil, werrors.Execution.New("unhandled step kind %s", step.Kind)
}

func (e *Executor) inputSequence(name string) ([]evalcore.Value, error) {
	raw, ok := e.vars.Read(name)
	if !ok {
		return nil, werrors.Execution.New("undefined variable %q", name).WithContext("variable", name)
	}
	seq, ok := toSequence(raw)
	if !ok {
		return nil, werrors.Execution.New("variable %q is not an ordered sequence", name).WithContext("variable", name)
	}
	return seq, nil
}

// toSequence coerces a bound value into the ordered sequence the collection
// steps operate on: a []evalcore.Value passes through, a browser
// controller's []controllers.Row and a plain []interface{} are wrapped
// element by element.
func toSequence(raw interface{}) ([]evalcore.Value, bool) {
	switch v := raw.(type) {
	case []evalcore.Value:
		return v, true
	case evalcore.Value:
		if s, ok := v.Val.([]evalcore.Value); ok {
			return s, true
		}
		return nil, false
	case []controllers.Row:
		out := make([]evalcore.Value, len(v))
		for i, row := range v {
			m := make(map[string]evalcore.Value, len(row))
			for k, val := range row {
				m[k] = wrapJSON(val)
			}
			out[i] = evalcore.Value{Type: types.OBJECT, Val: m}
		}
		return out, true
	case []interface{}:
		out := make([]evalcore.Value, len(v))
		for i, el := range v {
			out[i] = wrapJSON(el)
		}
		return out, true
	}
	return nil, false
}

func asRow(v evalcore.Value) interface{} {
	if m, ok := v.Val.(map[string]evalcore.Value); ok {
		return m
	}
	return map[string]evalcore.Value{"value": v}
}

func (e *Executor) runFilter(step *plan.Step) (interface{}, error) {
	seq, err := e.inputSequence(step.InputVariable)
	if err != nil {
		return nil, err
	}
	out := make([]evalcore.Value, 0, len(seq))
	for _, item := range seq {
		v, err := Eval(EvalContext{Vars: e.vars, CurrentRow: asRow(item)}, step.Predicate)
		if err != nil {
			return nil, err
		}
		if evalcore.Truthy(v) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (e *Executor) runMap(step *plan.Step) (interface{}, error) {
	seq, err := e.inputSequence(step.InputVariable)
	if err != nil {
		return nil, err
	}
	out := make([]evalcore.Value, len(seq))
	for i, item := range seq {
		row := asRow(item)
		if len(step.Fields) == 0 {
			out[i] = item
			continue
		}
		obj := map[string]evalcore.Value{}
		for _, f := range step.Fields {
			v, err := Eval(EvalContext{Vars: e.vars, CurrentRow: row}, f.Expr)
			if err != nil {
				return nil, err
			}
			obj[f.Name] = v
		}
		out[i] = evalcore.Value{Val: obj}
	}
	return out, nil
}

func (e *Executor) runReduce(step *plan.Step) (interface{}, error) {
	seq, err := e.inputSequence(step.InputVariable)
	if err != nil {
		return nil, err
	}
	acc, err := Eval(EvalContext{Vars: e.vars}, step.InitialValue)
	if err != nil {
		return nil, err
	}
	for _, item := range seq {
		e.vars.Push()
		e.vars.Write(step.Accumulator, acc)
		v, err := Eval(EvalContext{Vars: e.vars, CurrentRow: asRow(item)}, step.Value)
		e.vars.Pop()
		if err != nil {
			return nil, err
		}
		acc = v
	}
	return acc, nil
}

func (e *Executor) runSort(step *plan.Step) (interface{}, error) {
	seq, err := e.inputSequence(step.InputVariable)
	if err != nil {
		return nil, err
	}
	out := make([]evalcore.Value, len(seq))
	copy(out, seq)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range step.SortKeys {
			vi, err := Eval(EvalContext{Vars: e.vars, CurrentRow: asRow(out[i])}, key.Field)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := Eval(EvalContext{Vars: e.vars, CurrentRow: asRow(out[j])}, key.Field)
			if err != nil {
				sortErr = err
				return false
			}
			c := compareValues(vi, vj)
			if key.Descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

// compareValues implements the multi-key comparator's per-pair rule:
// null-first, then numeric, then string (locale-aware via <, which is
// byte-wise for Go strings - no locale table is available in this tree),
// then boolean.
func compareValues(a, b evalcore.Value) int {
	an, bn := a.Val == nil, b.Val == nil
	if an || bn {
		if an == bn {
			return 0
		}
		if an {
			return -1
		}
		return 1
	}
	if af, ok := a.Val.(float64); ok {
		if bf, ok := b.Val.(float64); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if as, ok := a.Val.(string); ok {
		if bs, ok := b.Val.(string); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, ok := a.Val.(bool); ok {
		if bb, ok := b.Val.(bool); ok {
			if ab == bb {
				return 0
			}
			if !ab {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (e *Executor) runLimit(step *plan.Step) (interface{}, error) {
	seq, err := e.inputSequence(step.InputVariable)
	if err != nil {
		return nil, err
	}
	offset := 0
	if step.Offset != nil {
		offset = *step.Offset
	}
	if offset > len(seq) {
		offset = len(seq)
	}
	seq = seq[offset:]
	if step.Limit != nil && *step.Limit < len(seq) {
		seq = seq[:*step.Limit]
	}
	return seq, nil
}

func (e *Executor) runBranch(ctx context.Context, step *plan.Step) (interface{}, error) {
	cond, err := Eval(EvalContext{Vars: e.vars}, step.Predicate)
	if err != nil {
		return nil, err
	}
	branch := step.Else
	if evalcore.Truthy(cond) {
		branch = step.Then
	}
	if branch == nil {
		return nil, nil
	}
	order, _ := topoOrderOf(branch)
	return e.Run(ctx, branch, order)
}

func (e *Executor) runLoop(ctx context.Context, step *plan.Step) (interface{}, error) {
	iterVal, err := Eval(EvalContext{Vars: e.vars}, step.Iterable)
	if err != nil {
		return nil, err
	}
	items, ok := iterVal.Val.([]evalcore.Value)
	if !ok {
		return nil, werrors.Execution.New("LOOP iterable is not an array")
	}
	var results []interface{}
	for _, item := range items {
		if e.isCancelled() || ctx.Err() != nil {
			return nil, ErrCancelled
		}
		e.vars.Push()
		e.vars.Write(step.IterVariable, item)
		order, _ := topoOrderOf(step.Body)
		res, err := e.Run(ctx, step.Body, order)
		e.vars.Pop()
		if err != nil {
			return nil, err
		}
		results = append(results, res.Data)
	}
	return results, nil
}

// runParallel fans the PARALLEL step's child plans out across goroutines
// with errgroup, cancelling the sibling group as soon as one child fails.
// Each child runs against e.fork(), an isolated variable-scope copy that
// cannot race on or leak into a sibling's writes.
func (e *Executor) runParallel(ctx context.Context, step *plan.Step) (interface{}, error) {
	results := make([]interface{}, len(step.Children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range step.Children {
		i, child := i, child
		g.Go(func() error {
			order, _ := topoOrderOf(child)
			res, err := e.fork().Run(gctx, child, order)
			if err != nil {
				return err
			}
			results[i] = res.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Executor) runSequential(ctx context.Context, step *plan.Step) (interface{}, error) {
	var last interface{}
	for _, child := range step.Children {
		order, _ := topoOrderOf(child)
		res, err := e.Run(ctx, child, order)
		if err != nil {
			return nil, err
		}
		last = res.Data
	}
	return last, nil
}

func (e *Executor) runAssign(step *plan.Step) (interface{}, error) {
	v, err := Eval(EvalContext{Vars: e.vars}, step.Value)
	if err != nil {
		return nil, err
	}
	e.vars.Write(step.Path, v)
	return v, nil
}

func (e *Executor) runWriteVariable(step *plan.Step) (interface{}, error) {
	v, err := Eval(EvalContext{Vars: e.vars}, step.Value)
	if err != nil {
		return nil, err
	}
	e.vars.WriteGlobal(step.VariableName, v)
	return v, nil
}

func (e *Executor) runJoin(step *plan.Step) (interface{}, error) {
	left, err := e.inputSequence(step.InputVariable)
	if err != nil {
		return nil, err
	}
	right, err := e.inputSequence(step.VariableName)
	if err != nil {
		return nil, err
	}
	byKey := map[string][]evalcore.Value{}
	rightMatched := map[int]bool{}
	for _, r := range right {
		k, err := Eval(EvalContext{Vars: e.vars, CurrentRow: asRow(r)}, step.RightKey)
		if err != nil {
			return nil, err
		}
		key := keyString(k)
		byKey[key] = append(byKey[key], r)
	}

	var out []evalcore.Value
	for _, l := range left {
		lk, err := Eval(EvalContext{Vars: e.vars, CurrentRow: asRow(l)}, step.LeftKey)
		if err != nil {
			return nil, err
		}
		matches := byKey[keyString(lk)]
		if len(matches) == 0 {
			if step.JoinType == plan.LeftJoin || step.JoinType == plan.FullJoin {
				out = append(out, combineRows(l, evalcore.Value{}))
			}
			continue
		}
		for ri, r := range right {
			rk, _ := Eval(EvalContext{Vars: e.vars, CurrentRow: asRow(r)}, step.RightKey)
			if keyString(rk) == keyString(lk) {
				rightMatched[ri] = true
			}
		}
		for _, r := range matches {
			out = append(out, combineRows(l, r))
		}
	}
	if step.JoinType == plan.RightJoin || step.JoinType == plan.FullJoin {
		for i, r := range right {
			if !rightMatched[i] {
				out = append(out, combineRows(evalcore.Value{}, r))
			}
		}
	}
	return out, nil
}

func keyString(v evalcore.Value) string {
	return fmt.Sprintf("%v", v.Val)
}

func combineRows(l, r evalcore.Value) evalcore.Value {
	combined := map[string]evalcore.Value{}
	if lm, ok := l.Val.(map[string]evalcore.Value); ok {
		for k, v := range lm {
			combined[k] = v
		}
	}
	if rm, ok := r.Val.(map[string]evalcore.Value); ok {
		for k, v := range rm {
			combined[k] = v
		}
	}
	return evalcore.Value{Val: combined}
}

// joinFieldValues evaluates each field expression and joins the results,
// for an INSERT's VALUES list lowered into one TYPE step.
func (e *Executor) joinFieldValues(fields []ast.Field) (string, error) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, err := Eval(EvalContext{Vars: e.vars}, f.Expr)
		if err != nil {
			return "", err
		}
		parts[i] = keyString(v)
	}
	return strings.Join(parts, ", "), nil
}

// evaluateJSScript renders the textual script for an EVALUATE_JS step
// lowered from UPDATE (Path = Value) or DELETE (Predicate on Path).
func (e *Executor) evaluateJSScript(step *plan.Step) (string, error) {
	switch {
	case step.Value != nil:
		v, err := Eval(EvalContext{Vars: e.vars}, step.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", step.Path, keyString(v)), nil
	case step.Predicate != nil:
		v, err := Eval(EvalContext{Vars: e.vars}, step.Predicate)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("delete %s where %s", step.Path, keyString(v)), nil
	default:
		return step.Path, nil
	}
}

// evalLiteralString evaluates expr (expected to be a literal or a folded
// constant, but resolved against the live variable stack just in case) to
// a string, for NAVIGATE/TYPE/EVALUATE_JS steps whose URL or text argument
// the planner carries as an ast.Expression rather than a bare string.
func (e *Executor) evalLiteralString(expr ast.Expression) (string, bool) {
	if expr == nil {
		return "", false
	}
	v, err := Eval(EvalContext{Vars: e.vars}, expr)
	if err != nil {
		return "", false
	}
	s, ok := v.Val.(string)
	return s, ok
}

// topoOrderOf computes a dependency-respecting order for one nested plan's
// steps, falling back to natural (insertion) order on a cycle - mirroring
// the top-level executor entrypoint's own precondition, but recomputed
// per-plan since BRANCH/LOOP/PARALLEL bodies are detached sub-plans with
// their own step id namespace.
func topoOrderOf(p *plan.Plan) ([]string, bool) {
	if p == nil {
		return nil, true
	}
	natural := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		natural[i] = s.ID
	}
	g, err := depgraph.Build(p.Steps)
	if err != nil {
		return natural, false
	}
	return g.TopoSort(natural)
}
