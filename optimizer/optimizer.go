// Package optimizer runs the fixed-point rewrite/analysis pipeline between
// semantic analysis and planning: constant folding, dead-code elimination,
// predicate pushdown, projection pushdown, cacheability analysis, and
// parallel-group detection. The driver applies every enabled pass once,
// recomputes cost, and keeps iterating only while a pass actually changed
// the tree, up to a fixed cap.
package optimizer

import (
	"github.com/webql/webql/ast"
	"github.com/webql/webql/cost"
)

// CacheInfo is the non-mutating cacheability verdict for one statement.
type CacheInfo struct {
	Cacheable bool
	Key       string
	TTLSeconds int
	Reason    string // set when Cacheable is false
}

// Result is everything the optimizer hands the planner: the rewritten
// statement, the passes that actually fired, before/after cost, cache
// metadata per statement, and the parallel groups discovered.
type Result struct {
	Statement      ast.Statement
	AppliedPasses  []string
	CostBefore     cost.Cost
	CostAfter      cost.Cost
	Cache          map[ast.Statement]CacheInfo
	ParallelGroups [][]ast.Statement
	// EstimatedTotalMS is CostAfter's total with the parallelism discount
	// for the largest detected group and the cache-hit adjustment applied.
	EstimatedTotalMS float64
}

// Config tunes the driver. A zero Config uses every pass and the default
// iteration cap.
type Config struct {
	MaxPasses int
	Disable   map[string]bool // pass name -> skip it entirely
}

func (c Config) maxPasses() int {
	if c.MaxPasses <= 0 {
		return 3
	}
	return c.MaxPasses
}

func (c Config) enabled(name string) bool {
	return !c.Disable[name]
}

// Optimizer runs the six-pass pipeline to a fixed point.
type Optimizer struct {
	cfg       Config
	estimator *cost.Estimator
}

// New returns an Optimizer with the given configuration.
func New(cfg Config) *Optimizer {
	return &Optimizer{cfg: cfg, estimator: cost.New()}
}

const (
	passConstantFold        = "constant_folding"
	passDeadCode            = "dead_code_elimination"
	passPredicatePushdown   = "predicate_pushdown"
	passProjectionPushdown  = "projection_pushdown"
)

// Optimize runs the enabled rewrite passes to a fixed point (or until
// MaxPasses is reached), then runs the two non-mutating analysis passes
// once over the final tree.
func (o *Optimizer) Optimize(stmt ast.Statement) *Result {
	before := o.estimator.Statement(stmt)
	current := stmt
	applied := []string{}

	for i := 0; i < o.cfg.maxPasses(); i++ {
		changedThisPass := false

		if o.cfg.enabled(passConstantFold) {
			next, changed := foldConstants(current)
			if changed && o.keepIfNotWorse(current, next) {
				current = next
				applied = append(applied, passConstantFold)
				changedThisPass = true
			}
		}
		if o.cfg.enabled(passDeadCode) {
			next, changed := eliminateDeadCode(current)
			if changed && o.keepIfNotWorse(current, next) {
				current = next
				applied = append(applied, passDeadCode)
				changedThisPass = true
			}
		}
		if o.cfg.enabled(passPredicatePushdown) {
			next, changed := pushdownPredicates(current)
			if changed && o.keepIfNotWorse(current, next) {
				current = next
				applied = append(applied, passPredicatePushdown)
				changedThisPass = true
			}
		}
		if o.cfg.enabled(passProjectionPushdown) {
			next, changed := pushdownProjection(current)
			if changed && o.keepIfNotWorse(current, next) {
				current = next
				applied = append(applied, passProjectionPushdown)
				changedThisPass = true
			}
		}

		if !changedThisPass {
			break
		}
	}

	after := o.estimator.Statement(current)

	res := &Result{
		Statement:     current,
		AppliedPasses: applied,
		CostBefore:    before,
		CostAfter:     after,
		Cache:         map[ast.Statement]CacheInfo{},
	}
	analyzeCacheability(current, res.Cache)
	res.ParallelGroups = detectParallelGroups(current)

	largest := 0
	for _, g := range res.ParallelGroups {
		if len(g) > largest {
			largest = len(g)
		}
	}
	total := o.estimator.Scaling.ParallelDiscount(after.Total(), largest)
	if info, ok := res.Cache[current]; ok && info.Cacheable {
		total += o.estimator.Base.CacheHit
		if total < 0 {
			total = 0
		}
	}
	res.EstimatedTotalMS = total
	return res
}

// keepIfNotWorse recomputes cost for candidate and reports whether it is an
// acceptable replacement for current: total cost must not have increased.
func (o *Optimizer) keepIfNotWorse(current, candidate ast.Statement) bool {
	return o.estimator.Statement(candidate).Total() <= o.estimator.Statement(current).Total()+1e-9
}

// collectIdentifiers walks expr and returns the set of bare identifier
// names it references (used by the pushdown passes to decide whether a
// predicate or field is self-contained within a subquery's output).
func collectIdentifiers(expr ast.Expression, into map[string]bool) {
	switch n := expr.(type) {
	case nil:
	case *ast.Identifier:
		into[n.Name] = true
	case *ast.Binary:
		collectIdentifiers(n.Left, into)
		collectIdentifiers(n.Right, into)
	case *ast.Unary:
		collectIdentifiers(n.Operand, into)
	case *ast.Call:
		for _, a := range n.Args {
			collectIdentifiers(a, into)
		}
	case *ast.Member:
		collectIdentifiers(n.Object, into)
		if n.Computed {
			collectIdentifiers(n.Property, into)
		}
	case *ast.Array:
		for _, e := range n.Elements {
			collectIdentifiers(e, into)
		}
	case *ast.Object:
		for _, p := range n.Properties {
			collectIdentifiers(p.Value, into)
		}
	}
}

// memberRoot returns the leftmost identifier name of a dotted-member chain
// (a.b.c -> "a"), or "" if expr isn't rooted in an identifier.
func memberRoot(expr ast.Expression) string {
	switch n := expr.(type) {
	case *ast.Identifier:
		return n.Name
	case *ast.Member:
		return memberRoot(n.Object)
	}
	return ""
}
