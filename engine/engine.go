// Package engine is the public facade: one Engine wraps the compiler
// pipeline (lexer → parser → semantic → optimizer → plan → depgraph → exec)
// behind Execute/ExecuteAsync/CancelQuery/GetQueryStatus/GetMetrics,
// tracking every in-flight query in a process-list-style table.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/controllers"
	"github.com/webql/webql/cost"
	"github.com/webql/webql/depgraph"
	werrors "github.com/webql/webql/errors"
	"github.com/webql/webql/exec"
	"github.com/webql/webql/internal/metrics"
	"github.com/webql/webql/lexer"
	"github.com/webql/webql/optimizer"
	"github.com/webql/webql/parser"
	"github.com/webql/webql/plan"
	"github.com/webql/webql/semantic"
)

// Format is one of the engine's output encodings.
type Format string

const (
	FormatJSON   Format = "JSON"
	FormatTable  Format = "TABLE"
	FormatCSV    Format = "CSV"
	FormatHTML   Format = "HTML"
	FormatXML    Format = "XML"
	FormatYAML   Format = "YAML"
	FormatStream Format = "STREAM"
)

// QueryOptions tunes one execute/executeAsync call.
type QueryOptions struct {
	Timeout     time.Duration
	Permissions Permission
	Format      Format
	Stream      bool
	Trace       bool
	Profile     bool
}

func (o QueryOptions) permissions() Permission {
	if o.Permissions == 0 {
		return DefaultPermissions
	}
	return o.Permissions
}

func (o QueryOptions) format() controllers.FormatOptions {
	return controllers.FormatOptions{Pretty: o.Trace || o.Profile}
}

// Timing breaks total query latency down by compiler stage.
type Timing struct {
	LexerMS    float64
	ParserMS   float64
	SemanticMS float64
	OptimizeMS float64
	PlanMS     float64
	ExecuteMS  float64
	FormatMS   float64
	TotalMS    float64
}

// Metadata carries the post-optimization AST and execution summary
// attached to a QueryResult.
type Metadata struct {
	OptimizedAST    ast.Statement
	StepCount       int
	EstimatedCost   cost.Cost
	ActualCostMS    float64
	NavigationCount int
	CacheHits       int
	CacheMisses     int
}

// QueryResult is what Execute returns on success.
type QueryResult struct {
	QueryID  string
	Data     interface{}
	Timing   Timing
	Metadata Metadata
}

// State is one of the closed QueryStatus states.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
	StateTimeout   State = "TIMEOUT"
)

// QueryStatus is the observable state of one tracked query.
type QueryStatus struct {
	State          State
	Progress       float64
	StepsCompleted int
	StepsTotal     int
	CurrentStepID  string
	Error          error
}

// Config tunes the Engine, mirroring engine.go's Config/New/NewDefault
// pairing: exported, documented fields a caller overrides, with a
// NewDefault for the common case.
type Config struct {
	SemanticConfig  semantic.Config
	OptimizerConfig optimizer.Config
	DefaultTimeout  time.Duration
	Logger          *logrus.Logger
	// StrictVariables rejects identifiers with no bound symbol at compile
	// time instead of deferring them to runtime DOM-field resolution.
	StrictVariables bool
	// Tracer receives the spans emitted when QueryOptions.Trace is set.
	// Nil falls back to opentracing.GlobalTracer(), a no-op unless the
	// caller registered one.
	Tracer opentracing.Tracer
}

func (c Config) tracer() opentracing.Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}
	return opentracing.GlobalTracer()
}

func (c Config) semanticConfig() semantic.Config {
	sc := c.SemanticConfig
	if !c.StrictVariables {
		sc.AllowUndefinedVariables = true
	}
	return sc
}

func (c Config) defaultTimeout() time.Duration {
	if c.DefaultTimeout <= 0 {
		return 30 * time.Second
	}
	return c.DefaultTimeout
}

func (c Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

type queryState struct {
	mu         sync.Mutex
	status     QueryStatus
	cancelFunc context.CancelFunc
	executor   *exec.Executor
}

func (q *queryState) snapshot() QueryStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

func (q *queryState) update(fn func(*QueryStatus)) {
	q.mu.Lock()
	fn(&q.status)
	q.mu.Unlock()
}

// Engine is the compiler+executor facade. One Engine instance serves many
// concurrent queries; each query owns its own AST/plan/runtime cache, per
// the executor's shared-resource policy, and only the metrics aggregator
// and the query-status table are shared mutable state.
type Engine struct {
	cfg       Config
	browser   controllers.Browser
	proxy     controllers.Proxy
	formatter controllers.Formatter
	metrics   *metrics.Aggregator
	log       *logrus.Logger

	mu      sync.Mutex
	queries map[string]*queryState
}

// New returns an Engine with the given collaborators and configuration.
func New(browser controllers.Browser, proxy controllers.Proxy, formatter controllers.Formatter, cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		browser:   browser,
		proxy:     proxy,
		formatter: formatter,
		metrics:   metrics.New(),
		log:       cfg.logger(),
		queries:   map[string]*queryState{},
	}
}

// NewDefault returns an Engine with zero-value Config.
func NewDefault(browser controllers.Browser, proxy controllers.Proxy, formatter controllers.Formatter) *Engine {
	return New(browser, proxy, formatter, Config{})
}

// Initialize swaps the engine's configuration in place; collaborators are
// already supplied at construction. Present so callers that expect an
// initialize/shutdown lifecycle pair have both halves.
func (e *Engine) Initialize(cfg Config) error {
	e.mu.Lock()
	e.cfg = cfg
	e.log = cfg.logger()
	e.mu.Unlock()
	return nil
}

// Shutdown cancels every tracked query and flushes the metrics aggregator.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	for _, q := range e.queries {
		if q.cancelFunc != nil {
			q.cancelFunc()
		}
	}
	e.mu.Unlock()
	return e.metrics.Close()
}

// GetMetrics returns a snapshot of the cross-query metrics aggregator.
func (e *Engine) GetMetrics() metrics.Snapshot {
	return e.metrics.Snapshot()
}

type compiled struct {
	plan    *plan.Plan
	order   []string
	optimal *optimizer.Result
	timing  Timing
}

func (e *Engine) compile(query string) (*compiled, error) {
	var t Timing

	start := time.Now()
	if _, err := lexer.Tokenize(query); err != nil {
		return nil, werrors.Lexer.New("%s", err).WithContext("query", query)
	}
	t.LexerMS = msSince(start)

	parseStart := time.Now()
	stmt, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}
	t.ParserMS = msSince(parseStart)

	semanticStart := time.Now()
	analyzer := semantic.New(e.cfg.semanticConfig())
	if _, err := analyzer.Analyze(stmt); err != nil {
		return nil, err
	}
	t.SemanticMS = msSince(semanticStart)

	optimizeStart := time.Now()
	opt := optimizer.New(e.cfg.OptimizerConfig)
	res := opt.Optimize(stmt)
	t.OptimizeMS = msSince(optimizeStart)

	planStart := time.Now()
	p := plan.New(res.Cache).Plan(res.Statement)
	natural := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		natural[i] = s.ID
	}
	graph, err := depgraph.Build(p.Steps)
	if err != nil {
		return nil, werrors.Execution.New("%s", err)
	}
	order, ok := graph.TopoSort(natural)
	if !ok {
		order = natural
	}
	t.PlanMS = msSince(planStart)

	return &compiled{plan: p, order: order, optimal: res, timing: t}, nil
}

// requiredPermission returns the Permission bit a step kind needs.
func requiredPermission(k plan.Kind) Permission {
	switch k {
	case plan.NAVIGATE:
		return NavigatePerm
	case plan.CLICK, plan.TYPE, plan.EVALUATE_JS, plan.ASSIGN, plan.WRITE_VARIABLE,
		plan.CACHE_STORE, plan.MODIFY_REQUEST:
		return WritePerm
	default:
		return ReadPerm
	}
}

func (e *Engine) checkPermissions(p *plan.Plan, granted Permission) error {
	for _, s := range p.Steps {
		if need := requiredPermission(s.Kind); !granted.Has(need) {
			return werrors.Permission.New("step %s (%s) requires %s permission", s.ID, s.Kind, need).
				WithContext("step", s.ID).WithContext("kind", s.Kind.String())
		}
	}
	return nil
}

// startSpan begins a tracing span when the query asked for tracing,
// returning a nil span (and the unchanged context) otherwise so call sites
// stay a single line.
func (e *Engine) startSpan(ctx context.Context, enabled bool, operation string) (opentracing.Span, context.Context) {
	if !enabled {
		return nil, ctx
	}
	return opentracing.StartSpanFromContextWithTracer(ctx, e.cfg.tracer(), operation)
}

func finishSpan(span opentracing.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.SetTag("error", true)
		span.LogKV("message", err.Error())
	}
	span.Finish()
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func newQueryID() string {
	return uuid.NewV4().String()
}

// Execute synchronously compiles and runs query, returning its result or
// the first error encountered at any stage.
func (e *Engine) Execute(ctx context.Context, query string, opts QueryOptions) (*QueryResult, error) {
	totalStart := time.Now()
	queryID := newQueryID()
	e.metrics.RecordQueryStart()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.cfg.defaultTimeout()
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	querySpan, runCtx := e.startSpan(runCtx, opts.Trace, "webql.query")
	if querySpan != nil {
		querySpan.SetTag("queryId", queryID)
	}

	compileSpan, _ := e.startSpan(runCtx, opts.Trace, "webql.compile")
	c, err := e.compile(query)
	finishSpan(compileSpan, err)
	if err != nil {
		e.metrics.RecordQueryEnd(queryID, msSince(totalStart), false, true, false)
		finishSpan(querySpan, err)
		return nil, err
	}

	if err := e.checkPermissions(c.plan, opts.permissions()); err != nil {
		e.metrics.RecordQueryEnd(queryID, msSince(totalStart), false, true, false)
		finishSpan(querySpan, err)
		return nil, err
	}

	qs := &queryState{status: QueryStatus{State: StateRunning, StepsTotal: len(c.plan.Steps)}, cancelFunc: cancel}
	e.track(queryID, qs)
	defer e.untrack(queryID)

	executor := exec.New(e.browser, e.proxy)
	qs.update(func(s *QueryStatus) { s.State = StateRunning })

	execStart := time.Now()
	execSpan, execCtx := e.startSpan(runCtx, opts.Trace, "webql.execute")
	result, err := executor.Run(execCtx, c.plan, c.order)
	finishSpan(execSpan, err)
	execMS := msSince(execStart)
	c.timing.ExecuteMS = execMS

	stepsRun, navCount, cacheHits, cacheMisses := executor.Stats(c.plan)
	e.metrics.RecordQuerySteps(stepsRun, navCount, cacheHits, cacheMisses)

	cacheHit := result.CacheHit
	if err != nil {
		cancelled := errors.Is(err, exec.ErrCancelled)
		timedOut := !cancelled && runCtx.Err() == context.DeadlineExceeded
		state := StateFailed
		switch {
		case cancelled:
			state = StateCancelled
		case timedOut:
			state = StateTimeout
			err = werrors.Timeout.New("query %s exceeded %s", queryID, timeout)
		}
		qs.update(func(s *QueryStatus) { s.State = state; s.Error = err })
		e.metrics.RecordQueryEnd(queryID, msSince(totalStart), cacheHit, state == StateFailed, state == StateCancelled)
		e.log.WithFields(logrus.Fields{"queryId": queryID, "state": state}).WithError(err).Warn("query did not complete")
		finishSpan(querySpan, err)
		return nil, err
	}

	formatStart := time.Now()
	data := result.Data
	if e.formatter != nil {
		formatted, ferr := e.formatter.Format(data, string(formatFor(opts)), opts.format())
		if ferr != nil {
			wrapped := werrors.Wrap(werrors.Execution, ferr, "formatting result")
			finishSpan(querySpan, wrapped)
			return nil, wrapped
		}
		data = formatted
	}
	c.timing.FormatMS = msSince(formatStart)
	c.timing.TotalMS = msSince(totalStart)

	qs.update(func(s *QueryStatus) { s.State = StateSucceeded; s.StepsCompleted = s.StepsTotal; s.Progress = 1 })
	e.metrics.RecordQueryEnd(queryID, c.timing.TotalMS, cacheHit, false, false)
	e.log.WithFields(logrus.Fields{"queryId": queryID, "totalMs": c.timing.TotalMS, "cacheHit": cacheHit}).Debug("query completed")
	finishSpan(querySpan, nil)

	return &QueryResult{
		QueryID: queryID,
		Data:    data,
		Timing:  c.timing,
		Metadata: Metadata{
			OptimizedAST:    c.optimal.Statement,
			StepCount:       len(c.plan.Steps),
			EstimatedCost:   c.optimal.CostAfter,
			ActualCostMS:    execMS,
			NavigationCount: navCount,
			CacheHits:       cacheHits,
			CacheMisses:     cacheMisses,
		},
	}, nil
}

func formatFor(opts QueryOptions) Format {
	if opts.Format == "" {
		return FormatJSON
	}
	return opts.Format
}

func (e *Engine) track(id string, q *queryState) {
	e.mu.Lock()
	e.queries[id] = q
	e.mu.Unlock()
}

func (e *Engine) untrack(id string) {
	e.mu.Lock()
	delete(e.queries, id)
	e.mu.Unlock()
}

// ExecuteAsync starts compilation and execution in a goroutine and returns
// the query id immediately; progress is observable via GetQueryStatus.
func (e *Engine) ExecuteAsync(query string, opts QueryOptions) (string, error) {
	queryID := newQueryID()
	qs := &queryState{status: QueryStatus{State: StatePending}}
	e.track(queryID, qs)

	go func() {
		started := time.Now()
		e.metrics.RecordQueryStart()
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = e.cfg.defaultTimeout()
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		span, ctx := e.startSpan(ctx, opts.Trace, "webql.query")
		if span != nil {
			span.SetTag("queryId", queryID)
		}
		qs.update(func(s *QueryStatus) { s.State = StateRunning })
		qs.mu.Lock()
		qs.cancelFunc = cancel
		qs.mu.Unlock()
		defer cancel()

		c, err := e.compile(query)
		if err != nil {
			qs.update(func(s *QueryStatus) { s.State = StateFailed; s.Error = err })
			e.metrics.RecordQueryEnd(queryID, msSince(started), false, true, false)
			finishSpan(span, err)
			return
		}
		if err := e.checkPermissions(c.plan, opts.permissions()); err != nil {
			qs.update(func(s *QueryStatus) { s.State = StateFailed; s.Error = err })
			e.metrics.RecordQueryEnd(queryID, msSince(started), false, true, false)
			finishSpan(span, err)
			return
		}

		qs.update(func(s *QueryStatus) { s.StepsTotal = len(c.plan.Steps) })

		executor := exec.New(e.browser, e.proxy)
		qs.mu.Lock()
		qs.executor = executor
		qs.mu.Unlock()

		result, err := executor.Run(ctx, c.plan, c.order)
		stepsRun, navCount, cacheHits, cacheMisses := executor.Stats(c.plan)
		e.metrics.RecordQuerySteps(stepsRun, navCount, cacheHits, cacheMisses)
		switch {
		case errors.Is(err, exec.ErrCancelled):
			qs.update(func(s *QueryStatus) { s.State = StateCancelled })
			e.metrics.RecordQueryEnd(queryID, msSince(started), result.CacheHit, false, true)
		case ctx.Err() == context.DeadlineExceeded:
			qs.update(func(s *QueryStatus) { s.State = StateTimeout; s.Error = werrors.Timeout.New("query %s timed out", queryID) })
			e.metrics.RecordQueryEnd(queryID, msSince(started), result.CacheHit, true, false)
		case err != nil:
			qs.update(func(s *QueryStatus) { s.State = StateFailed; s.Error = err })
			e.metrics.RecordQueryEnd(queryID, msSince(started), result.CacheHit, true, false)
		default:
			qs.update(func(s *QueryStatus) {
				s.State = StateSucceeded
				s.StepsCompleted = s.StepsTotal
				s.Progress = 1
			})
			e.metrics.RecordQueryEnd(queryID, msSince(started), result.CacheHit, false, false)
		}
		finishSpan(span, err)
	}()

	return queryID, nil
}

// GetQueryStatus returns the tracked status of queryID.
func (e *Engine) GetQueryStatus(queryID string) (QueryStatus, error) {
	e.mu.Lock()
	qs, ok := e.queries[queryID]
	e.mu.Unlock()
	if !ok {
		return QueryStatus{}, werrors.Execution.New("unknown query %q", queryID).WithContext("queryId", queryID)
	}
	return qs.snapshot(), nil
}

// CancelQuery idempotently cancels a tracked, unfinished query.
func (e *Engine) CancelQuery(queryID string) error {
	e.mu.Lock()
	qs, ok := e.queries[queryID]
	e.mu.Unlock()
	if !ok {
		return werrors.Execution.New("unknown query %q", queryID).WithContext("queryId", queryID)
	}

	qs.mu.Lock()
	state := qs.status.State
	executor := qs.executor
	cancelFn := qs.cancelFunc
	qs.mu.Unlock()

	if state == StateSucceeded || state == StateFailed || state == StateCancelled || state == StateTimeout {
		return werrors.Execution.New("query %q is already finished", queryID).WithContext("queryId", queryID)
	}

	if executor != nil {
		executor.Cancel()
	}
	if cancelFn != nil {
		cancelFn()
	}
	qs.update(func(s *QueryStatus) { s.State = StateCancelled })
	return nil
}
