// Package metrics implements the engine's cross-query metrics aggregator.
// Per the executor's concurrency model, this is the only mutable state
// shared across queries; counters are atomics, and only the short
// recent-samples ring is appended under a mutex.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sample is one recorded query completion, identified with a pack-lineage
// UUID (google/uuid) rather than the engine's own satori/go.uuid query ids,
// so a sample survives independent of the query it was recorded from.
type Sample struct {
	ID         string
	QueryID    string
	DurationMS float64
	CacheHit   bool
	Failed     bool
}

// Snapshot is a point-in-time read of the aggregator's counters.
type Snapshot struct {
	QueriesStarted   uint64
	QueriesSucceeded uint64
	QueriesFailed    uint64
	QueriesCancelled uint64
	StepsExecuted    uint64
	CacheHits        uint64
	CacheMisses      uint64
	NavigationCount  uint64
	LastSamples      []Sample
}

// Aggregator is the append-only, lock-light counter set described in the
// executor's shared-resource policy: plain atomics for the hot path,
// a short mutex-guarded ring of recent samples for diagnostics, and its
// own zap logger for aggregator-level events (kept separate from the
// per-query logrus logging the engine does for individual executions).
type Aggregator struct {
	queriesStarted   atomic.Uint64
	queriesSucceeded atomic.Uint64
	queriesFailed    atomic.Uint64
	queriesCancelled atomic.Uint64
	stepsExecuted    atomic.Uint64
	cacheHits        atomic.Uint64
	cacheMisses      atomic.Uint64
	navigationCount  atomic.Uint64

	mu      sync.Mutex
	samples []Sample
	ring    int

	log *zap.Logger
}

// New returns an Aggregator backed by a production zap logger. Call Close
// to flush it on shutdown.
func New() *Aggregator {
	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	return &Aggregator{ring: 64, log: log}
}

// Close flushes the aggregator's logger.
func (a *Aggregator) Close() error {
	return a.log.Sync()
}

// RecordQueryStart increments the started counter.
func (a *Aggregator) RecordQueryStart() {
	a.queriesStarted.Add(1)
}

// RecordStep increments the steps-executed counter and, when the step was a
// cache hit or a NAVIGATE, the matching counter too.
func (a *Aggregator) RecordStep(cacheHit, navigate bool) {
	a.stepsExecuted.Add(1)
	if navigate {
		a.navigationCount.Add(1)
	}
	if cacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
}

// RecordQuerySteps folds one finished query's step tallies into the
// counters in a single pass, for callers that learn the per-step outcomes
// only after the run completes (the engine facade's post-run accounting).
func (a *Aggregator) RecordQuerySteps(executed, navigations, cacheHits, cacheMisses int) {
	a.stepsExecuted.Add(uint64(executed))
	a.navigationCount.Add(uint64(navigations))
	a.cacheHits.Add(uint64(cacheHits))
	a.cacheMisses.Add(uint64(cacheMisses))
}

// RecordQueryEnd records the terminal state of one query and appends a
// Sample to the diagnostic ring.
func (a *Aggregator) RecordQueryEnd(queryID string, durationMS float64, cacheHit, failed, cancelled bool) {
	switch {
	case cancelled:
		a.queriesCancelled.Add(1)
	case failed:
		a.queriesFailed.Add(1)
	default:
		a.queriesSucceeded.Add(1)
	}

	s := Sample{ID: uuid.New().String(), QueryID: queryID, DurationMS: durationMS, CacheHit: cacheHit, Failed: failed}

	a.mu.Lock()
	a.samples = append(a.samples, s)
	if len(a.samples) > a.ring {
		a.samples = a.samples[len(a.samples)-a.ring:]
	}
	a.mu.Unlock()

	a.log.Debug("query completed",
		zap.String("sampleId", s.ID),
		zap.String("queryId", queryID),
		zap.Float64("durationMs", durationMS),
		zap.Bool("cacheHit", cacheHit),
		zap.Bool("failed", failed),
		zap.Bool("cancelled", cancelled),
	)
}

// Snapshot returns the current aggregate counters plus a copy of the
// recent-samples ring. No ordering guarantee is made across counters: two
// calls racing with concurrent RecordXxx calls may observe a torn view.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	samples := make([]Sample, len(a.samples))
	copy(samples, a.samples)
	a.mu.Unlock()

	return Snapshot{
		QueriesStarted:   a.queriesStarted.Load(),
		QueriesSucceeded: a.queriesSucceeded.Load(),
		QueriesFailed:    a.queriesFailed.Load(),
		QueriesCancelled: a.queriesCancelled.Load(),
		StepsExecuted:    a.stepsExecuted.Load(),
		CacheHits:        a.cacheHits.Load(),
		CacheMisses:      a.cacheMisses.Load(),
		NavigationCount:  a.navigationCount.Load(),
		LastSamples:      samples,
	}
}
