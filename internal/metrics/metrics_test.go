package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregatorCountsQueryLifecycle(t *testing.T) {
	a := New()
	a.RecordQueryStart()
	a.RecordStep(true, true)
	a.RecordStep(false, false)
	a.RecordQueryEnd("q1", 12.5, true, false, false)

	snap := a.Snapshot()
	require.EqualValues(t, 1, snap.QueriesStarted)
	require.EqualValues(t, 1, snap.QueriesSucceeded)
	require.EqualValues(t, 2, snap.StepsExecuted)
	require.EqualValues(t, 1, snap.CacheHits)
	require.EqualValues(t, 1, snap.CacheMisses)
	require.EqualValues(t, 1, snap.NavigationCount)
	require.Len(t, snap.LastSamples, 1)
}

func TestAggregatorRecordsFailureAndCancellation(t *testing.T) {
	a := New()
	a.RecordQueryEnd("q1", 1, false, true, false)
	a.RecordQueryEnd("q2", 1, false, false, true)

	snap := a.Snapshot()
	require.EqualValues(t, 1, snap.QueriesFailed)
	require.EqualValues(t, 1, snap.QueriesCancelled)
}

func TestAggregatorSampleRingBounded(t *testing.T) {
	a := New()
	a.ring = 4
	for i := 0; i < 10; i++ {
		a.RecordQueryEnd("q", 1, false, false, false)
	}
	require.Len(t, a.Snapshot().LastSamples, 4)
}

func TestAggregatorConcurrentRecordsDoNotRace(t *testing.T) {
	a := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.RecordQueryStart()
			a.RecordStep(false, false)
			a.RecordQueryEnd("q", 1, false, false, false)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 50, a.Snapshot().QueriesStarted)
}
