package engine

import (
	"context"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/require"

	"github.com/webql/webql/controllers"
)

func newTestEngine() (*Engine, *controllers.MockBrowser, *controllers.MockProxy) {
	browser := controllers.NewMockBrowser()
	proxy := controllers.NewMockProxy()
	e := NewDefault(browser, proxy, controllers.MockFormatter{})
	return e, browser, proxy
}

func TestExecuteRunsLiteralPipelineAndFormats(t *testing.T) {
	e, browser, _ := newTestEngine()
	browser.DOMQueryResults["body"] = []controllers.Row{{"n": 5.0}}

	res, err := e.Execute(context.Background(), `SELECT n FROM 'about:blank'`, QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, res.QueryID)
	require.Equal(t, 1, res.Metadata.NavigationCount)
	require.Greater(t, res.Timing.TotalMS, 0.0)
	require.Equal(t, "JSON:[map[n:5]]", res.Data)
}

func TestExecuteDefaultPermissionsRejectWriteSteps(t *testing.T) {
	e, _, _ := newTestEngine()

	_, err := e.Execute(context.Background(), `SET x = 1`, QueryOptions{})
	require.Error(t, err)
}

func TestExecuteGrantedWritePermissionSucceeds(t *testing.T) {
	e, _, _ := newTestEngine()

	res, err := e.Execute(context.Background(), `SET x = 1`, QueryOptions{Permissions: ReadPerm | WritePerm | NavigatePerm})
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestExecuteAsyncReachesSucceededState(t *testing.T) {
	e, browser, _ := newTestEngine()
	browser.DOMQueryResults["body"] = []controllers.Row{{"n": 1.0}}

	queryID, err := e.ExecuteAsync(`SELECT n FROM 'about:blank'`, QueryOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := e.GetQueryStatus(queryID)
		require.NoError(t, err)
		return status.State == StateSucceeded
	}, time.Second, time.Millisecond)
}

func TestCancelQueryIsIdempotentAndRejectsFinishedQuery(t *testing.T) {
	e, browser, _ := newTestEngine()
	browser.DOMQueryResults["body"] = []controllers.Row{{"n": 1.0}}

	queryID, err := e.ExecuteAsync(`SELECT n FROM 'about:blank'`, QueryOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := e.GetQueryStatus(queryID)
		require.NoError(t, err)
		return status.State == StateSucceeded
	}, time.Second, time.Millisecond)

	err = e.CancelQuery(queryID)
	require.Error(t, err, "cancelling an already-finished query must error")
}

func TestCancelQueryUnknownIDErrors(t *testing.T) {
	e, _, _ := newTestEngine()
	err := e.CancelQuery("does-not-exist")
	require.Error(t, err)
}

func TestGetMetricsReflectsQueryOutcome(t *testing.T) {
	e, browser, _ := newTestEngine()
	browser.DOMQueryResults["body"] = []controllers.Row{{"n": 1.0}}

	_, err := e.Execute(context.Background(), `SELECT n FROM 'about:blank'`, QueryOptions{})
	require.NoError(t, err)

	snap := e.GetMetrics()
	require.GreaterOrEqual(t, snap.QueriesStarted, uint64(1))
	require.GreaterOrEqual(t, snap.QueriesSucceeded, uint64(1))
}

func TestShutdownCancelsInFlightQueries(t *testing.T) {
	e, browser, _ := newTestEngine()
	browser.DOMQueryResults["body"] = []controllers.Row{{"n": 1.0}}

	_, err := e.ExecuteAsync(`SELECT n FROM 'about:blank'`, QueryOptions{})
	require.NoError(t, err)

	require.NoError(t, e.Shutdown())
}

func TestExecuteTraceEmitsSpans(t *testing.T) {
	tracer := mocktracer.New()
	browser := controllers.NewMockBrowser()
	browser.DOMQueryResults["body"] = []controllers.Row{{"n": 1.0}}
	e := New(browser, controllers.NewMockProxy(), controllers.MockFormatter{}, Config{Tracer: tracer})

	_, err := e.Execute(context.Background(), `SELECT n FROM 'about:blank'`, QueryOptions{Trace: true})
	require.NoError(t, err)

	spans := tracer.FinishedSpans()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.OperationName
	}
	require.Contains(t, names, "webql.query")
	require.Contains(t, names, "webql.compile")
	require.Contains(t, names, "webql.execute")
}

func TestExecuteWithoutTraceEmitsNoSpans(t *testing.T) {
	tracer := mocktracer.New()
	browser := controllers.NewMockBrowser()
	browser.DOMQueryResults["body"] = []controllers.Row{{"n": 1.0}}
	e := New(browser, controllers.NewMockProxy(), controllers.MockFormatter{}, Config{Tracer: tracer})

	_, err := e.Execute(context.Background(), `SELECT n FROM 'about:blank'`, QueryOptions{})
	require.NoError(t, err)
	require.Empty(t, tracer.FinishedSpans())
}
