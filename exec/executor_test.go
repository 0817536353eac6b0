package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webql/webql/controllers"
	"github.com/webql/webql/depgraph"
	"github.com/webql/webql/evalcore"
	"github.com/webql/webql/optimizer"
	"github.com/webql/webql/parser"
	"github.com/webql/webql/plan"
)

func planAndOrder(t *testing.T, query string) (*plan.Plan, []string) {
	t.Helper()
	stmt, err := parser.Parse(query)
	require.NoError(t, err)
	res := optimizer.New(optimizer.Config{}).Optimize(stmt)
	p := plan.New(res.Cache).Plan(res.Statement)
	natural := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		natural[i] = s.ID
	}
	g, err := depgraph.Build(p.Steps)
	require.NoError(t, err)
	order, ok := g.TopoSort(natural)
	require.True(t, ok)
	return p, order
}

func TestExecutorRunsLiteralSelectPipeline(t *testing.T) {
	browser := controllers.NewMockBrowser()
	browser.DOMQueryResults["body"] = []controllers.Row{{"n": 5.0}}
	ex := New(browser, controllers.NewMockProxy())

	p, order := planAndOrder(t, `SELECT n FROM 'about:blank'`)
	res, err := ex.Run(context.Background(), p, order)
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, []string{"about:blank"}, browser.NavigateCalls)
}

func TestExecutorCacheHitSkipsSecondNavigate(t *testing.T) {
	browser := controllers.NewMockBrowser()
	browser.DOMQueryResults["body"] = []controllers.Row{{"title": "x"}}
	ex := New(browser, controllers.NewMockProxy())

	p, order := planAndOrder(t, `SELECT title FROM 'https://x'`)
	_, err := ex.Run(context.Background(), p, order)
	require.NoError(t, err)
	require.Len(t, browser.NavigateCalls, 1)

	p2, order2 := planAndOrder(t, `SELECT title FROM 'https://x'`)
	_, err = ex.Run(context.Background(), p2, order2)
	require.NoError(t, err)
	require.Len(t, browser.NavigateCalls, 1, "the second run's NAVIGATE step should be served from the runtime cache")
}

func TestExecutorDeadCodeIfRunsSingleReadVariableStep(t *testing.T) {
	ex := New(controllers.NewMockBrowser(), controllers.NewMockProxy())
	ex.vars.WriteGlobal("METRICS", nil)

	p, order := planAndOrder(t, `IF false THEN SHOW CACHE ELSE SHOW METRICS`)
	res, err := ex.Run(context.Background(), p, order)
	require.NoError(t, err)
	require.True(t, res.OK)
}

func TestExecutorLoopAggregatesPerIterationResults(t *testing.T) {
	browser := controllers.NewMockBrowser()
	ex := New(browser, controllers.NewMockProxy())

	p, order := planAndOrder(t, `FOR EACH u IN [1, 2] { SET x = u }`)
	res, err := ex.Run(context.Background(), p, order)
	require.NoError(t, err)
	results, ok := res.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)
}

func TestExecutorCancellationHaltsBeforeNextStep(t *testing.T) {
	ex := New(controllers.NewMockBrowser(), controllers.NewMockProxy())
	p, order := planAndOrder(t, `SELECT n FROM 'https://example.com'`)
	ex.Cancel()
	_, err := ex.Run(context.Background(), p, order)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestExecutorReadUndefinedVariableFails(t *testing.T) {
	ex := New(controllers.NewMockBrowser(), controllers.NewMockProxy())
	p, order := planAndOrder(t, `SHOW NOPE`)
	_, err := ex.Run(context.Background(), p, order)
	require.Error(t, err)
}

func TestExecutorFilterChainsOffDOMQuery(t *testing.T) {
	browser := controllers.NewMockBrowser()
	browser.DOMQueryResults["body"] = []controllers.Row{
		{"name": "ada", "age": 36.0},
		{"name": "bob", "age": 12.0},
	}
	ex := New(browser, controllers.NewMockProxy())

	p, order := planAndOrder(t, `SELECT name, age FROM 'https://x' WHERE age > 18`)
	res, err := ex.Run(context.Background(), p, order)
	require.NoError(t, err)

	rows, ok := toSequence(res.Data)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row, ok := rows[0].Val.(map[string]evalcore.Value)
	require.True(t, ok)
	require.Equal(t, "ada", row["name"].Val)
}

func TestExecutorSortAndLimitOverDOMRows(t *testing.T) {
	browser := controllers.NewMockBrowser()
	browser.DOMQueryResults["body"] = []controllers.Row{
		{"n": 3.0}, {"n": 1.0}, {"n": 2.0},
	}
	ex := New(browser, controllers.NewMockProxy())

	p, order := planAndOrder(t, `SELECT n FROM 'https://x' ORDER BY n DESC LIMIT 2`)
	res, err := ex.Run(context.Background(), p, order)
	require.NoError(t, err)

	rows, ok := toSequence(res.Data)
	require.True(t, ok)
	require.Len(t, rows, 2)
	first := rows[0].Val.(map[string]evalcore.Value)
	require.Equal(t, 3.0, first["n"].Val)
}

func TestExecutorBindsCTEResultUnderItsName(t *testing.T) {
	browser := controllers.NewMockBrowser()
	browser.DOMQueryResults["body"] = []controllers.Row{{"name": "x"}}
	ex := New(browser, controllers.NewMockProxy())

	p, order := planAndOrder(t, `WITH src AS (SELECT name FROM 'https://x') SELECT name FROM src`)
	res, err := ex.Run(context.Background(), p, order)
	require.NoError(t, err)
	require.True(t, res.OK)

	bound, ok := ex.vars.Read("src")
	require.True(t, ok)
	seq, ok := toSequence(bound)
	require.True(t, ok)
	require.Len(t, seq, 1)
}
