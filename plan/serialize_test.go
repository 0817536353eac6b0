package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func assertPlansEqual(t *testing.T, want, got *Plan) {
	t.Helper()
	require.Equal(t, want.ResultID, got.ResultID)
	require.Equal(t, want.Resources, got.Resources)
	require.Len(t, got.Steps, len(want.Steps))
	for i := range want.Steps {
		require.Equal(t, want.Steps[i].ID, got.Steps[i].ID)
		require.Equal(t, want.Steps[i].Kind, got.Steps[i].Kind)
		require.Equal(t, want.Steps[i].Dependencies, got.Steps[i].Dependencies)
		require.Equal(t, want.Steps[i].Cacheable, got.Steps[i].Cacheable)
		require.Equal(t, want.Steps[i].CacheKey, got.Steps[i].CacheKey)
	}
}

func TestSerializeDeserializeRoundTripsSimplePlan(t *testing.T) {
	p := planQuery(t, `SELECT name FROM 'https://example.com' WHERE name = 'x' ORDER BY name LIMIT 10`)

	text, err := Serialize(p)
	require.NoError(t, err)
	require.NotEmpty(t, text)

	back, err := Deserialize(text)
	require.NoError(t, err)
	assertPlansEqual(t, p, back)

	// The URL literal on the NAVIGATE step must survive the expression
	// round trip, not just the step scaffolding.
	require.Equal(t, p.Steps[0].URL, back.Steps[0].URL)
}

func TestSerializeDeserializeRoundTripsNestedLoopPlan(t *testing.T) {
	p := planQuery(t, `FOR EACH u IN ['https://a', 'https://b'] { NAVIGATE TO u }`)

	text, err := Serialize(p)
	require.NoError(t, err)

	back, err := Deserialize(text)
	require.NoError(t, err)
	assertPlansEqual(t, p, back)

	require.Len(t, p.Steps, 1)
	require.Equal(t, LOOP, p.Steps[0].Kind)
	require.NotNil(t, back.Steps[0].Body)
	require.Equal(t, len(p.Steps[0].Body.Steps), len(back.Steps[0].Body.Steps))
}

func TestDeserializeRejectsDanglingDependency(t *testing.T) {
	// A hand-edited or truncated snapshot referencing a dependency id that
	// doesn't exist must fail re-validation, not load silently.
	bad, err := Deserialize(`{"resultId":"step_1","steps":[{"id":"step_1","kind":"NAVIGATE","dependencies":["step_missing"]}]}`)
	require.Error(t, err)
	require.Nil(t, bad)
}

func TestSerializeRejectsCyclicPlan(t *testing.T) {
	cyclic := &Plan{
		Steps: []*Step{
			{ID: "a", Kind: ASSIGN, Dependencies: []string{"b"}},
			{ID: "b", Kind: ASSIGN, Dependencies: []string{"a"}},
		},
		ResultID: "b",
	}
	_, err := Serialize(cyclic)
	require.Error(t, err)
}
