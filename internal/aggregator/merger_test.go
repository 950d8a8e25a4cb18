package aggregator

import (
	"testing"

	"toolgate/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFirstWins(t *testing.T) {
	alpha := &fakeClient{}
	beta := &fakeClient{}
	results := []serverResult{
		{spec: testSpec("alpha"), client: alpha, tools: mkTools("search", "post")},
		{spec: testSpec("beta"), client: beta, tools: mkTools("search", "trend")},
	}

	entries, collisions := mergeResults(results, config.CollisionFirstWins)

	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries["search"].server)
	assert.Equal(t, "alpha", entries["post"].server)
	assert.Equal(t, "beta", entries["trend"].server)

	require.Len(t, collisions, 1)
	assert.Equal(t, Collision{Tool: "search", Winner: "alpha", Loser: "beta"}, collisions[0])
}

func TestMergeLastWins(t *testing.T) {
	results := []serverResult{
		{spec: testSpec("alpha"), client: &fakeClient{}, tools: mkTools("search")},
		{spec: testSpec("beta"), client: &fakeClient{}, tools: mkTools("search")},
	}

	entries, collisions := mergeResults(results, config.CollisionLastWins)

	assert.Equal(t, "beta", entries["search"].server)
	require.Len(t, collisions, 1)
	assert.Equal(t, Collision{Tool: "search", Winner: "beta", Loser: "alpha"}, collisions[0])
}

func TestMergeSkipsFailedServers(t *testing.T) {
	results := []serverResult{
		{spec: testSpec("alpha"), err: &ConnectError{Server: "alpha"}},
		{spec: testSpec("beta"), client: &fakeClient{}, tools: mkTools("trend")},
	}

	entries, collisions := mergeResults(results, config.CollisionFirstWins)

	require.Len(t, entries, 1)
	assert.Equal(t, "beta", entries["trend"].server)
	assert.Empty(t, collisions)
}

// Collision resolution depends on registry position only: the same results in
// the same slots produce the same winner no matter how the slots were filled.
func TestMergeDeterministicAcrossRepetition(t *testing.T) {
	for i := 0; i < 50; i++ {
		results := []serverResult{
			{spec: testSpec("alpha"), client: &fakeClient{}, tools: mkTools("shared")},
			{spec: testSpec("beta"), client: &fakeClient{}, tools: mkTools("shared")},
		}
		entries, _ := mergeResults(results, config.CollisionFirstWins)
		require.Equal(t, "alpha", entries["shared"].server)
	}
}

func TestMergeCarriesCallTimeout(t *testing.T) {
	spec := testSpec("alpha")
	results := []serverResult{{spec: spec, client: &fakeClient{}, tools: mkTools("post")}}

	entries, _ := mergeResults(results, config.CollisionFirstWins)

	assert.Equal(t, spec.CallTimeout.Std(), entries["post"].callTimeout)
}
