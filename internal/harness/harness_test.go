package harness

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGolden_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, p := range paths {
		s, err := LoadScenario(p)
		require.NoError(t, err)
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/partial_update.yaml")
	require.NoError(t, err)

	r1, err := Run(s)
	require.NoError(t, err)
	r2, err := Run(s)
	require.NoError(t, err)

	snap1, err := Snapshot(s.Name, r1)
	require.NoError(t, err)
	snap2, err := Snapshot(s.Name, r2)
	require.NoError(t, err)
	assert.Equal(t, string(snap1), string(snap2))
}

func TestRun_ReportsWrongPartition(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
description: expects a commit that cannot happen
remote:
  fail_save: [k1]
steps:
  - op: save
    collection: books
    doc: { _id: k1 }
  - op: sync
    collection: books
    expect:
      commit: [k1]
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "commit: expected [k1], got []")
}

func TestRun_ReportsUnexpectedError(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: miss
description: reads a record that was never stored
steps:
  - op: get
    collection: books
    id: nope
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Equal(t, "NOT_FOUND", result.Trace[0].Error)
}

func TestRun_ExpectedErrorThatDidNotHappen(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: no_error
description: expects a failure from a successful save
steps:
  - op: save
    collection: books
    doc: { _id: k1 }
    expect:
      error: NOT_FOUND
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, strings.Join(result.Errors, "\n"), "expected NOT_FOUND, got success")
}

func TestRun_SyncAllTracesEachPass(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: all
description: two collections sync in name order
steps:
  - op: save
    collection: movies
    doc: { _id: m1 }
  - op: save
    collection: books
    doc: { _id: b1 }
  - op: sync_all
    expect:
      ids: [books, movies]
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)
	require.Len(t, result.Trace, 5)

	assert.Equal(t, OpSyncAll, result.Trace[2].Op)
	assert.Equal(t, "books", result.Trace[3].Collection)
	assert.Equal(t, "pass-1", result.Trace[3].Pass)
	assert.Equal(t, []string{"b1"}, result.Trace[3].Commit)
	assert.Equal(t, "movies", result.Trace[4].Collection)
	assert.Equal(t, "pass-2", result.Trace[4].Pass)
	assert.Len(t, result.RemoteCalls, 2)
}

func TestRun_FailedAssertion(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: assert
description: the record was never synced
steps:
  - op: save
    collection: books
    doc: { _id: k1 }
assertions:
  - type: remote_record
    collection: books
    id: k1
  - type: pending
    collection: books
    ids: [k1]
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertion 0 (remote_record books)")
}

func TestRun_BadStepArguments(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad
description: a query with an unknown operator
steps:
  - op: find
    collection: books
    query:
      filter: { $where: "1" }
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 (find)")
}

func TestSubset(t *testing.T) {
	tests := []struct {
		name      string
		want, got string
		match     bool
	}{
		{"equal", `{"a":1}`, `{"a":1}`, true},
		{"extra keys", `{"a":1}`, `{"a":1,"b":2}`, true},
		{"missing key", `{"c":1}`, `{"a":1}`, false},
		{"nested", `{"k":{"lmt":"x"}}`, `{"k":{"lmt":"x","v":1}}`, true},
		{"number forms", `{"a":1}`, `{"a":1.0}`, true},
		{"array length", `[1]`, `[1,2]`, false},
		{"array elements", `[{"a":1}]`, `[{"a":1,"b":2}]`, true},
		{"type mismatch", `{"a":"1"}`, `{"a":1}`, false},
		{"null", `null`, `null`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, subset(decodeJSON(t, tt.want), decodeJSON(t, tt.got)))
		})
	}
}

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	v, err := normalize(json.RawMessage(s))
	require.NoError(t, err)
	return v
}
