package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFoldsEachKeyThroughItsReducer(t *testing.T) {
	st := New(map[string]any{"amount": 12.0}, map[string]any{"run_id": "r1"})

	st.Apply(Delta{
		KeyResults:   map[string]any{"a": "first"},
		KeyScores:    map[string]float64{"a": 10},
		KeyMessages:  []string{"a done"},
		KeyCompleted: []string{"a"},
	})
	st.Apply(Delta{
		KeyResults:   map[string]any{"b": "second"},
		KeyScores:    map[string]float64{"b": 20},
		KeyMessages:  []string{"b done"},
		KeyCompleted: []string{"b"},
	})

	wantResults := map[string]any{"a": "first", "b": "second"}
	if diff := cmp.Diff(wantResults, st.Results()); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"a done", "b done"}, st.Messages())
	assert.Equal(t, []string{"a", "b"}, st.Completed())
	assert.Equal(t, map[string]float64{"a": 10, "b": 20}, st.Scores())
}

func TestApplyFoldOrderDecidesLastWriteKeys(t *testing.T) {
	st := New("in", nil)

	// Same layer, two writers: the fold order is fixed by declared node
	// order, so the later delta wins deterministically.
	st.Apply(Delta{KeyDecision: "REVIEW"})
	st.Apply(Delta{KeyDecision: "DECLINE"})

	assert.Equal(t, "DECLINE", st.Decision())
}

func TestApplyDropsUnknownKeys(t *testing.T) {
	st := New("in", nil)
	st.Apply(Delta{Key("bogus"): "value", KeyMessages: []string{"kept"}})

	snap := st.Snapshot()
	assert.Equal(t, []string{"kept"}, snap.Messages())
}

func TestApplyIgnoresWrongShapedValues(t *testing.T) {
	st := New("in", nil)
	st.Apply(Delta{KeyMessages: []string{"first"}})

	// A writer pushing the wrong shape must not clobber the existing value.
	st.Apply(Delta{KeyMessages: 42, KeyResults: "not a map"})

	assert.Equal(t, []string{"first"}, st.Messages())
	assert.Empty(t, st.Results())
}

func TestClearErrorResetsBetweenLayers(t *testing.T) {
	st := New("in", nil)
	st.Apply(Delta{KeyError: "node a: boom"})
	require.Equal(t, "node a: boom", st.ErrorMessage())

	st.ClearError()
	assert.Empty(t, st.ErrorMessage())
}

func TestSnapshotIsIsolatedFromLaterFolds(t *testing.T) {
	st := New("in", map[string]any{"run_id": "r1"})
	st.Apply(Delta{
		KeyResults:  map[string]any{"a": 1},
		KeyMessages: []string{"a"},
	})

	snap := st.Snapshot()
	st.Apply(Delta{
		KeyResults:  map[string]any{"b": 2},
		KeyMessages: []string{"b"},
	})

	assert.Equal(t, map[string]any{"a": 1}, snap.Results())
	assert.Equal(t, []string{"a"}, snap.Messages())

	// Mutating the snapshot's view must not leak back either.
	snap.Results()["c"] = 3
	_, ok := st.Results()["c"]
	assert.False(t, ok)
}

func TestSnapshotResultLookup(t *testing.T) {
	st := New("in", nil)
	st.Apply(Delta{KeyResults: map[string]any{"a": "out"}})

	snap := st.Snapshot()
	v, ok := snap.Result("a")
	require.True(t, ok)
	assert.Equal(t, "out", v)

	_, ok = snap.Result("missing")
	assert.False(t, ok)
}
