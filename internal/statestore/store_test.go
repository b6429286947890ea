package statestore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root directory is required")
}

func TestLoad_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadOrInit_CreatesIdle(t *testing.T) {
	s := newTestStore(t)

	st, err := s.LoadOrInit("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", st.Namespace)
	assert.Equal(t, pipeline.StateIdle, st.State)
	assert.Equal(t, pipeline.ModeNone, st.Mode)
	assert.True(t, s.Exists("alpha"))

	// Second call returns the persisted record, not a new one.
	again, err := s.LoadOrInit("alpha")
	require.NoError(t, err)
	assert.Equal(t, st.Timestamp, again.Timestamp)
}

func TestUpdate_PersistsAndAdvancesTimestamp(t *testing.T) {
	s := newTestStore(t)

	first, err := s.LoadOrInit("alpha")
	require.NoError(t, err)

	st, err := s.Update("alpha", func(st *PipelineState) error {
		st.State = pipeline.StateClassified
		st.Mode = pipeline.ModeComplex
		st.ActiveAgents = []string{pipeline.AgentGatherer}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateClassified, st.State)
	assert.False(t, st.Timestamp.Before(first.Timestamp))

	loaded, err := s.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeComplex, loaded.Mode)
	assert.Equal(t, []string{pipeline.AgentGatherer}, loaded.ActiveAgents)
}

func TestUpdate_TimestampNeverDecreases(t *testing.T) {
	s := newTestStore(t)

	future := time.Now().Add(time.Hour).UTC()
	s.now = func() time.Time { return future }
	_, err := s.LoadOrInit("alpha")
	require.NoError(t, err)

	// Clock jumps backwards; the persisted timestamp must not.
	s.now = time.Now
	st, err := s.Update("alpha", func(st *PipelineState) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, future, st.Timestamp)
}

func TestLoad_Corrupt(t *testing.T) {
	s := newTestStore(t)

	dir := s.Dir("alpha")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0600))

	_, err := s.Load("alpha")
	assert.ErrorIs(t, err, ErrCorrupt)

	// Reinit recovers to a fresh idle record.
	st, err := s.Reinit("alpha")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateIdle, st.State)

	loaded, err := s.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateIdle, loaded.State)
}

func TestLoad_InvalidStateEnum(t *testing.T) {
	s := newTestStore(t)

	dir := s.Dir("alpha")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"),
		[]byte(`{"namespace":"alpha","state":"warp-speed"}`), 0600))

	_, err := s.Load("alpha")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestUpdate_NoTempFileLeftBehind(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadOrInit("alpha")
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(s.Dir("alpha"), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDelete_RemovesPartition(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadOrInit("alpha")
	require.NoError(t, err)
	require.NoError(t, s.Delete("alpha"))

	assert.False(t, s.Exists("alpha"))
	_, err = os.Stat(s.Dir("alpha"))
	assert.True(t, os.IsNotExist(err))
}

func TestList_SortedAndRecomputed(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadOrInit("beta")
	require.NoError(t, err)
	_, err = s.LoadOrInit("alpha")
	require.NoError(t, err)

	states, err := s.List()
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "alpha", states[0].Namespace)
	assert.Equal(t, "beta", states[1].Namespace)

	require.NoError(t, s.Delete("beta"))
	states, err = s.List()
	require.NoError(t, err)
	require.Len(t, states, 1)
}

func TestIsolation_UpdatesNeverTouchOtherNamespaces(t *testing.T) {
	s := newTestStore(t)

	a, err := s.LoadOrInit("a")
	require.NoError(t, err)
	_, err = s.LoadOrInit("b")
	require.NoError(t, err)

	_, err = s.Update("b", func(st *PipelineState) error {
		st.State = pipeline.StateClassified
		st.Mode = pipeline.ModeTrivial
		return nil
	})
	require.NoError(t, err)

	after, err := s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, a.State, after.State)
	assert.Equal(t, a.Timestamp, after.Timestamp)
}

func TestUpdate_ConcurrentWritersLinearize(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadOrInit("alpha")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Update("alpha", func(st *PipelineState) error {
				if st.Metadata == nil {
					st.Metadata = map[string]string{"count": "0"}
				}
				st.Metadata["count"] = st.Metadata["count"] + "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := s.Load("alpha")
	require.NoError(t, err)
	// "0" plus one "x" per writer: no update was lost or torn.
	assert.Len(t, st.Metadata["count"], n+1)
}
