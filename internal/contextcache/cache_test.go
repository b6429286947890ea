package contextcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), 0, nil)
	require.NoError(t, err)
	return s
}

func TestKey_DeterministicAndOrderInsensitive(t *testing.T) {
	k1 := Key("fix the parser", "alpha", "a.go:123", "b.go:456")
	k2 := Key("fix the parser", "alpha", "b.go:456", "a.go:123")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestKey_DistinguishesInputs(t *testing.T) {
	base := Key("task", "alpha")
	assert.NotEqual(t, base, Key("task", "beta"))
	assert.NotEqual(t, base, Key("other task", "alpha"))
	assert.NotEqual(t, base, Key("task", "alpha", "f.go:1"))

	// Length prefixing: shifting bytes between fields changes the key.
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestGetPut_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	key := Key("task", "alpha")

	_, err := s.Get("alpha", key)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Put("alpha", key, []byte("gathered context")))

	payload, err := s.Get("alpha", key)
	require.NoError(t, err)
	assert.Equal(t, []byte("gathered context"), payload)
}

func TestGet_RejectsNonHashKeys(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("alpha", "../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")
}

func TestTTL_HitInsideWindowMissAfter(t *testing.T) {
	s := newTestStore(t)
	key := Key("task", "alpha")

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return created }
	require.NoError(t, s.Put("alpha", key, []byte("payload")))

	// Just inside the window: hit.
	s.now = func() time.Time { return created.Add(DefaultTTL - time.Second) }
	_, err := s.Get("alpha", key)
	require.NoError(t, err)

	// Exactly at expiry: miss, and the entry is purged lazily.
	s.now = func() time.Time { return created.Add(DefaultTTL) }
	_, err = s.Get("alpha", key)
	assert.ErrorIs(t, err, ErrMiss)

	// Even if the clock rewinds the entry is gone.
	s.now = func() time.Time { return created }
	_, err = s.Get("alpha", key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSweep_PurgesOnlyExpired(t *testing.T) {
	s := newTestStore(t)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return created }
	require.NoError(t, s.Put("alpha", Key("old", "alpha"), []byte("old")))

	s.now = func() time.Time { return created.Add(DefaultTTL / 2) }
	require.NoError(t, s.Put("alpha", Key("new", "alpha"), []byte("new")))

	s.now = func() time.Time { return created.Add(DefaultTTL + time.Minute) }
	purged, err := s.Sweep("alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = s.Get("alpha", Key("new", "alpha"))
	assert.NoError(t, err)
}

func TestSweep_EmptyPartition(t *testing.T) {
	s := newTestStore(t)
	purged, err := s.Sweep("ghost")
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestGet_DropsCorruptEntry(t *testing.T) {
	s := newTestStore(t)
	key := Key("task", "alpha")
	require.NoError(t, s.Put("alpha", key, []byte("x")))

	path := filepath.Join(s.dir("alpha"), key+".json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	_, err := s.Get("alpha", key)
	assert.ErrorIs(t, err, ErrMiss)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPartitionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	key := Key("task", "shared")

	require.NoError(t, s.Put("a", key, []byte("for a")))

	_, err := s.Get("b", key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCustomTTL(t *testing.T) {
	s, err := New(t.TempDir(), time.Minute, nil)
	require.NoError(t, err)
	key := Key("task", "alpha")

	created := time.Now().UTC()
	s.now = func() time.Time { return created }
	require.NoError(t, s.Put("alpha", key, []byte("x")))

	s.now = func() time.Time { return created.Add(2 * time.Minute) }
	_, err = s.Get("alpha", key)
	assert.ErrorIs(t, err, ErrMiss)
}
