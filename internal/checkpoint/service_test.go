package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestNewService_RequiresRoot(t *testing.T) {
	_, err := NewService("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root directory is required")
}

func TestOpen_CreatesChecklistedCheckpoint(t *testing.T) {
	s := newTestService(t)

	cp, err := s.Open("alpha", "shipped the parser fix")
	require.NoError(t, err)
	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, "alpha", cp.Namespace)
	assert.Equal(t, "shipped the parser fix", cp.Description)
	assert.Equal(t, RequiredItems, cp.RequiredItems)
	assert.False(t, cp.Cleared)

	got, err := s.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, cp.ID, got.ID)
}

func TestOpen_RefusedWhileOneIsPending(t *testing.T) {
	s := newTestService(t)

	_, err := s.Open("alpha", "first")
	require.NoError(t, err)
	_, err = s.Open("alpha", "second")
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestService(t)
	_, err := s.Get("alpha")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClear_ArchivesInsteadOfDeleting(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	opened, err := s.Open("alpha", "done")
	require.NoError(t, err)

	cleared, err := s.Clear(ctx, "alpha", "notes written, diagrams updated")
	require.NoError(t, err)
	assert.True(t, cleared.Cleared)
	assert.Equal(t, "notes written, diagrams updated", cleared.Notes)
	assert.False(t, cleared.ClearedAt.IsZero())

	// No longer open.
	_, err = s.Get("alpha")
	assert.ErrorIs(t, err, ErrNotFound)

	// Retained in the archive for audit.
	archived, err := s.Archive("alpha")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, opened.ID, archived[0].ID)
	assert.True(t, archived[0].Cleared)
}

func TestClear_WithoutOpenCheckpoint(t *testing.T) {
	s := newTestService(t)
	_, err := s.Clear(context.Background(), "alpha", "notes")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClear_ThenReopenStartsFresh(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.Open("alpha", "task one")
	require.NoError(t, err)
	_, err = s.Clear(ctx, "alpha", "cleared one")
	require.NoError(t, err)

	second, err := s.Open("alpha", "task two")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = s.Clear(ctx, "alpha", "cleared two")
	require.NoError(t, err)

	archived, err := s.Archive("alpha")
	require.NoError(t, err)
	assert.Len(t, archived, 2)
}

func TestArchive_OrderedByClearTime(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	_, err := s.Open("alpha", "one")
	require.NoError(t, err)
	_, err = s.Clear(ctx, "alpha", "one")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(time.Hour) }
	_, err = s.Open("alpha", "two")
	require.NoError(t, err)
	_, err = s.Clear(ctx, "alpha", "two")
	require.NoError(t, err)

	archived, err := s.Archive("alpha")
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "one", archived[0].Description)
	assert.Equal(t, "two", archived[1].Description)
}

func TestCheckpointsIsolatedPerNamespace(t *testing.T) {
	s := newTestService(t)

	_, err := s.Open("a", "task in a")
	require.NoError(t, err)

	_, err = s.Get("b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_EmptyNamespace(t *testing.T) {
	s := newTestService(t)
	archived, err := s.Archive("ghost")
	require.NoError(t, err)
	assert.Empty(t, archived)
	_, err = os.Stat(s.dir("ghost"))
	assert.True(t, os.IsNotExist(err))
}
