package backup_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markeredit/internal/backup"
	"markeredit/models"
)

func openStore(t *testing.T) *backup.Store {
	t.Helper()
	store, err := backup.Open(filepath.Join(t.TempDir(), "backup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func marker(id, episode int64, start, end int64) models.Marker {
	return models.Marker{
		ID: id, ParentID: episode, SeasonID: 20, ShowID: 10, SectionID: 1,
		Start: start, End: end, Type: models.MarkerTypeIntro,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.db")
	store, err := backup.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening must not re-run migrations destructively.
	store, err = backup.Open(path)
	require.NoError(t, err)
	store.Close()
}

func TestCandidatesReturnsLatestActionPerMarker(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	m := marker(100, 1000, 0, 30000)
	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, m))
	m.End = 31000
	require.NoError(t, store.RecordMarker(ctx, models.ActionEdit, m))

	candidates, err := store.Candidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.ActionEdit, candidates[0].Op)
	assert.Equal(t, int64(31000), candidates[0].End)
}

func TestDeletedMarkersAreNotCandidates(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	m := marker(100, 1000, 0, 30000)
	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, m))
	require.NoError(t, store.RecordMarker(ctx, models.ActionDelete, m))

	candidates, err := store.Candidates(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, candidates, "a marker we deleted ourselves is not purged")
}

func TestMarkIgnoredExcludesFromCandidates(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, marker(100, 1000, 0, 30000)))
	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, marker(101, 1001, 0, 30000)))

	n, err := store.MarkIgnored(ctx, []int64{100})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	candidates, err := store.Candidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(101), candidates[0].MarkerID)
}

func TestMarkRestoredRelinksMarker(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, marker(100, 1000, 0, 30000)))

	restored := marker(555, 1000, 0, 30000)
	require.NoError(t, store.MarkRestored(ctx, 100, restored))

	candidates, err := store.Candidates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(555), candidates[0].MarkerID)
	assert.Equal(t, models.ActionRestore, candidates[0].Op)

	latest, err := store.LatestForMarker(ctx, 100)
	require.NoError(t, err)
	assert.True(t, latest.Restored)
}

func TestCandidatesForShow(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	m := marker(100, 1000, 0, 30000)
	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, m))

	other := marker(200, 2000, 0, 30000)
	other.ShowID = 99
	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, other))

	candidates, err := store.CandidatesForShow(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(100), candidates[0].MarkerID)
}

func TestDeleteSection(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, marker(100, 1000, 0, 30000)))
	require.NoError(t, store.RecordMarker(ctx, models.ActionEdit, marker(100, 1000, 0, 31000)))
	require.NoError(t, store.RecordMarker(ctx, models.ActionAdd, marker(101, 1001, 0, 30000)))

	n, err := store.DeleteSection(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	candidates, err := store.Candidates(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	_, err = store.LatestForMarker(ctx, 100)
	assert.ErrorIs(t, err, backup.ErrActionNotFound)
}
