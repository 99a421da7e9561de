package kgstore

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDocStatusStore(t *testing.T) *DocStatusStore {
	t.Helper()
	dir := t.TempDir()
	s := NewDocStatusStore(dir, "", "doc_status", zerolog.Nop())
	require.NoError(t, s.Initialize())
	return s
}

func TestDocStatusStore_NormalizesOnUpsert(t *testing.T) {
	s := newTestDocStatusStore(t)
	require.NoError(t, s.Upsert(map[string]DocProcessingStatus{
		"doc-1": {Status: DocPending},
	}))

	rec, ok := s.GetByID("doc-1")
	require.True(t, ok)
	require.Equal(t, NoFilePathSentinel, rec.FilePath)
	require.NotNil(t, rec.Metadata)
}

func TestDocStatusStore_GetDocByFilePath(t *testing.T) {
	s := newTestDocStatusStore(t)
	require.NoError(t, s.Upsert(map[string]DocProcessingStatus{
		"doc-1": {Status: DocPending, FilePath: "a.txt"},
	}))

	rec, ok := s.GetDocByFilePath("a.txt")
	require.True(t, ok)
	require.Equal(t, "doc-1", rec.ID)

	_, ok = s.GetDocByFilePath("missing.txt")
	require.False(t, ok)
}

func TestDocStatusStore_StatusCountsWithTotal(t *testing.T) {
	s := newTestDocStatusStore(t)
	require.NoError(t, s.Upsert(map[string]DocProcessingStatus{
		"doc-1": {Status: DocProcessed},
		"doc-2": {Status: DocProcessed},
		"doc-3": {Status: DocFailed},
	}))

	counts := s.StatusCountsWithTotal()
	require.Equal(t, 2, counts[DocProcessed])
	require.Equal(t, 1, counts[DocFailed])
	require.Equal(t, 3, counts[DocStatusAll])
}

func TestDocStatusStore_DocsPaginated(t *testing.T) {
	s := newTestDocStatusStore(t)
	require.NoError(t, s.Upsert(map[string]DocProcessingStatus{
		"doc-1": {Status: DocPending, UpdatedAt: "2025-02-10T12:05:00Z"},
		"doc-2": {Status: DocPending, UpdatedAt: "2025-02-10T12:06:00Z"},
		"doc-3": {Status: DocPending, UpdatedAt: "2025-02-10T12:07:00Z"},
	}))

	page1, total := s.DocsPaginated(nil, 1, 2, "updated_at", "desc")
	require.Equal(t, 3, total)
	require.Len(t, page1, 2)
	require.Equal(t, "doc-3", page1[0].ID)
	require.Equal(t, "doc-2", page1[1].ID)

	page2, total := s.DocsPaginated(nil, 2, 2, "updated_at", "desc")
	require.Equal(t, 3, total)
	require.Len(t, page2, 1)
	require.Equal(t, "doc-1", page2[0].ID)
}

func TestDocStatusStore_DocsPaginated_ClampsPageSize(t *testing.T) {
	s := newTestDocStatusStore(t)
	require.NoError(t, s.Upsert(map[string]DocProcessingStatus{
		"doc-1": {Status: DocPending, UpdatedAt: "2025-02-10T12:05:00Z"},
	}))

	// size below 10 and an unrecognized sort field both normalize silently.
	page, total := s.DocsPaginated(nil, 0, 1, "bogus_field", "asc")
	require.Equal(t, 1, total)
	require.Len(t, page, 1)
}

func TestDocStatusStore_DocsByStatusAndTrackID(t *testing.T) {
	s := newTestDocStatusStore(t)
	require.NoError(t, s.Upsert(map[string]DocProcessingStatus{
		"doc-1": {Status: DocProcessing, TrackID: "t1"},
		"doc-2": {Status: DocPending, TrackID: "t1"},
		"doc-3": {Status: DocPending, TrackID: "t2"},
	}))

	require.Len(t, s.DocsByStatus(DocPending), 2)
	require.Len(t, s.DocsByTrackID("t1"), 2)
	require.Len(t, s.DocsByTrackID("t2"), 1)
}
