package kgstatus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kgraph/ingestcore/internal/kgstore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()

	fullDocs := kgstore.NewJSONKVStore(dir, "", "full_docs", log)
	require.NoError(t, fullDocs.Initialize())

	docs := kgstore.NewDocStatusStore(dir, "", "docs", log)
	require.NoError(t, docs.Initialize())

	return New(fullDocs, docs)
}

func TestEnqueuePending_WritesContentAndStatus(t *testing.T) {
	svc := newTestService(t)

	err := svc.EnqueuePending([]PendingDoc{
		{ID: "doc-1", Content: "hello world", FilePath: "a.txt", TrackID: "track-1"},
	})
	require.NoError(t, err)

	rec, ok := svc.docs.GetByID("doc-1")
	require.True(t, ok)
	require.Equal(t, kgstore.DocPending, rec.Status)
	require.Equal(t, "a.txt", rec.FilePath)
	require.Empty(t, rec.ChunksList)
	require.NotEmpty(t, rec.CreatedAt)

	content, err := svc.fullDocs.GetByID("doc-1")
	require.NoError(t, err)
	require.Equal(t, "hello world", content["content"])
}

func TestMarkProcessing_SetsChunksList(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.EnqueuePending([]PendingDoc{{ID: "doc-1", Content: "x"}}))

	prev, _ := svc.docs.GetByID("doc-1")
	require.NoError(t, svc.MarkProcessing("doc-1", prev, []string{"chunk-1", "chunk-2"}))

	rec, _ := svc.docs.GetByID("doc-1")
	require.Equal(t, kgstore.DocProcessing, rec.Status)
	require.Equal(t, []string{"chunk-1", "chunk-2"}, rec.ChunksList)
}

func TestMarkProcessed_PreservesChunksList(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.EnqueuePending([]PendingDoc{{ID: "doc-1", Content: "x"}}))

	prev, _ := svc.docs.GetByID("doc-1")
	require.NoError(t, svc.MarkProcessing("doc-1", prev, []string{"chunk-1"}))

	prev, _ = svc.docs.GetByID("doc-1")
	require.NoError(t, svc.MarkProcessed("doc-1", prev, []string{"chunk-1"}))

	rec, _ := svc.docs.GetByID("doc-1")
	require.Equal(t, kgstore.DocProcessed, rec.Status)
	require.Equal(t, []string{"chunk-1"}, rec.ChunksList)
}

func TestMarkFailed_ClearsChunksAndSetsErrorMessage(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.EnqueuePending([]PendingDoc{{ID: "doc-1", Content: "x"}}))

	prev, _ := svc.docs.GetByID("doc-1")
	require.NoError(t, svc.MarkProcessing("doc-1", prev, []string{"chunk-1"}))

	prev, _ = svc.docs.GetByID("doc-1")
	require.NoError(t, svc.MarkFailed("doc-1", prev, errors.New("extraction exploded")))

	rec, _ := svc.docs.GetByID("doc-1")
	require.Equal(t, kgstore.DocFailed, rec.Status)
	require.Empty(t, rec.ChunksList)
	require.Equal(t, "extraction exploded", rec.ErrorMsg)
}

func TestFilterNewIDs_ProxiesDocStatusStore(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.EnqueuePending([]PendingDoc{{ID: "doc-1", Content: "x"}}))

	fresh := svc.FilterNewIDs([]string{"doc-1", "doc-2"})
	require.Equal(t, []string{"doc-2"}, fresh)
}

func TestEnqueuePending_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	log := zerolog.Nop()

	fullDocs := kgstore.NewJSONKVStore(dir, "", "full_docs", log)
	require.NoError(t, fullDocs.Initialize())
	docs := kgstore.NewDocStatusStore(dir, "", "docs", log)
	require.NoError(t, docs.Initialize())
	svc := New(fullDocs, docs)

	require.NoError(t, svc.EnqueuePending([]PendingDoc{{ID: "doc-1", Content: "persisted"}}))
	require.NoError(t, fullDocs.SyncIfDirty())

	reloaded := kgstore.NewJSONKVStore(dir, "", "full_docs", log)
	require.NoError(t, reloaded.Initialize())
	content, err := reloaded.GetByID("doc-1")
	require.NoError(t, err)
	require.Equal(t, "persisted", content["content"])

	_, statErr := os.Stat(filepath.Join(dir, "kv_store_full_docs.json"))
	require.NoError(t, statErr)
}
