package kgstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, namespace string) *JSONKVStore {
	t.Helper()
	dir := t.TempDir()
	s := NewJSONKVStore(dir, "", namespace, zerolog.Nop())
	require.NoError(t, s.Initialize())
	return s
}

func TestJSONKVStore_UpsertGetByID_Idempotent(t *testing.T) {
	s := newTestStore(t, "full_docs")

	require.NoError(t, s.Upsert(map[string]Record{
		"doc-1": {"content": "foo"},
	}))

	rec, err := s.GetByID("doc-1")
	require.NoError(t, err)
	require.Equal(t, "foo", rec["content"])
	require.Equal(t, "doc-1", rec["_id"])
	require.NotZero(t, rec["create_time"])

	// Re-upsert the same key: still exactly one record, create_time preserved.
	firstCreate := rec["create_time"]
	require.NoError(t, s.Upsert(map[string]Record{
		"doc-1": {"content": "foo", "create_time": firstCreate},
	}))
	all := s.GetAll()
	require.Len(t, all, 1)
	require.Equal(t, firstCreate, all["doc-1"]["create_time"])
}

func TestJSONKVStore_FilterKeys(t *testing.T) {
	s := newTestStore(t, "full_docs")
	require.NoError(t, s.Upsert(map[string]Record{"doc-1": {"content": "a"}}))

	missing := s.FilterKeys([]string{"doc-1", "doc-2", "doc-3"})
	require.ElementsMatch(t, []string{"doc-2", "doc-3"}, missing)
}

func TestJSONKVStore_TextChunksGetsCacheList(t *testing.T) {
	s := newTestStore(t, "text_chunks")
	require.NoError(t, s.Upsert(map[string]Record{"chunk-1": {"content": "x"}}))

	rec, err := s.GetByID("chunk-1")
	require.NoError(t, err)
	require.Equal(t, []string{}, rec["llm_cache_list"])
}

func TestJSONKVStore_SyncIfDirty_AtomicFlush(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONKVStore(dir, "", "full_docs", zerolog.Nop())
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Upsert(map[string]Record{"doc-1": {"content": "a"}}))
	require.NoError(t, s.SyncIfDirty())

	path := filepath.Join(dir, "kv_store_full_docs.json")
	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]Record
	require.NoError(t, json.Unmarshal(b, &onDisk))
	require.Contains(t, onDisk, "doc-1")

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	// A clean store is a no-op on the second sync.
	require.NoError(t, s.SyncIfDirty())
}

func TestJSONKVStore_DropAll(t *testing.T) {
	s := newTestStore(t, "full_docs")
	require.NoError(t, s.Upsert(map[string]Record{"doc-1": {"content": "a"}}))
	require.NoError(t, s.DropAll())
	require.Empty(t, s.GetAll())
}

func TestJSONKVStore_LegacyCacheMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kv_store_llm_response_cache.json")
	legacy := `{
		"modeA": {
			"h1": {"cache_type": "extract", "return": "x"},
			"h2": {"cache_type": "embed", "return": "y"}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s := NewJSONKVStore(dir, "", "llm_response_cache", zerolog.Nop())
	require.NoError(t, s.Initialize())

	all := s.GetAll()
	require.Len(t, all, 2)
	require.Equal(t, "x", all["modeA:extract:h1"]["return"])
	require.Equal(t, "y", all["modeA:embed:h2"]["return"])

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]Record
	require.NoError(t, json.Unmarshal(b, &onDisk))
	require.Contains(t, onDisk, "modeA:extract:h1")
	require.Contains(t, onDisk, "modeA:embed:h2")
	require.NotContains(t, onDisk, "modeA")
}

func TestJSONKVStore_Delete(t *testing.T) {
	s := newTestStore(t, "full_docs")
	require.NoError(t, s.Upsert(map[string]Record{"doc-1": {"content": "a"}}))
	require.NoError(t, s.Delete([]string{"doc-1", "doc-missing"}))
	_, err := s.GetByID("doc-1")
	require.ErrorIs(t, err, ErrNotFound)
}
