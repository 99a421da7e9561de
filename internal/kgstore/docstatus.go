package kgstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DocStatusStore is the typed counterpart of JSONKVStore for doc_status
// records, ported in behavior from
// original_source/runtime/src/storage/json_doc_status.rs.
type DocStatusStore struct {
	finalNamespace string
	filePath       string

	mu   sync.RWMutex
	data map[string]DocProcessingStatus

	dirty atomic.Bool

	log zerolog.Logger
}

// NewDocStatusStore constructs a doc-status store rooted at workingDir,
// optionally scoped under workspace, for the given namespace (typically
// "doc_status").
func NewDocStatusStore(workingDir, workspace, namespace string, log zerolog.Logger) *DocStatusStore {
	prefix, dir := workspaceLayout(workingDir, workspace)
	return &DocStatusStore{
		finalNamespace: prefix + "_" + namespace,
		filePath:       filepath.Join(dir, fmt.Sprintf("doc_status_%s.json", namespace)),
		data:           make(map[string]DocProcessingStatus),
		log:            log.With().Str("component", "kgstore.docstatus").Str("namespace", namespace).Logger(),
	}
}

// Initialize loads and normalizes the backing file.
func (s *DocStatusStore) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("kgstore: create parent dir for %s: %w", s.finalNamespace, err)
	}

	b, err := os.ReadFile(s.filePath)
	data := make(map[string]DocProcessingStatus)
	if err == nil && len(b) > 0 {
		if jsonErr := json.Unmarshal(b, &data); jsonErr != nil {
			return fmt.Errorf("kgstore: decode %s: %w", s.finalNamespace, jsonErr)
		}
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("kgstore: read %s: %w", s.finalNamespace, err)
	}

	for id, rec := range data {
		data[id] = normalizeDocStatus(rec)
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	s.dirty.Store(false)
	return nil
}

func normalizeDocStatus(rec DocProcessingStatus) DocProcessingStatus {
	if strings.TrimSpace(rec.FilePath) == "" {
		rec.FilePath = NoFilePathSentinel
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return rec
}

// Finalize flushes any pending dirty state.
func (s *DocStatusStore) Finalize() error {
	return s.SyncIfDirty()
}

// Upsert stores each status record (normalized), marks dirty, and flushes
// immediately — mirroring json_doc_status.rs's upsert, which syncs inline
// rather than waiting for a separate sweep.
func (s *DocStatusStore) Upsert(records map[string]DocProcessingStatus) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	for id, rec := range records {
		rec.ID = id
		s.data[id] = normalizeDocStatus(rec)
	}
	s.mu.Unlock()
	s.dirty.Store(true)
	return s.SyncIfDirty()
}

// Delete removes the given ids.
func (s *DocStatusStore) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	removed := false
	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.data[id]; ok {
			delete(s.data, id)
			removed = true
		}
	}
	s.mu.Unlock()
	if removed {
		s.dirty.Store(true)
	}
	return nil
}

// DropAll clears and flushes the emptied state.
func (s *DocStatusStore) DropAll() error {
	s.mu.Lock()
	if len(s.data) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.data = make(map[string]DocProcessingStatus)
	s.mu.Unlock()
	s.dirty.Store(true)
	return s.SyncIfDirty()
}

// GetByID returns the record for id.
func (s *DocStatusStore) GetByID(id string) (DocProcessingStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[id]
	if ok {
		rec.ID = id
	}
	return rec, ok
}

// GetByIDs returns one slot per id with nil at missing indices.
func (s *DocStatusStore) GetByIDs(ids []string) []*DocProcessingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*DocProcessingStatus, len(ids))
	for i, id := range ids {
		if rec, ok := s.data[id]; ok {
			rec.ID = id
			out[i] = &rec
		}
	}
	return out
}

// GetDocByFilePath performs a linear scan for the first record matching fp.
func (s *DocStatusStore) GetDocByFilePath(fp string) (DocProcessingStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, rec := range s.data {
		if rec.FilePath == fp {
			rec.ID = id
			return rec, true
		}
	}
	return DocProcessingStatus{}, false
}

// FilterKeys returns the subset of keys not already present.
func (s *DocStatusStore) FilterKeys(keys []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := s.data[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// StatusCounts returns the count of records per status.
func (s *DocStatusStore) StatusCounts() map[DocStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[DocStatus]int)
	for _, rec := range s.data {
		counts[rec.Status]++
	}
	return counts
}

// StatusCountsWithTotal is StatusCounts plus a DocStatusAll entry carrying
// the sum across all statuses.
func (s *DocStatusStore) StatusCountsWithTotal() map[DocStatus]int {
	counts := s.StatusCounts()
	total := 0
	for _, n := range counts {
		total += n
	}
	counts[DocStatusAll] = total
	return counts
}

// DocsByStatus returns every record with the given status.
func (s *DocStatusStore) DocsByStatus(status DocStatus) map[string]DocProcessingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]DocProcessingStatus)
	for id, rec := range s.data {
		if rec.Status == status {
			rec.ID = id
			out[id] = rec
		}
	}
	return out
}

// DocsByTrackID returns every record with the given track id.
func (s *DocStatusStore) DocsByTrackID(trackID string) map[string]DocProcessingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]DocProcessingStatus)
	for id, rec := range s.data {
		if rec.TrackID == trackID {
			rec.ID = id
			out[id] = rec
		}
	}
	return out
}

// validSortFields are the only sort_field values honored by DocsPaginated;
// anything else falls back to "updated_at".
var validSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"id":         true,
	"file_path":  true,
}

// DocsPaginated returns a page of records optionally filtered by status,
// sorted deterministically by sortField/sortDir, plus the total matching
// count. page is clamped to >= 1; pageSize is clamped to [10, 200].
func (s *DocStatusStore) DocsPaginated(statusFilter *DocStatus, page, pageSize int, sortField, sortDir string) ([]DocProcessingStatus, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 10 {
		pageSize = 10
	} else if pageSize > 200 {
		pageSize = 200
	}
	if !validSortFields[sortField] {
		sortField = "updated_at"
	}
	descending := strings.EqualFold(sortDir, "desc") || sortDir == ""

	type idRec struct {
		id  string
		rec DocProcessingStatus
	}

	s.mu.RLock()
	docs := make([]idRec, 0, len(s.data))
	for id, rec := range s.data {
		if statusFilter != nil && rec.Status != *statusFilter {
			continue
		}
		rec.ID = id
		docs = append(docs, idRec{id: id, rec: rec})
	}
	s.mu.RUnlock()

	sortKey := func(ir idRec) string {
		switch sortField {
		case "created_at":
			return ir.rec.CreatedAt
		case "updated_at":
			return ir.rec.UpdatedAt
		case "file_path":
			fp := ir.rec.FilePath
			if fp == "" {
				fp = NoFilePathSentinel
			}
			return strings.ToLower(fp)
		case "id":
			return ir.id
		default:
			return ir.rec.UpdatedAt
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		ki, kj := sortKey(docs[i]), sortKey(docs[j])
		if descending {
			return ki > kj
		}
		return ki < kj
	})

	total := len(docs)
	start := (page - 1) * pageSize
	if start >= total {
		return []DocProcessingStatus{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	out := make([]DocProcessingStatus, 0, end-start)
	for _, ir := range docs[start:end] {
		out = append(out, ir.rec)
	}
	return out, total
}

// SyncIfDirty flushes to disk if dirty, clearing the flag only on success.
func (s *DocStatusStore) SyncIfDirty() error {
	if !s.dirty.CompareAndSwap(true, false) {
		return nil
	}
	s.mu.RLock()
	snapshot := make(map[string]DocProcessingStatus, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	if err := writeJSONAtomic(s.filePath, snapshot); err != nil {
		s.dirty.Store(true)
		return fmt.Errorf("kgstore: write %s: %w", s.finalNamespace, err)
	}
	return nil
}
