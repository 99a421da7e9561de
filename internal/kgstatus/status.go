// Package kgstatus is the fan-in for document lifecycle state transitions.
// Each transition builds a fresh record, stamps updated_at, and upserts it
// into the doc_status store, whose Upsert flushes to disk inline;
// EnqueuePending also upserts the document into full_docs, which is not
// flushed here. No periodic SyncIfDirty sweep runs: full_docs reaches disk
// when the scheduler persists its stores or at Finalize.
package kgstatus

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kgraph/ingestcore/internal/kgevents"
	"github.com/kgraph/ingestcore/internal/kgstore"
)

// Service fans in document status transitions onto the full_docs and
// doc_status stores, grounded on internal/rag/service/service.go's Ingest:
// build a fresh struct per write and upsert it.
type Service struct {
	fullDocs *kgstore.JSONKVStore
	docs     *kgstore.DocStatusStore
	now      func() time.Time
	events   *kgevents.Publisher
}

// New constructs a Service over the given stores.
func New(fullDocs *kgstore.JSONKVStore, docs *kgstore.DocStatusStore) *Service {
	return &Service{fullDocs: fullDocs, docs: docs, now: time.Now}
}

// WithEvents attaches an optional Kafka publisher that mirrors every status
// transition as a lifecycle event. A nil publisher (the zero value) keeps
// this a no-op, per kgevents' own nil-safety contract.
func (s *Service) WithEvents(pub *kgevents.Publisher) *Service {
	s.events = pub
	return s
}

func (s *Service) publish(docID string, status kgstore.DocStatus, trackID, errMsg string) {
	if s.events == nil {
		return
	}
	s.events.PublishStatus(context.Background(), kgevents.StatusEvent{
		DocID:     docID,
		Status:    status,
		TrackID:   trackID,
		ErrorMsg:  errMsg,
		Timestamp: s.nowRFC3339(),
	})
}

// PendingDoc is one document submitted for ingestion: its id, full
// content, and file path (empty maps to kgstore.NoFilePathSentinel).
type PendingDoc struct {
	ID       string
	Content  string
	FilePath string
	TrackID  string
	Metadata map[string]any
}

// EnqueuePending writes both the full_docs payload and a PENDING status
// record for each doc, in the same call, per spec §4.6.
func (s *Service) EnqueuePending(docs []PendingDoc) error {
	if len(docs) == 0 {
		return nil
	}

	content := make(map[string]kgstore.Record, len(docs))
	statuses := make(map[string]kgstore.DocProcessingStatus, len(docs))
	now := s.nowRFC3339()

	for _, d := range docs {
		content[d.ID] = kgstore.ToRecord(kgstore.DocumentRecord{Content: d.Content})
		statuses[d.ID] = kgstore.DocProcessingStatus{
			Status:         kgstore.DocPending,
			ContentSummary: summarize(d.Content),
			ContentLength:  utf8.RuneCountInString(d.Content),
			CreatedAt:      now,
			UpdatedAt:      now,
			FilePath:       d.FilePath,
			TrackID:        d.TrackID,
			ChunksList:     []string{},
			Metadata:       d.Metadata,
		}
	}

	if err := s.fullDocs.Upsert(content); err != nil {
		return err
	}
	if err := s.docs.Upsert(statuses); err != nil {
		return err
	}
	for _, d := range docs {
		s.publish(d.ID, kgstore.DocPending, d.TrackID, "")
	}
	return nil
}

// MarkProcessing transitions docID to PROCESSING, recording chunkIDs.
func (s *Service) MarkProcessing(docID string, prev kgstore.DocProcessingStatus, chunkIDs []string) error {
	prev.Status = kgstore.DocProcessing
	prev.ChunksList = chunkIDs
	prev.UpdatedAt = s.nowRFC3339()
	if err := s.docs.Upsert(map[string]kgstore.DocProcessingStatus{docID: prev}); err != nil {
		return err
	}
	s.publish(docID, kgstore.DocProcessing, prev.TrackID, "")
	return nil
}

// MarkProcessed transitions docID to PROCESSED, preserving chunks_list.
func (s *Service) MarkProcessed(docID string, prev kgstore.DocProcessingStatus, chunkIDs []string) error {
	prev.Status = kgstore.DocProcessed
	prev.ChunksList = chunkIDs
	prev.UpdatedAt = s.nowRFC3339()
	if err := s.docs.Upsert(map[string]kgstore.DocProcessingStatus{docID: prev}); err != nil {
		return err
	}
	s.publish(docID, kgstore.DocProcessed, prev.TrackID, "")
	return nil
}

// MarkFailed transitions docID to FAILED, clearing chunks_list and
// recording err's message.
func (s *Service) MarkFailed(docID string, prev kgstore.DocProcessingStatus, err error) error {
	prev.Status = kgstore.DocFailed
	prev.ChunksList = []string{}
	prev.UpdatedAt = s.nowRFC3339()
	if err != nil {
		prev.ErrorMsg = err.Error()
	}
	if upsertErr := s.docs.Upsert(map[string]kgstore.DocProcessingStatus{docID: prev}); upsertErr != nil {
		return upsertErr
	}
	s.publish(docID, kgstore.DocFailed, prev.TrackID, prev.ErrorMsg)
	return nil
}

// MarkPartiallyFailed transitions docID to PARTIALLY_FAILED, preserving
// the chunk ids that did succeed.
func (s *Service) MarkPartiallyFailed(docID string, prev kgstore.DocProcessingStatus, chunkIDs []string, err error) error {
	prev.Status = kgstore.DocPartiallyFailed
	prev.ChunksList = chunkIDs
	prev.UpdatedAt = s.nowRFC3339()
	if err != nil {
		prev.ErrorMsg = err.Error()
	}
	if upsertErr := s.docs.Upsert(map[string]kgstore.DocProcessingStatus{docID: prev}); upsertErr != nil {
		return upsertErr
	}
	s.publish(docID, kgstore.DocPartiallyFailed, prev.TrackID, prev.ErrorMsg)
	return nil
}

// FilterNewIDs is a thin proxy to the doc-status store's FilterKeys.
func (s *Service) FilterNewIDs(ids []string) []string {
	return s.docs.FilterKeys(ids)
}

// DocStatusByID exposes the current doc-status record for docID, the
// read side of every Mark* transition's "prev" argument.
func (s *Service) DocStatusByID(docID string) (kgstore.DocProcessingStatus, bool) {
	return s.docs.GetByID(docID)
}

func (s *Service) nowRFC3339() string {
	return s.now().UTC().Format(time.RFC3339)
}

// summarize trims content to a short preview for content_summary, the way
// status listings display it without loading the full document body.
func summarize(content string) string {
	const maxLen = 200
	trimmed := strings.TrimSpace(content)
	r := []rune(trimmed)
	if len(r) <= maxLen {
		return trimmed
	}
	return string(r[:maxLen]) + "…"
}
