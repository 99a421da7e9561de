// Package kgpipeline is the ingestion front: it turns a staged file into a
// PENDING document plus its text_chunks records and a scheduler job, and
// reports intake failures through ErrorReporter. Ported in shape from
// original_source/runtime/src/pipeline/pipeline.rs.
package kgpipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kgraph/ingestcore/internal/kgchunk"
	"github.com/kgraph/ingestcore/internal/kgdoc"
	"github.com/kgraph/ingestcore/internal/kgscheduler"
	"github.com/kgraph/ingestcore/internal/kgstatus"
	"github.com/kgraph/ingestcore/internal/kgstore"
)

// IngressAPI is the minimal upload-facing surface spec §6 describes: no
// HTTP transport, just the Go call a handler would wrap.
type IngressAPI interface {
	EnqueueFile(ctx context.Context, path, trackID string) (Result, error)
}

// ListingAPI is the minimal status-listing surface spec §6 describes.
type ListingAPI interface {
	List(page, pageSize int) []ListEntry
}

// ListEntry is one row of a status listing: the stored record plus the
// display label spec §6 maps internal statuses onto.
type ListEntry struct {
	kgstore.DocProcessingStatus
	DisplayStatus string
}

// displayStatusLabels maps internal statuses to spec §6's listing labels.
var displayStatusLabels = map[kgstore.DocStatus]string{
	kgstore.DocPending:         "Pending",
	kgstore.DocProcessing:      "Processing",
	kgstore.DocProcessed:       "Completed",
	kgstore.DocFailed:          "Failed",
	kgstore.DocPartiallyFailed: "Partial",
}

// Result is EnqueueFile's outcome, mirroring the ingress response shape
// spec §6 names: {status, message, track_id}.
type Result struct {
	Status  string
	Message string
	TrackID string
}

const (
	ResultSuccess    = "success"
	ResultDuplicated = "duplicated"
)

// Pipeline wires the document manager, chunker, status service, and
// scheduler into the two entry points a caller needs: EnqueueFile (intake)
// and ProcessQueue (the scheduler's run loop, mutex-guarded so only one
// instance runs at a time per spec §5's "mutex around process_queue is the
// only global serialization").
type Pipeline struct {
	docs      *kgdoc.DocumentManager
	status    *kgstatus.Service
	docStatus *kgstore.DocStatusStore
	scheduler Scheduler
	errs      *ErrorReporter
	tok       kgchunk.Tokenizer
	chunkCfg  kgchunk.Config
	chunks    *kgstore.JSONKVStore
	log       zerolog.Logger

	runMu sync.Mutex
}

var (
	_ IngressAPI = (*Pipeline)(nil)
	_ ListingAPI = (*Pipeline)(nil)
)

// Scheduler is the narrow surface Pipeline needs from kgscheduler.Scheduler,
// letting tests substitute a fake.
type Scheduler interface {
	EnqueueDocument(docID string) (string, error)
	Run(ctx context.Context)
}

var _ Scheduler = (*kgscheduler.Scheduler)(nil)

// New constructs a Pipeline over its collaborators.
func New(docs *kgdoc.DocumentManager, status *kgstatus.Service, docStatus *kgstore.DocStatusStore, scheduler Scheduler, errs *ErrorReporter, tok kgchunk.Tokenizer, chunkCfg kgchunk.Config, chunks *kgstore.JSONKVStore, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		docs:      docs,
		status:    status,
		docStatus: docStatus,
		scheduler: scheduler,
		errs:      errs,
		tok:       tok,
		chunkCfg:  chunkCfg,
		chunks:    chunks,
		log:       log.With().Str("component", "kgpipeline").Logger(),
	}
}

// List returns one page of doc-status records sorted by updated_at
// descending, each carrying its display label, per spec §6.
func (p *Pipeline) List(page, pageSize int) []ListEntry {
	recs, _ := p.docStatus.DocsPaginated(nil, page, pageSize, "updated_at", "desc")
	out := make([]ListEntry, len(recs))
	for i, rec := range recs {
		out[i] = ListEntry{DocProcessingStatus: rec, DisplayStatus: displayStatusLabels[rec.Status]}
	}
	return out
}

// EnqueueFile reads path, validates and de-duplicates its content, persists
// a PENDING document and its chunks, moves the file into the __enqueued__
// quarantine, and schedules a job. trackID defaults to a fresh UUID when
// empty. Any intake-phase failure is recorded through ErrorReporter and
// returned to the caller; duplicates are not errors.
func (p *Pipeline) EnqueueFile(ctx context.Context, path, trackID string) (Result, error) {
	if trackID == "" {
		trackID = uuid.New().String()
	}

	filename, err := kgdoc.SanitizeFilename(lastPathElement(path))
	if err != nil {
		p.reportFailure(path, trackID, "validation", err)
		return Result{}, err
	}
	if !p.docs.IsSupportedFile(filename) {
		err := fmt.Errorf("unsupported file extension: %s", filename)
		p.reportFailure(path, trackID, "validation", err)
		return Result{}, err
	}

	raw, err := p.docs.Repository().Read(ctx, path)
	if err != nil {
		p.reportFailure(path, trackID, "io", err)
		return Result{}, err
	}
	if !utf8.Valid(raw) {
		err := fmt.Errorf("file is not valid UTF-8: %s", filename)
		p.reportFailure(path, trackID, "decode", err)
		return Result{}, err
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		err := fmt.Errorf("file has no content: %s", filename)
		p.reportFailure(path, trackID, "validation", err)
		return Result{}, err
	}

	docID := kgstore.DocID(content)
	if len(p.status.FilterNewIDs([]string{docID})) == 0 {
		p.log.Info().Str("doc_id", docID).Str("file_path", filename).Msg("duplicate content, skipping enqueue")
		return Result{Status: ResultDuplicated, Message: "document content already known", TrackID: trackID}, nil
	}

	chunks, err := kgchunk.Split(p.tok, content, p.chunkCfg)
	if err != nil {
		p.reportFailure(path, trackID, "chunking", err)
		return Result{}, err
	}
	if len(chunks) == 0 {
		err := fmt.Errorf("document produced zero chunks: %s", filename)
		p.reportFailure(path, trackID, "chunking", err)
		return Result{}, err
	}

	if err := p.status.EnqueuePending([]kgstatus.PendingDoc{{
		ID:       docID,
		Content:  content,
		FilePath: filename,
		TrackID:  trackID,
	}}); err != nil {
		p.reportFailure(path, trackID, "io", err)
		return Result{}, err
	}

	chunkRecords := make(map[string]kgstore.Record, len(chunks))
	for _, c := range chunks {
		chunkRecords[c.ID] = kgstore.ToRecord(kgstore.ChunkRecord{
			Content:         c.Content,
			FullDocID:       docID,
			ChunkOrderIndex: c.Order,
			FilePath:        filename,
			Tokens:          c.TokenCount,
			Status:          kgstore.ChunkRecordPending,
			LLMCacheList:    []string{},
		})
	}
	if err := p.chunks.Upsert(chunkRecords); err != nil {
		p.reportFailure(path, trackID, "io", err)
		return Result{}, err
	}
	if err := p.chunks.SyncIfDirty(); err != nil {
		p.log.Error().Err(err).Str("doc_id", docID).Msg("failed to flush text_chunks store")
	}

	if _, err := p.docs.MoveToEnqueued(ctx, path); err != nil {
		p.reportFailure(path, trackID, "io", err)
		return Result{}, err
	}

	if _, err := p.scheduler.EnqueueDocument(docID); err != nil {
		p.reportFailure(path, trackID, "scheduling", err)
		return Result{}, err
	}

	p.log.Info().Str("doc_id", docID).Str("file_path", filename).Int("chunks", len(chunks)).Msg("enqueued document")
	return Result{Status: ResultSuccess, Message: "document enqueued", TrackID: trackID}, nil
}

// ProcessQueue runs the scheduler's main loop, guarded by a mutex so only
// one instance can drive the queue at a time, per spec §5.
func (p *Pipeline) ProcessQueue(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	p.scheduler.Run(ctx)
}

func (p *Pipeline) reportFailure(path, trackID, errorType string, err error) {
	if p.errs == nil {
		return
	}
	if recErr := p.errs.Record(path, trackID, errorType, err); recErr != nil {
		p.log.Error().Err(recErr).Str("file_path", path).Msg("failed to record intake failure")
	}
}

func lastPathElement(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
