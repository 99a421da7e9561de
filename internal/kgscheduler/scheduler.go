package kgscheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/kgraph/ingestcore/internal/kgextract"
	"github.com/kgraph/ingestcore/internal/kgstatus"
	"github.com/kgraph/ingestcore/internal/kgstore"
)

// ErrDocumentUnreadable is a fatal job failure: get_by_id(doc_id) missing
// or the record has no content field.
var ErrDocumentUnreadable = errors.New("kgscheduler: document unreadable")

// ErrNoChunks is a fatal job failure: the document produced zero chunks.
var ErrNoChunks = errors.New("kgscheduler: document produced no chunks")

// Config bounds the scheduler's cadence and concurrency.
type Config struct {
	TickInterval    time.Duration
	QueueCapacity   int
	WorkerPoolSize  int
	MaxInflight     int
	MaxChunkRetries int
	MaxJobRetries   int
	// StrictFailurePolicy, if true, marks the whole document FAILED on any
	// chunk failure instead of the default PartiallyFailed rollup — the
	// alternative policy spec §9's open question leaves as a config knob.
	StrictFailurePolicy bool
}

// DefaultConfig returns the scheduler defaults named in spec §4.7.
func DefaultConfig() Config {
	return Config{
		TickInterval:    10 * time.Second,
		QueueCapacity:   0,
		WorkerPoolSize:  10,
		MaxInflight:     32,
		MaxChunkRetries: 10,
		MaxJobRetries:   5,
	}
}

// Scheduler is the single-owner state machine: schedule tick, chunk
// result, document rollup, as spec §4.7 numbers them.
type Scheduler struct {
	cfg Config

	queue      *Queue
	fullDocs   *kgstore.JSONKVStore
	textChunks *kgstore.JSONKVStore
	entities   *kgstore.JSONKVStore
	relations  *kgstore.JSONKVStore
	status     *kgstatus.Service

	workTx   chan JobDispatch
	resultRx chan JobResult

	pool    *WorkerPool
	log     zerolog.Logger
	metrics Metrics
}

// Stores bundles the namespaced stores the scheduler reads and writes.
type Stores struct {
	FullDocs   *kgstore.JSONKVStore
	TextChunks *kgstore.JSONKVStore
	Entities   *kgstore.JSONKVStore
	Relations  *kgstore.JSONKVStore
}

// New constructs a Scheduler. extractor backs the worker pool; status
// drives doc-status transitions.
func New(cfg Config, stores Stores, status *kgstatus.Service, extractor Extractor, log zerolog.Logger) *Scheduler {
	queue := NewQueue(cfg.QueueCapacity)
	workTx := make(chan JobDispatch, maxInt(cfg.MaxInflight, 1))
	resultRx := make(chan JobResult, maxInt(cfg.MaxInflight, 1))

	s := &Scheduler{
		cfg:        cfg,
		queue:      queue,
		fullDocs:   stores.FullDocs,
		textChunks: stores.TextChunks,
		entities:   stores.Entities,
		relations:  stores.Relations,
		status:     status,
		workTx:     workTx,
		resultRx:   resultRx,
		log:        log.With().Str("component", "kgscheduler").Logger(),
		metrics:    NoopMetrics{},
	}
	s.pool = NewWorkerPool(cfg.WorkerPoolSize, cfg.MaxChunkRetries, queue, stores.TextChunks, extractor, workTx, resultRx, log)
	return s
}

// WithMetrics attaches a Metrics sink (e.g. an OpenTelemetry adapter from
// internal/kgobs) to both the scheduler and its worker pool. Omitting this
// call leaves NoopMetrics in place.
func (s *Scheduler) WithMetrics(m Metrics) *Scheduler {
	if m == nil {
		return s
	}
	s.metrics = m
	s.pool.metrics = m
	return s
}

// EnqueueDocument admits docID as a new job, pending dispatch on the next
// eligible schedule tick, and returns the job id.
func (s *Scheduler) EnqueueDocument(docID string) (string, error) {
	job := &Job{
		ID:         kgstore.JobID(docID, time.Now().Unix()),
		DocID:      docID,
		Status:     JobPending,
		MaxRetries: s.cfg.MaxJobRetries,
		NextRunAt:  time.Now(),
		CreatedAt:  time.Now(),
	}
	if err := s.queue.Enqueue(job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Run starts the worker pool and the main schedule/result loop, blocking
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.pool.Run(ctx)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(s.workTx)
			return
		case <-ticker.C:
			s.scheduleTick(ctx)
		case result := <-s.resultRx:
			s.handleResult(result)
		}
	}
}

// scheduleTick is spec §4.7 step 1: peek the next eligible job, materialize
// its chunk states, dispatch one JobDispatch per chunk.
func (s *Scheduler) scheduleTick(ctx context.Context) {
	job, ok := s.queue.Peek(time.Now())
	if !ok {
		return
	}

	doc, err := s.fullDocs.GetByID(job.DocID)
	if err != nil || doc["content"] == nil {
		s.failJob(job, fmt.Errorf("%w: %s", ErrDocumentUnreadable, job.DocID))
		return
	}

	chunks := s.eligibleChunks(job.DocID)
	if len(chunks) == 0 {
		s.failJob(job, fmt.Errorf("%w: %s", ErrNoChunks, job.DocID))
		return
	}

	s.queue.Lock()
	job.Chunks = chunks
	s.queue.Unlock()
	s.queue.MarkProcessing(job.ID)

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ChunkID
	}
	if prev, ok := s.statusRecord(job.DocID); ok {
		if err := s.status.MarkProcessing(job.DocID, prev, chunkIDs); err != nil {
			s.log.Error().Err(err).Str("doc_id", job.DocID).Msg("mark_processing failed")
		}
	}

	for _, c := range chunks {
		select {
		case <-ctx.Done():
			return
		case s.workTx <- JobDispatch{JobID: job.ID, DocID: job.DocID, Chunk: c}:
		}
	}
}

// eligibleChunks collects every text_chunks record for docID whose status
// is Pending or Failed, ordered by chunk_order_index ascending.
func (s *Scheduler) eligibleChunks(docID string) []*ChunkState {
	all := s.textChunks.GetAll()
	var out []*ChunkState
	for id, rec := range all {
		if rec["full_doc_id"] != docID {
			continue
		}
		status, _ := rec["status"].(string)
		if status != string(kgstore.ChunkRecordPending) && status != string(kgstore.ChunkRecordFailed) {
			continue
		}
		content, _ := rec["content"].(string)
		orderIdx := 0
		switch v := rec["chunk_order_index"].(type) {
		case int:
			orderIdx = v
		case float64:
			orderIdx = int(v)
		}
		out = append(out, &ChunkState{
			ChunkID:         id,
			Content:         content,
			ChunkOrderIndex: orderIdx,
			Status:          ChunkPending,
		})
	}
	sortChunksByOrder(out)
	return out
}

// handleResult is spec §4.7 step 2 followed by step 3 when the job
// reaches a terminal state: persist extracted entities/relationships,
// then roll up the document if every chunk is terminal.
func (s *Scheduler) handleResult(result JobResult) {
	job, ok := s.queue.Get(result.JobID)
	if !ok {
		return
	}

	// The worker pool already set the shared ChunkState's terminal status
	// (Success/Failed) before sending this result; here we only need to
	// check whether the job as a whole has reached a terminal state.
	s.queue.Lock()
	allTerminal := job.AllTerminal()
	s.queue.Unlock()

	if result.Succeeded {
		s.persistEntitiesRelationships(job.DocID, result.ChunkID, result.ChunkOrderIndex, result.Entities)
	}

	if allTerminal {
		s.rollupDocument(job)
	}
}

// persistEntitiesRelationships upserts extracted entities and resolves
// relationship endpoints within the batch, skipping and logging any
// relationship whose endpoint wasn't extracted in the same call.
func (s *Scheduler) persistEntitiesRelationships(docID, chunkID string, chunkOrderIndex int, er kgextract.EntitiesRelationships) {
	nameToID := make(map[string]string, len(er.Entities))
	entityRecords := make(map[string]kgstore.Record, len(er.Entities))

	for _, e := range er.Entities {
		id := kgstore.EntityID(docID, e.EntityName, e.EntityType)
		nameToID[e.EntityName] = id
		entityRecords[id] = kgstore.ToRecord(kgstore.EntityRecord{
			EntityName:        e.EntityName,
			EntityType:        e.EntityType,
			EntityDescription: e.EntityDescription,
			DocID:             docID,
			ChunkID:           chunkID,
			ChunkOrderIndex:   chunkOrderIndex,
		})
	}
	if len(entityRecords) > 0 {
		if err := s.entities.Upsert(entityRecords); err != nil {
			s.log.Error().Err(err).Str("doc_id", docID).Msg("failed to upsert entities")
		}
	}

	relationRecords := make(map[string]kgstore.Record, len(er.Relationships))
	for _, r := range er.Relationships {
		sourceID, ok := nameToID[r.SourceEntity]
		if !ok {
			s.log.Warn().Str("doc_id", docID).Str("source_entity", r.SourceEntity).Msg("relationship source entity not found in batch, skipping")
			continue
		}
		targetID, ok := nameToID[r.TargetEntity]
		if !ok {
			s.log.Warn().Str("doc_id", docID).Str("target_entity", r.TargetEntity).Msg("relationship target entity not found in batch, skipping")
			continue
		}
		id := kgstore.RelationID(docID, r.SourceEntity, r.TargetEntity, r.RelationshipDescription)
		relationRecords[id] = kgstore.ToRecord(kgstore.RelationRecord{
			SourceEntityID: sourceID,
			TargetEntityID: targetID,
			Keywords:       r.RelationshipKeywords,
			Description:    r.RelationshipDescription,
			DocID:          docID,
			ChunkID:        chunkID,
		})
	}
	if len(relationRecords) > 0 {
		if err := s.relations.Upsert(relationRecords); err != nil {
			s.log.Error().Err(err).Str("doc_id", docID).Msg("failed to upsert relationships")
		}
	}

	s.persistAll()
}

// persistAll flushes the full_docs, text_chunks, entities and relations
// stores if dirty, per spec §4.7 step 2's final call.
func (s *Scheduler) persistAll() {
	for _, store := range []*kgstore.JSONKVStore{s.fullDocs, s.textChunks, s.entities, s.relations} {
		if err := store.SyncIfDirty(); err != nil {
			s.log.Error().Err(err).Msg("persist_all: store flush failed")
		}
	}
}

// rollupDocument is spec §4.7 step 3.
func (s *Scheduler) rollupDocument(job *Job) {
	prev, ok := s.statusRecord(job.DocID)
	if !ok {
		s.log.Error().Str("doc_id", job.DocID).Msg("rollup: doc-status record missing")
		return
	}

	switch {
	case job.AllSucceeded():
		if err := s.status.MarkProcessed(job.DocID, prev, job.SucceededChunkIDs()); err != nil {
			s.log.Error().Err(err).Str("doc_id", job.DocID).Msg("mark_processed failed")
		}
		s.queue.MarkDone(job.ID)
		s.metrics.IncCounter("kgscheduler_documents_total", map[string]string{"outcome": "processed"})
	case len(job.SucceededChunkIDs()) == 0:
		if err := s.status.MarkFailed(job.DocID, prev, errors.New(job.WorstError())); err != nil {
			s.log.Error().Err(err).Str("doc_id", job.DocID).Msg("mark_failed failed")
		}
		s.queue.MarkFailed(job.ID)
		s.metrics.IncCounter("kgscheduler_documents_total", map[string]string{"outcome": "failed"})
	case s.cfg.StrictFailurePolicy:
		if err := s.status.MarkFailed(job.DocID, prev, errors.New(job.WorstError())); err != nil {
			s.log.Error().Err(err).Str("doc_id", job.DocID).Msg("mark_failed failed")
		}
		s.queue.MarkFailed(job.ID)
		s.metrics.IncCounter("kgscheduler_documents_total", map[string]string{"outcome": "failed"})
	default:
		if err := s.status.MarkPartiallyFailed(job.DocID, prev, job.SucceededChunkIDs(), errors.New(job.WorstError())); err != nil {
			s.log.Error().Err(err).Str("doc_id", job.DocID).Msg("mark_partially_failed failed")
		}
		s.queue.MarkDone(job.ID)
		s.metrics.IncCounter("kgscheduler_documents_total", map[string]string{"outcome": "partially_failed"})
	}
}

func (s *Scheduler) failJob(job *Job, err error) {
	prev, ok := s.statusRecord(job.DocID)
	if ok {
		if markErr := s.status.MarkFailed(job.DocID, prev, err); markErr != nil {
			s.log.Error().Err(markErr).Str("doc_id", job.DocID).Msg("mark_failed failed")
		}
	}
	s.queue.MarkFailed(job.ID)
	s.log.Error().Err(err).Str("doc_id", job.DocID).Msg("job failed fatally")
}

func (s *Scheduler) statusRecord(docID string) (kgstore.DocProcessingStatus, bool) {
	return s.status.DocStatusByID(docID)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func sortChunksByOrder(chunks []*ChunkState) {
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkOrderIndex < chunks[j].ChunkOrderIndex
	})
}
