package kgscheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kgraph/ingestcore/internal/kgextract"
	"github.com/kgraph/ingestcore/internal/kgstore"
)

// Extractor is the narrow surface the worker pool needs from the LLM
// extraction client, letting tests substitute a scripted fake instead of
// a real Provider.
type Extractor interface {
	Extract(ctx context.Context, chunkID, content string) (kgextract.EntitiesRelationships, error)
}

// WorkerPool consumes JobDispatch values and produces JobResult values,
// generalizing internal/documents/pipeline.go's single-direction
// "for c := range jobs" worker goroutine to the two-channel (work in,
// result out) shape spec §4.7 describes.
type WorkerPool struct {
	size            int
	maxChunkRetries int
	queue           *Queue
	chunks          *kgstore.JSONKVStore
	extractor       Extractor
	workTx          chan JobDispatch
	resultRx        chan JobResult
	log             zerolog.Logger
	metrics         Metrics
}

// NewWorkerPool constructs a pool of size workers reading from workTx and
// writing to resultRx. maxChunkRetries <= 0 defaults to 10, spec §4.7's
// per-chunk retry default.
func NewWorkerPool(size, maxChunkRetries int, queue *Queue, chunks *kgstore.JSONKVStore, extractor Extractor, workTx chan JobDispatch, resultRx chan JobResult, log zerolog.Logger) *WorkerPool {
	if size <= 0 {
		size = 10
	}
	if maxChunkRetries <= 0 {
		maxChunkRetries = 10
	}
	return &WorkerPool{
		size:            size,
		maxChunkRetries: maxChunkRetries,
		queue:           queue,
		chunks:          chunks,
		extractor:       extractor,
		workTx:          workTx,
		resultRx:        resultRx,
		log:             log.With().Str("component", "kgscheduler.pool").Logger(),
		metrics:         NoopMetrics{},
	}
}

// Run starts size worker goroutines and blocks until every worker has
// returned; a worker returns when ctx is cancelled or workTx is closed.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case dispatch, ok := <-p.workTx:
			if !ok {
				return
			}
			p.handle(ctx, dispatch)
		}
	}
}

func (p *WorkerPool) handle(ctx context.Context, dispatch JobDispatch) {
	p.queue.Lock()
	dispatch.Chunk.Status = ChunkRunning
	p.queue.Unlock()

	start := time.Now()
	result, err := p.extractor.Extract(ctx, dispatch.Chunk.ChunkID, dispatch.Chunk.Content)
	p.metrics.ObserveHistogram("kgscheduler_chunk_extract_ms", float64(time.Since(start).Milliseconds()), nil)
	if err != nil {
		p.onFailure(ctx, dispatch, err)
		return
	}
	p.onSuccess(dispatch, result)
}

func (p *WorkerPool) onSuccess(dispatch JobDispatch, result kgextract.EntitiesRelationships) {
	p.metrics.IncCounter("kgscheduler_chunks_total", map[string]string{"outcome": "success"})
	p.persistChunkStatus(dispatch.Chunk.ChunkID, kgstore.ChunkRecordSuccess, "")

	p.queue.Lock()
	dispatch.Chunk.Status = ChunkSuccess
	p.queue.Unlock()

	p.resultRx <- JobResult{
		JobID:           dispatch.JobID,
		DocID:           dispatch.DocID,
		ChunkID:         dispatch.Chunk.ChunkID,
		ChunkOrderIndex: dispatch.Chunk.ChunkOrderIndex,
		Succeeded:       true,
		Entities:        result,
	}
}

func (p *WorkerPool) onFailure(ctx context.Context, dispatch JobDispatch, err error) {
	p.persistChunkStatus(dispatch.Chunk.ChunkID, kgstore.ChunkRecordFailed, err.Error())

	job, _ := p.queue.Get(dispatch.JobID)

	p.queue.Lock()
	dispatch.Chunk.Error = err.Error()
	dispatch.Chunk.CurrentRetry++
	exhausted := dispatch.Chunk.CurrentRetry > p.maxChunkRetries
	if exhausted {
		dispatch.Chunk.Status = ChunkFailed
	} else {
		dispatch.Chunk.Status = ChunkPending
	}
	p.queue.Unlock()

	if exhausted {
		p.metrics.IncCounter("kgscheduler_chunks_total", map[string]string{"outcome": "failed"})
		p.log.Warn().Str("chunk_id", dispatch.Chunk.ChunkID).Str("job_id", dispatch.JobID).Msg("chunk retries exhausted, terminal failure")
		p.resultRx <- JobResult{
			JobID:           dispatch.JobID,
			DocID:           dispatch.DocID,
			ChunkID:         dispatch.Chunk.ChunkID,
			ChunkOrderIndex: dispatch.Chunk.ChunkOrderIndex,
			Succeeded:       false,
			Err:             err,
		}
		return
	}

	p.metrics.IncCounter("kgscheduler_chunk_retries_total", nil)
	if job != nil {
		select {
		case <-ctx.Done():
		case p.workTx <- dispatch:
		}
	}
}

func (p *WorkerPool) persistChunkStatus(chunkID string, status kgstore.ChunkStatus, errMsg string) {
	existing, getErr := p.chunks.GetByID(chunkID)
	if getErr != nil {
		p.log.Error().Err(getErr).Str("chunk_id", chunkID).Msg("chunk record missing at result time")
		return
	}
	existing["status"] = string(status)
	if errMsg != "" {
		existing["error"] = errMsg
	}
	if err := p.chunks.Upsert(map[string]kgstore.Record{chunkID: existing}); err != nil {
		p.log.Error().Err(err).Str("chunk_id", chunkID).Msg("failed to persist chunk status")
		return
	}
	if err := p.chunks.SyncIfDirty(); err != nil {
		p.log.Error().Err(err).Str("chunk_id", chunkID).Msg("failed to flush chunk store")
	}
}
