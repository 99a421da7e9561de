package kgscheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kgraph/ingestcore/internal/kgextract"
	"github.com/kgraph/ingestcore/internal/kgstatus"
	"github.com/kgraph/ingestcore/internal/kgstore"
)

// thirdChunkFailingExtractor deterministically fails every chunk whose
// content embeds an order index listed in failOrderIndex, and always fails
// the same way (no flakiness) so retries are genuinely exhausted.
type thirdChunkFailingExtractor struct {
	failOrderIndex map[int]bool
}

func (e *thirdChunkFailingExtractor) Extract(ctx context.Context, chunkID, content string) (kgextract.EntitiesRelationships, error) {
	idx := parseOrderIndex(content)
	if e.failOrderIndex[idx] {
		return kgextract.EntitiesRelationships{}, errors.New("extraction failed")
	}
	return kgextract.EntitiesRelationships{
		Entities: []kgextract.ExtractedEntity{
			{EntityName: fmt.Sprintf("Entity-%d", idx), EntityType: "Gene", EntityDescription: "d"},
		},
	}, nil
}

func parseOrderIndex(content string) int {
	var idx int
	fmt.Sscanf(content, "content for chunk %d", &idx)
	return idx
}

type testHarness struct {
	fullDocs   *kgstore.JSONKVStore
	textChunks *kgstore.JSONKVStore
	entities   *kgstore.JSONKVStore
	relations  *kgstore.JSONKVStore
	docStatus  *kgstore.DocStatusStore
	status     *kgstatus.Service
}

func newTestHarness(t *testing.T, dir string) *testHarness {
	t.Helper()
	log := zerolog.Nop()

	fullDocs := kgstore.NewJSONKVStore(dir, "", "full_docs", log)
	require.NoError(t, fullDocs.Initialize())
	textChunks := kgstore.NewJSONKVStore(dir, "", "text_chunks", log)
	require.NoError(t, textChunks.Initialize())
	entities := kgstore.NewJSONKVStore(dir, "", "full_entities", log)
	require.NoError(t, entities.Initialize())
	relations := kgstore.NewJSONKVStore(dir, "", "full_relations", log)
	require.NoError(t, relations.Initialize())
	docStatus := kgstore.NewDocStatusStore(dir, "", "doc_status", log)
	require.NoError(t, docStatus.Initialize())

	return &testHarness{
		fullDocs:   fullDocs,
		textChunks: textChunks,
		entities:   entities,
		relations:  relations,
		docStatus:  docStatus,
		status:     kgstatus.New(fullDocs, docStatus),
	}
}

func (h *testHarness) stores() Stores {
	return Stores{FullDocs: h.fullDocs, TextChunks: h.textChunks, Entities: h.entities, Relations: h.relations}
}

func seedDocument(t *testing.T, h *testHarness, docID string, numChunks int) {
	t.Helper()
	require.NoError(t, h.status.EnqueuePending([]kgstatus.PendingDoc{{ID: docID, Content: "document body"}}))

	chunks := make(map[string]kgstore.Record, numChunks)
	for i := 0; i < numChunks; i++ {
		chunkID := fmt.Sprintf("chunk-%s-%d", docID, i)
		chunks[chunkID] = kgstore.Record{
			"content":           fmt.Sprintf("content for chunk %d", i),
			"full_doc_id":       docID,
			"chunk_order_index": i,
			"status":            string(kgstore.ChunkRecordPending),
		}
	}
	require.NoError(t, h.textChunks.Upsert(chunks))
}

// drive processes one scheduler job to completion by alternating between
// draining workTx (feeding the pool's handle synchronously, no
// goroutines) and resultRx (feeding handleResult), until numChunks
// terminal results have been observed. This exercises the exact same
// code paths Run would, deterministically and without real time.
func drive(t *testing.T, ctx context.Context, s *Scheduler, numChunks int) {
	t.Helper()
	processed := 0
	for processed < numChunks {
		select {
		case d := <-s.workTx:
			s.pool.handle(ctx, d)
		case r := <-s.resultRx:
			s.handleResult(r)
			processed++
		}
	}
}

func TestScheduler_PartialFailureRollup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	h := newTestHarness(t, dir)

	docID := "doc-partial"
	seedDocument(t, h, docID, 10)

	extractor := &thirdChunkFailingExtractor{failOrderIndex: map[int]bool{2: true, 5: true, 8: true}}
	cfg := DefaultConfig()
	cfg.MaxChunkRetries = 2
	cfg.MaxInflight = 64

	s := New(cfg, h.stores(), h.status, extractor, zerolog.Nop())

	jobID, err := s.EnqueueDocument(docID)
	require.NoError(t, err)

	s.scheduleTick(ctx)
	job, ok := s.queue.Get(jobID)
	require.True(t, ok)
	require.Len(t, job.Chunks, 10)

	drive(t, ctx, s, 10)

	successCount, failedCount := 0, 0
	for _, rec := range h.textChunks.GetAll() {
		if rec["full_doc_id"] != docID {
			continue
		}
		switch rec["status"] {
		case string(kgstore.ChunkRecordSuccess):
			successCount++
			require.Empty(t, rec["error"])
		case string(kgstore.ChunkRecordFailed):
			failedCount++
			require.NotEmpty(t, rec["error"])
		}
	}
	require.Equal(t, 7, successCount)
	require.Equal(t, 3, failedCount)

	rec, ok := h.docStatus.GetByID(docID)
	require.True(t, ok)
	require.Equal(t, kgstore.DocPartiallyFailed, rec.Status)
	require.Len(t, rec.ChunksList, 7)

	entityCount := 0
	for range h.entities.GetAll() {
		entityCount++
	}
	require.Equal(t, 7, entityCount)
}

func TestScheduler_CrashRecoveryReprocessesOnlyFailedChunks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// First run: scenario 5's partial failure, persisted to dir.
	h1 := newTestHarness(t, dir)
	docID := "doc-recover"
	seedDocument(t, h1, docID, 10)

	failingExtractor := &thirdChunkFailingExtractor{failOrderIndex: map[int]bool{2: true, 5: true, 8: true}}
	cfg := DefaultConfig()
	cfg.MaxChunkRetries = 1
	cfg.MaxInflight = 64

	s1 := New(cfg, h1.stores(), h1.status, failingExtractor, zerolog.Nop())
	jobID1, err := s1.EnqueueDocument(docID)
	require.NoError(t, err)
	s1.scheduleTick(ctx)
	drive(t, ctx, s1, 10)

	rec, ok := h1.docStatus.GetByID(docID)
	require.True(t, ok)
	require.Equal(t, kgstore.DocPartiallyFailed, rec.Status)
	_ = jobID1

	// "Restart the process": fresh store instances reloading the same
	// on-disk directory.
	h2 := newTestHarness(t, dir)

	reloaded, ok := h2.docStatus.GetByID(docID)
	require.True(t, ok)
	require.Equal(t, kgstore.DocPartiallyFailed, reloaded.Status)

	pendingOrFailed := 0
	for _, r := range h2.textChunks.GetAll() {
		if r["full_doc_id"] != docID {
			continue
		}
		if r["status"] == string(kgstore.ChunkRecordFailed) || r["status"] == string(kgstore.ChunkRecordPending) {
			pendingOrFailed++
		}
	}
	require.Equal(t, 3, pendingOrFailed)

	succeedingExtractor := &thirdChunkFailingExtractor{failOrderIndex: map[int]bool{}}
	s2 := New(cfg, h2.stores(), h2.status, succeedingExtractor, zerolog.Nop())
	jobID2, err := s2.EnqueueDocument(docID)
	require.NoError(t, err)

	s2.scheduleTick(ctx)
	job2, ok := s2.queue.Get(jobID2)
	require.True(t, ok)
	require.Len(t, job2.Chunks, 3, "only the 3 Failed chunks are eligible for redispatch")

	drive(t, ctx, s2, 3)

	final, ok := h2.docStatus.GetByID(docID)
	require.True(t, ok)
	require.Equal(t, kgstore.DocProcessed, final.Status)
}
