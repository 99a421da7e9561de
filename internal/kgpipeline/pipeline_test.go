package kgpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kgraph/ingestcore/internal/kgchunk"
	"github.com/kgraph/ingestcore/internal/kgdoc"
	"github.com/kgraph/ingestcore/internal/kgstatus"
	"github.com/kgraph/ingestcore/internal/kgstore"
)

// fakeScheduler records EnqueueDocument calls without running a worker
// pool, keeping these tests focused on the pipeline's intake logic.
type fakeScheduler struct {
	enqueued []string
}

func (f *fakeScheduler) EnqueueDocument(docID string) (string, error) {
	f.enqueued = append(f.enqueued, docID)
	return "job-" + docID, nil
}

func (f *fakeScheduler) Run(ctx context.Context) {}

type testPipeline struct {
	pipeline  *Pipeline
	scheduler *fakeScheduler
	inputDir  string
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	log := zerolog.Nop()

	docs, err := kgdoc.New(ctx, filepath.Join(dir, "input"), "", []string{"txt", "md"})
	require.NoError(t, err)

	fullDocs := kgstore.NewJSONKVStore(dir, "", "full_docs", log)
	require.NoError(t, fullDocs.Initialize())
	textChunks := kgstore.NewJSONKVStore(dir, "", "text_chunks", log)
	require.NoError(t, textChunks.Initialize())
	docStatus := kgstore.NewDocStatusStore(dir, "", "doc_status", log)
	require.NoError(t, docStatus.Initialize())

	status := kgstatus.New(fullDocs, docStatus)
	errs := NewErrorReporter(docStatus, log)
	sched := &fakeScheduler{}

	cfg := kgchunk.Config{MaxTokens: 50, OverlapTokens: 0}
	p := New(docs, status, docStatus, sched, errs, kgchunk.NewWordTokenizer(), cfg, textChunks, log)

	return &testPipeline{pipeline: p, scheduler: sched, inputDir: docs.InputDir()}
}

func (tp *testPipeline) stageFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(tp.inputDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEnqueueFile_CleanIngest(t *testing.T) {
	tp := newTestPipeline(t)
	path := tp.stageFile(t, "paper.txt", "the mitochondria is the powerhouse of the cell")

	result, err := tp.pipeline.EnqueueFile(context.Background(), path, "")
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, result.Status)
	require.NotEmpty(t, result.TrackID)

	require.Len(t, tp.scheduler.enqueued, 1)

	docID := kgstore.DocID("the mitochondria is the powerhouse of the cell")
	rec, ok := tp.pipeline.docStatus.GetByID(docID)
	require.True(t, ok)
	require.Equal(t, kgstore.DocPending, rec.Status)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "original file should have been moved to __enqueued__")

	entries := tp.pipeline.List(1, 10)
	require.Len(t, entries, 1)
	require.Equal(t, "Pending", entries[0].DisplayStatus)
}

func TestEnqueueFile_DuplicateByContent(t *testing.T) {
	tp := newTestPipeline(t)

	first := tp.stageFile(t, "a.txt", "duplicate content across two filenames")
	result1, err := tp.pipeline.EnqueueFile(context.Background(), first, "")
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, result1.Status)

	second := tp.stageFile(t, "b.txt", "duplicate content across two filenames")
	result2, err := tp.pipeline.EnqueueFile(context.Background(), second, "")
	require.NoError(t, err)
	require.Equal(t, ResultDuplicated, result2.Status)

	require.Len(t, tp.scheduler.enqueued, 1, "only the first enqueue should have reached the scheduler")

	_, statErr := os.Stat(second)
	require.NoError(t, statErr, "the duplicate file is left in place, not moved")
}

func TestEnqueueFile_UnsupportedExtensionReportsFailure(t *testing.T) {
	tp := newTestPipeline(t)
	path := tp.stageFile(t, "image.png", "not really a png")

	_, err := tp.pipeline.EnqueueFile(context.Background(), path, "track-1")
	require.Error(t, err)
	require.Empty(t, tp.scheduler.enqueued)

	docID := kgstore.ErrorRecordID("track-1", "image.png")
	rec, ok := tp.pipeline.docStatus.GetByID(docID)
	require.True(t, ok)
	require.Equal(t, kgstore.DocFailed, rec.Status)
}

func TestEnqueueFile_EmptyContentReportsFailure(t *testing.T) {
	tp := newTestPipeline(t)
	path := tp.stageFile(t, "empty.txt", "   \n  ")

	_, err := tp.pipeline.EnqueueFile(context.Background(), path, "")
	require.Error(t, err)
	require.Empty(t, tp.scheduler.enqueued)
}
