package kgpipeline

import (
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/kgraph/ingestcore/internal/kgstore"
)

// ErrorReporter records an intake or processing failure as a synthetic
// FAILED doc-status record, ported 1:1 from
// original_source/runtime/src/pipeline/error_reporter.rs.
type ErrorReporter struct {
	docs *kgstore.DocStatusStore
	log  zerolog.Logger
}

// NewErrorReporter constructs an ErrorReporter over docs.
func NewErrorReporter(docs *kgstore.DocStatusStore, log zerolog.Logger) *ErrorReporter {
	return &ErrorReporter{docs: docs, log: log.With().Str("component", "kgpipeline.errors").Logger()}
}

// Record upserts a FAILED doc-status record keyed
// "error-" + sha256_hex("error-{trackID}-{filename}"), carrying errorType
// and err's message in metadata.
func (r *ErrorReporter) Record(filePath, trackID, errorType string, err error) error {
	filename := filepath.Base(filePath)
	if filename == "." || filename == string(filepath.Separator) {
		filename = "unknown"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	errorDoc := kgstore.DocProcessingStatus{
		Status:         kgstore.DocFailed,
		ContentSummary: errorType + " failed for " + filename,
		ContentLength:  0,
		CreatedAt:      now,
		UpdatedAt:      now,
		FilePath:       filename,
		TrackID:        trackID,
		ChunksList:     []string{},
		Metadata: map[string]any{
			"error_type":    errorType,
			"error_message": err.Error(),
		},
		ErrorMsg: err.Error(),
	}

	docID := kgstore.ErrorRecordID(trackID, filename)
	if upsertErr := r.docs.Upsert(map[string]kgstore.DocProcessingStatus{docID: errorDoc}); upsertErr != nil {
		return upsertErr
	}
	r.log.Warn().Str("doc_id", docID).Str("error_type", errorType).Str("file_path", filePath).Msg("recorded intake/processing failure")
	return nil
}
