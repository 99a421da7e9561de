// Package kgscheduler implements the two-level scheduler: a FIFO job queue
// keyed by document, and a fixed-size worker pool that extracts entities
// and relationships from each chunk of the job currently being processed.
package kgscheduler

import "time"

// JobStatus is a job's lifecycle state in the scheduler queue.
type JobStatus string

const (
	JobPending    JobStatus = "Pending"
	JobProcessing JobStatus = "Processing"
	JobDone       JobStatus = "Done"
	JobFailed     JobStatus = "Failed"
)

// ChunkRunStatus is a chunk's in-memory processing status while its parent
// job is being worked, distinct from kgstore.ChunkStatus which tracks the
// persisted record.
type ChunkRunStatus string

const (
	ChunkPending ChunkRunStatus = "Pending"
	ChunkRunning ChunkRunStatus = "Running"
	ChunkSuccess ChunkRunStatus = "Success"
	ChunkFailed  ChunkRunStatus = "Failed"
)

// ChunkState tracks one chunk's progress within a Job.
type ChunkState struct {
	ChunkID         string
	Content         string
	ChunkOrderIndex int
	Status          ChunkRunStatus
	CurrentRetry    int
	Error           string
}

// Job is one document's unit of work in the scheduler queue.
type Job struct {
	ID           string
	DocID        string
	Status       JobStatus
	Chunks       []*ChunkState
	CurrentRetry int
	MaxRetries   int
	NextRunAt    time.Time
	CreatedAt    time.Time
}

// AllTerminal reports whether every chunk has reached Success or Failed.
func (j *Job) AllTerminal() bool {
	for _, c := range j.Chunks {
		if c.Status != ChunkSuccess && c.Status != ChunkFailed {
			return false
		}
	}
	return true
}

// AllSucceeded reports whether every chunk succeeded.
func (j *Job) AllSucceeded() bool {
	for _, c := range j.Chunks {
		if c.Status != ChunkSuccess {
			return false
		}
	}
	return true
}

// SucceededChunkIDs returns the ids of chunks that reached Success, in
// ChunkOrderIndex order (the slice they were attached to the job in).
func (j *Job) SucceededChunkIDs() []string {
	ids := make([]string, 0, len(j.Chunks))
	for _, c := range j.Chunks {
		if c.Status == ChunkSuccess {
			ids = append(ids, c.ChunkID)
		}
	}
	return ids
}

// WorstError returns the error message of the first failed chunk, in chunk order,
// used to populate doc-status metadata on a partial-failure rollup.
func (j *Job) WorstError() string {
	for _, c := range j.Chunks {
		if c.Status == ChunkFailed && c.Error != "" {
			return c.Error
		}
	}
	return ""
}
