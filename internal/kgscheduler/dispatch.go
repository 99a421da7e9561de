package kgscheduler

import "github.com/kgraph/ingestcore/internal/kgextract"

// JobDispatch is one chunk of work sent to the worker pool.
type JobDispatch struct {
	JobID string
	DocID string
	Chunk *ChunkState
}

// JobResult is one chunk's outcome, sent back to the scheduler's main
// loop for bookkeeping and entity/relationship persistence.
type JobResult struct {
	JobID           string
	DocID           string
	ChunkID         string
	ChunkOrderIndex int
	Succeeded       bool
	Entities        kgextract.EntitiesRelationships
	Err             error
}
