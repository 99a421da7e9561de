package kgscheduler

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned by Enqueue once capacity is reached.
var ErrQueueFull = errors.New("kgscheduler: queue at capacity")

// ErrRetriesExhausted is returned by Requeue when the job's retry budget
// is spent.
var ErrRetriesExhausted = errors.New("kgscheduler: job retries exhausted")

// Queue is the single-owner FIFO job queue: an ordered id list plus a
// lookup map, bounded by capacity. Shaped after
// original_source/runtime/src/pipeline/scheduler.rs's Queue{jobs, jobs_map,
// capacity} skeleton; the Rust file stops at the struct definition, so the
// method bodies here are authored directly from spec §4.7.
type Queue struct {
	mu       sync.Mutex
	order    []string
	jobs     map[string]*Job
	capacity int
}

// NewQueue constructs a Queue bounded at capacity (<=0 means unbounded).
func NewQueue(capacity int) *Queue {
	return &Queue{order: nil, jobs: make(map[string]*Job), capacity: capacity}
}

// Enqueue appends job to the back of the FIFO order.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.order) >= q.capacity {
		return ErrQueueFull
	}
	q.order = append(q.order, job.ID)
	q.jobs[job.ID] = job
	return nil
}

// Dequeue removes and returns the job at the front of the FIFO order.
func (q *Queue) Dequeue() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return nil, false
	}
	id := q.order[0]
	q.order = q.order[1:]
	job := q.jobs[id]
	return job, job != nil
}

// Peek returns the first job in FIFO order with Status == Pending and
// NextRunAt <= now, without removing it from the queue.
func (q *Queue) Peek(now time.Time) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		job := q.jobs[id]
		if job == nil {
			continue
		}
		if job.Status == JobPending && !job.NextRunAt.After(now) {
			return job, true
		}
	}
	return nil, false
}

// Requeue resets job to Pending with NextRunAt = now, failing if the
// job's retry budget is already spent.
func (q *Queue) Requeue(jobID string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil
	}
	if job.CurrentRetry > job.MaxRetries {
		return ErrRetriesExhausted
	}
	job.CurrentRetry++
	job.Status = JobPending
	job.NextRunAt = now
	return nil
}

// MarkProcessing transitions jobID to Processing.
func (q *Queue) MarkProcessing(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[jobID]; ok {
		job.Status = JobProcessing
	}
}

// MarkDone transitions jobID to Done and removes it from the FIFO order.
func (q *Queue) MarkDone(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[jobID]; ok {
		job.Status = JobDone
	}
	q.removeFromOrder(jobID)
}

// MarkFailed transitions jobID to Failed and removes it from the FIFO order.
func (q *Queue) MarkFailed(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[jobID]; ok {
		job.Status = JobFailed
	}
	q.removeFromOrder(jobID)
}

// Lock acquires the queue's mutex directly, for callers (the worker pool)
// that need to mutate a ChunkState in place under "the queue lock" per
// spec §4.7, rather than going through a Queue method.
func (q *Queue) Lock() { q.mu.Lock() }

// Unlock releases the mutex acquired by Lock.
func (q *Queue) Unlock() { q.mu.Unlock() }

// Get returns the job for jobID, if present.
func (q *Queue) Get(jobID string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	return job, ok
}

// Len returns the number of jobs currently tracked in FIFO order
// (Pending/Processing jobs not yet removed).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func (q *Queue) removeFromOrder(jobID string) {
	for i, id := range q.order {
		if id == jobID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}
