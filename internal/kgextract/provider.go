// Package kgextract implements the structured-extraction client: given a
// chunk of text, it returns a typed {entities[], relationships[]}
// structure via a provider-agnostic, schema-constrained call with retry and
// background-completion polling.
package kgextract

import (
	"context"
	"time"
)

// StructuredRequest is a provider-agnostic structured-output call.
type StructuredRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	ChunkID      string
	SchemaName   string
	Schema       map[string]any
	Strict       bool
}

// PollStatus is the terminal-or-not state of a background job.
type PollStatus string

const (
	PollQueued     PollStatus = "queued"
	PollInProgress PollStatus = "in_progress"
	PollCompleted  PollStatus = "completed"
	PollFailed     PollStatus = "failed"
	PollCancelled  PollStatus = "cancelled"
)

func (s PollStatus) Terminal() bool {
	return s == PollCompleted || s == PollFailed || s == PollCancelled
}

// Handle identifies an in-flight or completed provider call.
type Handle struct {
	ID string
	// Payload carries the raw structured-output surface once a terminal
	// status has been reached (Completed) — walked by extractStructuredOutput.
	Payload map[string]any
	// FailureMessage is populated on Failed/Cancelled from error.message or
	// last_error.message.
	FailureMessage string
}

// Provider is implemented once per backing LLM API. OpenAI's Responses API
// is natively asynchronous (background=true, then poll); Anthropic and
// Gemini are synchronous under the hood but satisfy the same two-phase
// shape by returning an already-completed handle from CreateStructured so
// Poll is a single no-op call.
type Provider interface {
	// CreateStructured issues one structured-output create-call and returns
	// a handle usable with Poll. It does not retry; Client.createWithRetry
	// retries calls whose error reports itself retryable (429/5xx).
	CreateStructured(ctx context.Context, req StructuredRequest) (Handle, error)
	// Poll checks (or, for synchronous providers, simply reflects) the
	// status of handle.
	Poll(ctx context.Context, handle Handle) (PollStatus, Handle, error)
}

// PollConfig bounds the poll loop's cadence and overall budget.
type PollConfig struct {
	Interval       time.Duration
	MaxInterval    time.Duration
	RequestTimeout time.Duration
	Budget         time.Duration
}

// DefaultPollConfig mirrors spec §4.4: ~150s per-poll timeout, backoff
// starting at 2s doubling to a 20s cap with jitter, and a concrete 30-minute
// overall budget (spec §9's open-question resolution, recorded in
// SPEC_FULL.md).
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:       2 * time.Second,
		MaxInterval:    20 * time.Second,
		RequestTimeout: 150 * time.Second,
		Budget:         30 * time.Minute,
	}
}
