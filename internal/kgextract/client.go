package kgextract

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// LLMError wraps any failure responses_structured surfaces after its retry
// and polling budget are spent, matching spec §4.4's contract.
type LLMError struct {
	Op  string
	Err error
}

func (e *LLMError) Error() string { return fmt.Sprintf("kgextract: %s: %v", e.Op, e.Err) }
func (e *LLMError) Unwrap() error { return e.Err }

// Client wraps a Provider with the shared retry/poll/extract state machine
// so ResponsesStructured is provider-agnostic. The retry shape (5 create
// attempts, 300ms initial backoff, x1.8 + jitter(0,250ms) on 429/5xx) is
// ported from original_source/runtime/src/ai/responses.rs's
// responses_structured; the polling extension (backoff 2s doubling to a
// 20s cap with jitter, bounded by an overall budget) is spec §4.4's own
// addition over that file's effectively-unbounded loop.
type Client struct {
	provider Provider
	poll     PollConfig
	log      zerolog.Logger
}

// NewClient constructs a Client around provider with the given polling
// configuration.
func NewClient(provider Provider, poll PollConfig, log zerolog.Logger) *Client {
	return &Client{provider: provider, poll: poll, log: log.With().Str("component", "kgextract").Logger()}
}

// ResponsesStructured performs the create-call, polls until terminal, and
// extracts a T from the resulting payload. On a parse miss (the terminal
// payload has no recognizable structured output), it logs a warning and
// returns the zero value of T with no error, per spec §7's "LLM parse
// miss" taxonomy entry.
func ResponsesStructured[T any](ctx context.Context, c *Client, req StructuredRequest) (T, error) {
	var zero T

	handle, err := c.createWithRetry(ctx, req)
	if err != nil {
		return zero, &LLMError{Op: "create", Err: err}
	}

	final, err := c.pollUntilTerminal(ctx, handle)
	if err != nil {
		return zero, &LLMError{Op: "poll", Err: err}
	}

	out, ok := extractStructuredOutput[T](final.Payload)
	if !ok {
		c.log.Warn().Str("response_id", final.ID).Msg("structured output not found in response payload; returning type-default")
		return zero, nil
	}
	return out, nil
}

// createWithRetry issues CreateStructured, retrying on a provider-signaled
// transient error up to 5 attempts total.
func (c *Client) createWithRetry(ctx context.Context, req StructuredRequest) (Handle, error) {
	delay := 300 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < 5; attempt++ {
		handle, err := c.provider.CreateStructured(ctx, req)
		if err == nil {
			return handle, nil
		}

		lastErr = err
		if !isRetryableCreateError(err) {
			return Handle{}, err
		}
		if attempt == 4 {
			break
		}

		select {
		case <-ctx.Done():
			return Handle{}, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay)*1.8) + time.Duration(rand.Intn(250))*time.Millisecond
	}

	return Handle{}, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// pollUntilTerminal polls handle until the provider reports a terminal
// status, the context is cancelled, or the overall polling budget expires.
func (c *Client) pollUntilTerminal(ctx context.Context, handle Handle) (Handle, error) {
	cfg := c.poll
	if cfg.Interval <= 0 {
		cfg = DefaultPollConfig()
	}

	deadline := time.Now().Add(cfg.Budget)
	delay := cfg.Interval

	for {
		pollCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		status, updated, err := c.provider.Poll(pollCtx, handle)
		cancel()

		if err == nil {
			handle = updated
			if status.Terminal() {
				if status == PollFailed || status == PollCancelled {
					msg := handle.FailureMessage
					if msg == "" {
						msg = string(status)
					}
					return handle, fmt.Errorf("%w: %s", ErrTerminalResponse, msg)
				}
				return handle, nil
			}
		} else {
			c.log.Warn().Err(err).Str("response_id", handle.ID).Msg("transient poll error, continuing")
		}

		if time.Now().After(deadline) {
			return handle, ErrPollBudgetExceeded
		}

		select {
		case <-ctx.Done():
			return handle, ctx.Err()
		case <-time.After(delay + time.Duration(rand.Intn(500))*time.Millisecond):
		}

		delay *= 2
		if delay > cfg.MaxInterval {
			delay = cfg.MaxInterval
		}
	}
}

// retryableError is implemented by provider-level errors carrying an HTTP
// status, letting them signal 429/5xx without this package importing an
// HTTP client directly.
type retryableError interface {
	Retryable() bool
}

func isRetryableCreateError(err error) bool {
	if e, ok := err.(retryableError); ok {
		return e.Retryable()
	}
	return false
}

// extractStructuredOutput walks the payload in the order spec §4.4
// prescribes: output_parsed, output_text, then each output[] item's
// parsed/text, including nested content[] blocks. Ported from
// original_source/runtime/src/ai/responses.rs's extract_structured_output /
// parse_candidate.
func extractStructuredOutput[T any](payload map[string]any) (T, bool) {
	var zero T

	if candidate, ok := payload["output_parsed"]; ok {
		if v, ok := parseCandidate[T](candidate); ok {
			return v, true
		}
	}
	if candidate, ok := payload["output_text"]; ok {
		if v, ok := parseCandidate[T](candidate); ok {
			return v, true
		}
	}

	if rawOutput, ok := payload["output"]; ok {
		if items, ok := rawOutput.([]any); ok {
			for _, itemAny := range items {
				item, ok := itemAny.(map[string]any)
				if !ok {
					continue
				}
				if v, ok := parseCandidate[T](item["parsed"]); ok {
					return v, true
				}
				if v, ok := parseCandidate[T](item["text"]); ok {
					return v, true
				}
				if rawContent, ok := item["content"]; ok {
					if blocks, ok := rawContent.([]any); ok {
						for _, blockAny := range blocks {
							block, ok := blockAny.(map[string]any)
							if !ok {
								continue
							}
							if v, ok := parseCandidate[T](block["parsed"]); ok {
								return v, true
							}
							if v, ok := parseCandidate[T](block["text"]); ok {
								return v, true
							}
						}
					}
				}
			}
		}
	}

	return zero, false
}

// parseCandidate tries to coerce value into T: directly (it already
// structurally matches), then as a JSON-encoded string.
func parseCandidate[T any](value any) (T, bool) {
	var zero T
	if value == nil {
		return zero, false
	}

	if s, ok := value.(string); ok {
		var out T
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out, true
		}
		return zero, false
	}

	if items, ok := value.([]any); ok {
		for _, item := range items {
			if v, ok := parseCandidate[T](item); ok {
				return v, true
			}
		}
		return zero, false
	}

	b, err := json.Marshal(value)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, false
	}
	return out, true
}
