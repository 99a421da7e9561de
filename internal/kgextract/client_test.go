package kgextract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type scriptedError struct {
	retryable bool
}

func (e *scriptedError) Error() string   { return "scripted error" }
func (e *scriptedError) Retryable() bool { return e.retryable }

type scriptedProvider struct {
	createCalls int
	createErrs  []error
	pollCalls   int
	pollResults []struct {
		status PollStatus
		handle Handle
		err    error
	}
}

func (p *scriptedProvider) CreateStructured(ctx context.Context, req StructuredRequest) (Handle, error) {
	idx := p.createCalls
	p.createCalls++
	if idx < len(p.createErrs) && p.createErrs[idx] != nil {
		return Handle{}, p.createErrs[idx]
	}
	return Handle{ID: "resp-1"}, nil
}

func (p *scriptedProvider) Poll(ctx context.Context, handle Handle) (PollStatus, Handle, error) {
	idx := p.pollCalls
	p.pollCalls++
	if idx >= len(p.pollResults) {
		r := p.pollResults[len(p.pollResults)-1]
		return r.status, r.handle, r.err
	}
	r := p.pollResults[idx]
	return r.status, r.handle, r.err
}

func fastPollConfig() PollConfig {
	return PollConfig{
		Interval:       time.Millisecond,
		MaxInterval:    5 * time.Millisecond,
		RequestTimeout: time.Second,
		Budget:         200 * time.Millisecond,
	}
}

func TestResponsesStructured_SucceedsOnFirstTry(t *testing.T) {
	provider := &scriptedProvider{
		pollResults: []struct {
			status PollStatus
			handle Handle
			err    error
		}{
			{status: PollCompleted, handle: Handle{ID: "resp-1", Payload: map[string]any{
				"output_parsed": map[string]any{"entities": []any{}, "relationships": []any{}},
			}}},
		},
	}
	client := NewClient(provider, fastPollConfig(), zerolog.Nop())

	out, err := ResponsesStructured[EntitiesRelationships](context.Background(), client, StructuredRequest{
		Model: "test-model", SchemaName: EntitiesRelationshipsSchemaName,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Entities)
	require.Equal(t, 1, provider.createCalls)
}

func TestResponsesStructured_RetriesOnTransientCreateError(t *testing.T) {
	provider := &scriptedProvider{
		createErrs: []error{&scriptedError{retryable: true}, &scriptedError{retryable: true}, nil},
		pollResults: []struct {
			status PollStatus
			handle Handle
			err    error
		}{
			{status: PollCompleted, handle: Handle{ID: "resp-1", Payload: map[string]any{
				"output_text": `{"entities":[],"relationships":[]}`,
			}}},
		},
	}
	client := NewClient(provider, PollConfig{Interval: time.Millisecond, MaxInterval: time.Millisecond, RequestTimeout: time.Second, Budget: time.Second}, zerolog.Nop())

	out, err := ResponsesStructured[EntitiesRelationships](context.Background(), client, StructuredRequest{Model: "test-model"})
	require.NoError(t, err)
	require.Equal(t, 3, provider.createCalls)
	require.Empty(t, out.Entities)
}

func TestResponsesStructured_NonRetryableCreateErrorFailsImmediately(t *testing.T) {
	provider := &scriptedProvider{createErrs: []error{&scriptedError{retryable: false}}}
	client := NewClient(provider, fastPollConfig(), zerolog.Nop())

	_, err := ResponsesStructured[EntitiesRelationships](context.Background(), client, StructuredRequest{Model: "test-model"})
	require.Error(t, err)
	require.Equal(t, 1, provider.createCalls)

	var llmErr *LLMError
	require.True(t, errors.As(err, &llmErr))
	require.Equal(t, "create", llmErr.Op)
}

func TestResponsesStructured_ExhaustsRetries(t *testing.T) {
	provider := &scriptedProvider{createErrs: []error{
		&scriptedError{retryable: true}, &scriptedError{retryable: true}, &scriptedError{retryable: true},
		&scriptedError{retryable: true}, &scriptedError{retryable: true},
	}}
	client := NewClient(provider, PollConfig{Interval: time.Millisecond, MaxInterval: time.Millisecond, RequestTimeout: time.Second, Budget: time.Second}, zerolog.Nop())

	_, err := ResponsesStructured[EntitiesRelationships](context.Background(), client, StructuredRequest{Model: "test-model"})
	require.Error(t, err)
	require.Equal(t, 5, provider.createCalls)
	require.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestResponsesStructured_TerminalFailureSurfacesMessage(t *testing.T) {
	provider := &scriptedProvider{
		pollResults: []struct {
			status PollStatus
			handle Handle
			err    error
		}{
			{status: PollFailed, handle: Handle{ID: "resp-1", FailureMessage: "rate limited permanently"}},
		},
	}
	client := NewClient(provider, fastPollConfig(), zerolog.Nop())

	_, err := ResponsesStructured[EntitiesRelationships](context.Background(), client, StructuredRequest{Model: "test-model"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTerminalResponse)
	require.Contains(t, err.Error(), "rate limited permanently")
}

func TestResponsesStructured_PollBudgetExceeded(t *testing.T) {
	provider := &scriptedProvider{
		pollResults: []struct {
			status PollStatus
			handle Handle
			err    error
		}{
			{status: PollInProgress, handle: Handle{ID: "resp-1"}},
		},
	}
	cfg := PollConfig{Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond, RequestTimeout: time.Second, Budget: 20 * time.Millisecond}
	client := NewClient(provider, cfg, zerolog.Nop())

	_, err := ResponsesStructured[EntitiesRelationships](context.Background(), client, StructuredRequest{Model: "test-model"})
	require.ErrorIs(t, err, ErrPollBudgetExceeded)
}

func TestResponsesStructured_ParseMissReturnsZeroValueNoError(t *testing.T) {
	provider := &scriptedProvider{
		pollResults: []struct {
			status PollStatus
			handle Handle
			err    error
		}{
			{status: PollCompleted, handle: Handle{ID: "resp-1", Payload: map[string]any{}}},
		},
	}
	client := NewClient(provider, fastPollConfig(), zerolog.Nop())

	out, err := ResponsesStructured[EntitiesRelationships](context.Background(), client, StructuredRequest{Model: "test-model"})
	require.NoError(t, err)
	require.Nil(t, out.Entities)
}

func TestExtractStructuredOutput_WalksNestedContentBlocks(t *testing.T) {
	payload := map[string]any{
		"output": []any{
			map[string]any{
				"content": []any{
					map[string]any{"text": `{"entities":[{"entity_name":"BRCA1","entity_type":"Gene","entity_description":"a gene"}],"relationships":[]}`},
				},
			},
		},
	}

	out, ok := extractStructuredOutput[EntitiesRelationships](payload)
	require.True(t, ok)
	require.Len(t, out.Entities, 1)
	require.Equal(t, "BRCA1", out.Entities[0].EntityName)
}

func TestParseCandidate_DirectStructuralMatch(t *testing.T) {
	value := map[string]any{"entities": []any{}, "relationships": []any{}}
	out, ok := parseCandidate[EntitiesRelationships](value)
	require.True(t, ok)
	require.Empty(t, out.Entities)
}
