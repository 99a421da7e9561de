package kgextract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	rs "github.com/openai/openai-go/v2/responses"
	"github.com/rs/zerolog"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	ReasoningEffort string
	ServiceTier     string
}

// OpenAIProvider implements Provider over the Responses API in background
// mode. Grounded on internal/llm/openai/client.go's chatResponses for the
// ResponseNewParams shape (Input.OfInputItemList, Text format,
// SetExtraFields), extended with the background+poll two-phase call that
// chatResponses doesn't need because it's synchronous.
type OpenAIProvider struct {
	sdk sdk.Client
	cfg OpenAIConfig
	log zerolog.Logger
}

// NewOpenAIProvider constructs an OpenAIProvider.
func NewOpenAIProvider(cfg OpenAIConfig, httpClient *http.Client, log zerolog.Logger) *OpenAIProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	return &OpenAIProvider{
		sdk: sdk.NewClient(opts...),
		cfg: cfg,
		log: log.With().Str("component", "kgextract.openai").Logger(),
	}
}

// httpStatusError lets the shared retry wrapper in client.go classify
// 429/5xx without importing an HTTP client of its own.
type httpStatusError struct {
	status int
	err    error
}

func (e *httpStatusError) Error() string { return e.err.Error() }
func (e *httpStatusError) Unwrap() error { return e.err }
func (e *httpStatusError) Retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

func (p *OpenAIProvider) CreateStructured(ctx context.Context, req StructuredRequest) (Handle, error) {
	effort := p.cfg.ReasoningEffort
	if effort == "" {
		effort = "high"
	}

	params := rs.ResponseNewParams{
		Model:      rs.ResponsesModel(req.Model),
		Background: sdk.Bool(true),
		Input: rs.ResponseNewParamsInputUnion{
			OfInputItemList: rs.ResponseInputParam{
				rs.ResponseInputItemUnionParam{
					OfInputMessage: &rs.ResponseInputItemMessageParam{
						Role:    "system",
						Content: rs.ResponseInputMessageContentListParam{rs.ResponseInputContentParamOfInputText(req.SystemPrompt)},
					},
				},
				rs.ResponseInputItemUnionParam{
					OfInputMessage: &rs.ResponseInputItemMessageParam{
						Role:    "user",
						Content: rs.ResponseInputMessageContentListParam{rs.ResponseInputContentParamOfInputText(req.UserPrompt)},
					},
				},
			},
		},
		Text: rs.ResponseTextConfigParam{
			Format: rs.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &rs.ResponseFormatTextJSONSchemaConfigParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
					Strict: sdk.Bool(req.Strict),
				},
			},
		},
	}
	params.Reasoning.Effort = rs.ReasoningEffort(effort)
	if p.cfg.ServiceTier != "" {
		params.SetExtraFields(map[string]any{"service_tier": p.cfg.ServiceTier})
	}

	resp, err := p.sdk.Responses.New(ctx, params)
	if err != nil {
		return Handle{}, classifyOpenAIError(err)
	}

	return Handle{ID: resp.ID}, nil
}

func (p *OpenAIProvider) Poll(ctx context.Context, handle Handle) (PollStatus, Handle, error) {
	resp, err := p.sdk.Responses.Get(ctx, handle.ID, rs.ResponseGetParams{})
	if err != nil {
		return "", handle, classifyOpenAIError(err)
	}

	status := PollStatus(resp.Status)
	updated := handle

	switch status {
	case PollFailed, PollCancelled:
		if resp.Error.Message != "" {
			updated.FailureMessage = resp.Error.Message
		} else {
			updated.FailureMessage = resp.LastError.Message
		}
	case PollCompleted:
		updated.Payload = responsePayload(resp)
	}

	return status, updated, nil
}

// responsePayload flattens the fields extractStructuredOutput walks,
// preferring the SDK's already-parsed OutputParsed when present.
func responsePayload(resp *rs.Response) map[string]any {
	payload := map[string]any{
		"output_text": resp.OutputText(),
	}
	if len(resp.OutputParsed) > 0 {
		var parsed any
		if err := json.Unmarshal(resp.OutputParsed, &parsed); err == nil {
			payload["output_parsed"] = parsed
		}
	}

	items := make([]any, 0, len(resp.Output))
	for _, item := range resp.Output {
		entry := map[string]any{}
		if msg := item.AsMessage(); len(msg.Content) > 0 {
			var blocks []any
			for _, c := range msg.Content {
				if text := c.AsOutputText(); text.Text != "" {
					blocks = append(blocks, map[string]any{"text": text.Text})
				}
			}
			entry["content"] = blocks
		}
		items = append(items, entry)
	}
	payload["output"] = items

	return payload
}

func classifyOpenAIError(err error) error {
	var apiErr interface{ StatusCode() int }
	if errors.As(err, &apiErr) {
		return &httpStatusError{status: apiErr.StatusCode(), err: err}
	}
	return err
}
