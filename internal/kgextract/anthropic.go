package kgextract

import (
	"context"
	"errors"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	MaxTokens int64
}

// AnthropicProvider implements Provider over Messages.New, forcing the
// schema-constrained output through a single required tool call rather than
// a native JSON-schema response format (Anthropic has none). Grounded on
// internal/llm/anthropic/client.go's Client for the SDK construction and
// params shape; synchronous under the hood, so CreateStructured returns an
// already-completed Handle and Poll is a pass-through, per provider.go's
// doc comment.
type AnthropicProvider struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	log       zerolog.Logger
}

// NewAnthropicProvider constructs an AnthropicProvider.
func NewAnthropicProvider(cfg AnthropicConfig, httpClient *http.Client, log zerolog.Logger) *AnthropicProvider {
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

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicProvider{
		sdk:       anthropic.NewClient(opts...),
		maxTokens: maxTokens,
		log:       log.With().Str("component", "kgextract.anthropic").Logger(),
	}
}

func (p *AnthropicProvider) CreateStructured(ctx context.Context, req StructuredRequest) (Handle, error) {
	model := req.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}

	tool := anthropic.ToolParam{
		Name:        req.SchemaName,
		Description: anthropic.String("Return the extraction result matching this schema exactly."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: req.Schema["properties"],
			Required:   toAnyStringSlice(req.Schema["required"]),
		},
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceParamOfTool(req.SchemaName),
	}

	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return Handle{}, classifyAnthropicError(err)
	}

	payload := map[string]any{}
	for _, block := range resp.Content {
		if tu := block.AsToolUse(); tu.Name == req.SchemaName {
			payload["output_parsed"] = map[string]any(tu.Input)
			break
		}
	}

	return Handle{ID: resp.ID, Payload: payload}, nil
}

func (p *AnthropicProvider) Poll(ctx context.Context, handle Handle) (PollStatus, Handle, error) {
	return PollCompleted, handle, nil
}

func toAnyStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func classifyAnthropicError(err error) error {
	var apiErr interface{ StatusCode() int }
	if errors.As(err, &apiErr) {
		return &httpStatusError{status: apiErr.StatusCode(), err: err}
	}
	return err
}
