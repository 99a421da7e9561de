package kgextract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"github.com/rs/zerolog"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// GeminiProvider implements Provider over genai.Client's GenerateContent,
// using native response_schema + response_mime_type=application/json for
// the structured-output constraint rather than Anthropic's tool-call
// workaround. Grounded on internal/llm/google/client.go's Client for SDK
// construction; synchronous, so CreateStructured returns an
// already-completed Handle and Poll is a pass-through.
type GeminiProvider struct {
	client *genai.Client
	log    zerolog.Logger
}

// NewGeminiProvider constructs a GeminiProvider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, httpClient *http.Client, log zerolog.Logger) (*GeminiProvider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := cfg.Timeout
		httpOpts.Timeout = &t
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}

	return &GeminiProvider{client: client, log: log.With().Str("component", "kgextract.gemini").Logger()}, nil
}

func (p *GeminiProvider) CreateStructured(ctx context.Context, req StructuredRequest) (Handle, error) {
	model := req.Model
	if model == "" {
		model = "gemini-1.5-pro"
	}

	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return Handle{}, fmt.Errorf("marshal response schema: %w", err)
	}
	var respSchema *genai.Schema
	if err := json.Unmarshal(schemaJSON, &respSchema); err != nil {
		return Handle{}, fmt.Errorf("decode response schema: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.UserPrompt, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    respSchema,
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Handle{}, classifyGeminiError(err)
	}

	payload := map[string]any{"output_text": resp.Text()}

	return Handle{ID: geminiResponseID(resp), Payload: payload}, nil
}

func (p *GeminiProvider) Poll(ctx context.Context, handle Handle) (PollStatus, Handle, error) {
	return PollCompleted, handle, nil
}

func geminiResponseID(resp *genai.GenerateContentResponse) string {
	if resp == nil || resp.ResponseID == "" {
		return "gemini-structured-response"
	}
	return resp.ResponseID
}

func classifyGeminiError(err error) error {
	if apiErr, ok := err.(*genai.APIError); ok {
		return &httpStatusError{status: apiErr.Code, err: err}
	}
	return err
}
