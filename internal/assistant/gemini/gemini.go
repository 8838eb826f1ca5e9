// Package gemini implements assistant.Client on the Generative Language API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	glang "google.golang.org/api/generativelanguage/v1beta"
	goption "google.golang.org/api/option"

	"shadiflow/internal/assistant"
)

// DefaultModel is used when Config.Model is blank.
const DefaultModel = "gemini-2.5-flash-lite"

// Config selects the model and credentials.
type Config struct {
	APIKey string
	Model  string
	// Timeout bounds each call. Zero leaves calls bounded only by the caller's context.
	Timeout time.Duration
	// Endpoint overrides the API base URL, for tests.
	Endpoint string
}

// Client calls models.generateContent.
type Client struct {
	svc     *glang.Service
	model   string
	timeout time.Duration
}

var _ assistant.Client = (*Client)(nil)

// New creates a client authenticated with an API key.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing Gemini API key")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	opts := []goption.ClientOption{goption.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, goption.WithEndpoint(cfg.Endpoint))
	}

	svc, err := glang.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create generative language service: %w", err)
	}

	slog.InfoContext(ctx, "Gemini client created", "model", model)
	return &Client{svc: svc, model: model, timeout: cfg.Timeout}, nil
}

// Generate sends the history plus the current prompt and returns the
// concatenated text of the first candidate.
func (c *Client) Generate(ctx context.Context, req assistant.Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.svc.Models.GenerateContent("models/"+c.model, buildRequest(req)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return responseText(resp)
}

func buildRequest(req assistant.Request) *glang.GenerateContentRequest {
	contents := make([]*glang.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, &glang.Content{
			Role:  string(turn.Role),
			Parts: []*glang.Part{{Text: turn.Text}},
		})
	}
	contents = append(contents, &glang.Content{
		Role:  string(assistant.RoleUser),
		Parts: []*glang.Part{{Text: req.Prompt}},
	})

	out := &glang.GenerateContentRequest{
		Contents: contents,
		GenerationConfig: &glang.GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: int64(req.MaxTokens),
			ForceSendFields: []string{"Temperature"},
		},
	}
	if req.System != "" {
		out.SystemInstruction = &glang.Content{Parts: []*glang.Part{{Text: req.System}}}
	}
	return out
}

func responseText(resp *glang.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked (%s)", assistant.ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return "", assistant.ErrEmptyResponse
	}

	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("%w: finish reason %s", assistant.ErrEmptyResponse, cand.FinishReason)
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: finish reason %s", assistant.ErrEmptyResponse, cand.FinishReason)
	}
	return b.String(), nil
}
