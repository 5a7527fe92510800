package completion

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/creatormatch/scout/internal/fault"
)

// GeminiConfig holds configuration for the Gemini completion provider.
type GeminiConfig struct {
	APIKey string
	Model  string // e.g. "gemini-2.0-flash"
}

// GeminiCompleter generates completions using Google's Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a new Gemini completion provider.
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fault.Newf(fault.KindConfig, "completion.gemini", "API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("completion: create gemini client: %w", err)
	}

	return &GeminiCompleter{client: client, model: model}, nil
}

// Complete sends a single-turn prompt and returns the reply text.
func (c *GeminiCompleter) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var config *genai.GenerateContentConfig
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		config = &genai.GenerateContentConfig{}
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxTokens) //nolint:gosec // bounded by callers
		}
		if opts.Temperature > 0 {
			config.Temperature = genai.Ptr(float32(opts.Temperature))
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		kind := fault.KindUnavailable
		if fault.KindOf(err) == fault.KindDeadline {
			kind = fault.KindDeadline
		}
		return "", fault.New(kind, "completion.complete", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fault.Newf(fault.KindUnavailable, "completion.complete", "empty completion")
	}
	return text, nil
}
