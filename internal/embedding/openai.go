package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/creatormatch/scout/internal/fault"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig holds configuration for the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey      string
	Model       string // e.g. "text-embedding-3-small"
	BaseURL     string // defaults to the public API; override in tests
	Dimensions  int    // expected vector size, e.g. 1536
	Timeout     time.Duration
	Concurrency int // in-flight chunked batch calls; defaults to DefaultConcurrency
}

// OpenAIProvider generates embeddings using the OpenAI API.
type OpenAIProvider struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	dimensions  int
	concurrency int
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		dimensions:  dims,
		concurrency: cfg.Concurrency,
	}
}

// Dimensions returns the embedding vector size.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates a single embedding.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunked at MaxBatchSize.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedChunked(ctx, texts, p.concurrency, p.embed)
}

func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(openAIRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		kind := fault.KindUnavailable
		if fault.KindOf(err) == fault.KindDeadline {
			kind = fault.KindDeadline
		}
		return nil, fault.New(kind, "embedding.embed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.New(fault.KindUnavailable, "embedding.embed", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyStatus(resp, body)
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fault.New(fault.KindUnavailable, "embedding.embed",
			fmt.Errorf("unmarshal response: %w", err))
	}
	if result.Error != nil {
		return nil, fault.Newf(fault.KindUnavailable, "embedding.embed",
			"openai error: %s: %s", result.Error.Type, result.Error.Message)
	}

	// Ensure results are in input order.
	vecs := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fault.Newf(fault.KindUnavailable, "embedding.embed",
				"invalid index %d in response", d.Index)
		}
		if len(d.Embedding) != p.dimensions {
			return nil, fault.Newf(fault.KindConfig, "embedding.embed",
				"got %d-dimensional vector, expected %d", len(d.Embedding), p.dimensions)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fault.Newf(fault.KindUnavailable, "embedding.embed",
				"missing embedding for input %d", i)
		}
	}

	return vecs, nil
}

func (p *OpenAIProvider) classifyStatus(resp *http.Response, body []byte) error {
	err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &fault.Error{
			Kind:       fault.KindThrottled,
			Op:         "embedding.embed",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        err,
		}
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		return fault.New(fault.KindConfig, "embedding.embed", err)
	default:
		return fault.New(fault.KindUnavailable, "embedding.embed", err)
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
