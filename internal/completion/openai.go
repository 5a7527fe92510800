package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/creatormatch/scout/internal/fault"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig holds configuration for the OpenAI completion provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string // e.g. "gpt-4o-mini"
	BaseURL string // defaults to the public API; override in tests
	Timeout time.Duration
}

// OpenAICompleter generates completions using the OpenAI chat API.
type OpenAICompleter struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAICompleter creates a new OpenAI completion provider.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAICompleter{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a single-turn chat request and returns the reply text.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	payload := chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature > 0 {
		payload.Temperature = &opts.Temperature
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("completion: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("completion: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := fault.KindUnavailable
		if fault.KindOf(err) == fault.KindDeadline {
			kind = fault.KindDeadline
		}
		return "", fault.New(kind, "completion.complete", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.New(fault.KindUnavailable, "completion.complete", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.classifyStatus(resp, body)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fault.New(fault.KindUnavailable, "completion.complete",
			fmt.Errorf("unmarshal response: %w", err))
	}
	if result.Error != nil {
		return "", fault.Newf(fault.KindUnavailable, "completion.complete",
			"openai error: %s: %s", result.Error.Type, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fault.Newf(fault.KindUnavailable, "completion.complete", "no choices in response")
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", fault.Newf(fault.KindUnavailable, "completion.complete", "empty completion")
	}
	return text, nil
}

func (c *OpenAICompleter) classifyStatus(resp *http.Response, body []byte) error {
	err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &fault.Error{
			Kind:       fault.KindThrottled,
			Op:         "completion.complete",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        err,
		}
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		return fault.New(fault.KindConfig, "completion.complete", err)
	default:
		return fault.New(fault.KindUnavailable, "completion.complete", err)
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
