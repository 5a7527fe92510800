// Package persist writes finished match results back to the system of
// record that owns assignments. Persistence is best-effort from the
// orchestrator's point of view: a failed write is logged and surfaced to the
// breaker but never fails the match request.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/creatormatch/scout/internal/fault"
	"github.com/creatormatch/scout/internal/model"
)

// Sink records the matches chosen for an assignment.
type Sink interface {
	SaveMatches(ctx context.Context, assignmentID string, matches []model.Match) error
}

// HTTPSink persists matches with a PATCH against the assignment service.
type HTTPSink struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPSinkConfig holds configuration for the HTTP persistence sink.
type HTTPSinkConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPSink creates a sink targeting baseURL.
func NewHTTPSink(cfg HTTPSinkConfig) *HTTPSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type saveMatchesRequest struct {
	MatchResults []model.Match `json:"matchResults"`
}

// SaveMatches PATCHes the match results onto the assignment record.
func (s *HTTPSink) SaveMatches(ctx context.Context, assignmentID string, matches []model.Match) error {
	if assignmentID == "" {
		return fault.Newf(fault.KindValidation, "persist.save", "assignment ID is required")
	}

	body, err := json.Marshal(saveMatchesRequest{MatchResults: matches})
	if err != nil {
		return fmt.Errorf("persist: marshal matches: %w", err)
	}

	endpoint := fmt.Sprintf("%s/assignments/%s/matches", s.baseURL, url.PathEscape(assignmentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("persist: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		kind := fault.KindUnavailable
		if fault.KindOf(err) == fault.KindDeadline {
			kind = fault.KindDeadline
		}
		return fault.New(kind, "persist.save", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	cause := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fault.New(fault.KindNotFound, "persist.save", cause)
	case http.StatusTooManyRequests:
		return fault.New(fault.KindThrottled, "persist.save", cause)
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fault.New(fault.KindConfig, "persist.save", cause)
	default:
		return fault.New(fault.KindUnavailable, "persist.save", cause)
	}
}

// NoopSink discards matches. Used when no persistence target is configured.
type NoopSink struct{}

// SaveMatches does nothing.
func (NoopSink) SaveMatches(_ context.Context, _ string, _ []model.Match) error {
	return nil
}
