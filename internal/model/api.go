package model

import (
	"fmt"
	"strings"
	"time"
)

// Field length limits for Assignment fields. These bound what flows into the
// embedding pipeline and keep a single oversized brief from exhausting the
// provider's context window.
const (
	MaxTopicLen   = 500
	MaxTextLen    = 8 * 1024 // keyTakeaway, additionalContext
	MaxTagLen     = 100
	MaxTagCount   = 50
	MaxLocaleLen  = 10
	MaxAssignIDLn = 200
)

// FieldError describes a single invalid assignment field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates all offending fields of one assignment.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "invalid assignment: " + strings.Join(msgs, "; ")
}

// ValidateAssignment checks required fields and per-field length limits.
// Returns a ValidationErrors listing every offending field, or nil.
func ValidateAssignment(a Assignment) error {
	var errs ValidationErrors

	required := []struct {
		field string
		value string
		max   int
	}{
		{"topic", a.Topic, MaxTopicLen},
		{"keyTakeaway", a.KeyTakeaway, MaxTextLen},
		{"additionalContext", a.AdditionalContext, MaxTextLen},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, FieldError{Field: r.field, Message: "is required"})
		} else if len(r.value) > r.max {
			errs = append(errs, FieldError{Field: r.field, Message: fmt.Sprintf("exceeds maximum length of %d", r.max)})
		}
	}

	if len(a.TargetAudience.Locale) > MaxLocaleLen {
		errs = append(errs, FieldError{Field: "targetAudience.locale", Message: fmt.Sprintf("exceeds maximum length of %d", MaxLocaleLen)})
	}
	if err := validateTags("creatorNiches", a.CreatorNiches); err != nil {
		errs = append(errs, *err)
	}
	if err := validateTags("creatorValues", a.CreatorValues); err != nil {
		errs = append(errs, *err)
	}
	if len(a.ToneStyle) > MaxTagLen {
		errs = append(errs, FieldError{Field: "toneStyle", Message: fmt.Sprintf("exceeds maximum length of %d", MaxTagLen)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateTags(field string, tags []string) *FieldError {
	if len(tags) > MaxTagCount {
		return &FieldError{Field: field, Message: fmt.Sprintf("exceeds maximum of %d tags", MaxTagCount)}
	}
	for _, t := range tags {
		if len(t) > MaxTagLen {
			return &FieldError{Field: field, Message: fmt.Sprintf("tag exceeds maximum length of %d", MaxTagLen)}
		}
	}
	return nil
}

// MatchRequest is the request body for POST /matches.
type MatchRequest struct {
	Assignment   Assignment `json:"assignment"`
	AssignmentID string     `json:"assignmentId,omitempty"`
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error. Details carries the offending fields
// for validation failures and a retry-after hint for throttled responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "DEPENDENCY_UNAVAILABLE"
	ErrCodeDeadline      = "DEADLINE_EXCEEDED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// DependencyHealth reports one external dependency in the health response.
type DependencyHealth struct {
	Name      string  `json:"name"`
	State     string  `json:"state"` // "closed", "half_open", "open"
	LastError string  `json:"lastError,omitempty"`
	UptimePct float64 `json:"uptimePct"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status       string             `json:"status"` // "healthy", "degraded", "critical"
	Version      string             `json:"version"`
	Dependencies []DependencyHealth `json:"dependencies"`
	CatalogSize  int                `json:"catalog_size"`
	Uptime       int64              `json:"uptime_seconds"`
}
