// Package completion provides text generation for match reasoning. The
// orchestrator treats it as best-effort: a failed completion degrades to a
// templated rationale and never fails a match request.
package completion

import "context"

// Options tunes a single completion call. Zero values mean provider defaults.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Completer generates a short prose completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}
