package completion

import "context"

// StaticCompleter returns a fixed string for every prompt. Used when no API
// key is configured and as the terminal fallback in tests.
type StaticCompleter struct {
	Text string
}

// Complete returns the configured text.
func (s *StaticCompleter) Complete(_ context.Context, _ string, _ Options) (string, error) {
	return s.Text, nil
}
