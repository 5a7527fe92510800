package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/creatormatch/scout/internal/model"
)

// FileSource loads creators from a JSON file: either a bare array of
// creators or an object with a "creators" field. Intended for development
// and small deployments.
type FileSource struct {
	Path string
}

// NewFileSource creates a source reading from path on every refresh.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// ListAll reads and parses the whole file.
func (s *FileSource) ListAll(ctx context.Context) ([]model.Creator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", s.Path, err)
	}

	var creators []model.Creator
	if err := json.Unmarshal(data, &creators); err == nil {
		return creators, nil
	}

	var wrapper struct {
		Creators []model.Creator `json:"creators"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", s.Path, err)
	}
	return wrapper.Creators, nil
}
