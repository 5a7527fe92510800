package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creators.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileSourceBareArray(t *testing.T) {
	path := writeTempJSON(t, `[
		{"id":"c1","nickname":"Ana","followerCount":1000,"analysis":{"primaryNiches":["fitness"]}},
		{"id":"c2","nickname":"Ben","followerCount":500,"analysis":{"primaryNiches":["gaming"]}}
	]`)

	creators, err := NewFileSource(path).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, creators, 2)
	assert.Equal(t, "c1", creators[0].ID)
	assert.Equal(t, []string{"gaming"}, creators[1].Analysis.PrimaryNiches)
}

func TestFileSourceWrappedObject(t *testing.T) {
	path := writeTempJSON(t, `{"creators":[{"id":"c1","nickname":"Ana","followerCount":1}]}`)

	creators, err := NewFileSource(path).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, creators, 1)
	assert.Equal(t, "Ana", creators[0].Nickname)
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource("/does/not/exist.json").ListAll(context.Background())
	require.Error(t, err)
}

func TestFileSourceMalformed(t *testing.T) {
	path := writeTempJSON(t, `{"creators": "not-an-array"`)
	_, err := NewFileSource(path).ListAll(context.Background())
	require.Error(t, err)
}
