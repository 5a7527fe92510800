package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{
			name:     "https with REST port maps to gRPC port",
			url:      "https://xyz.cloud.qdrant.io:6333",
			wantHost: "xyz.cloud.qdrant.io",
			wantPort: 6334,
			wantTLS:  true,
		},
		{
			name:     "http localhost gRPC port",
			url:      "http://localhost:6334",
			wantHost: "localhost",
			wantPort: 6334,
			wantTLS:  false,
		},
		{
			name:     "no port defaults to gRPC",
			url:      "http://qdrant.internal",
			wantHost: "qdrant.internal",
			wantPort: 6334,
		},
		{
			name:    "garbage",
			url:     "://not-a-url",
			wantErr: true,
		},
		{
			name:    "empty",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, useTLS, err := parseQdrantURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
			assert.Equal(t, tt.wantTLS, useTLS)
		})
	}
}

func TestClampTopK(t *testing.T) {
	assert.Equal(t, 1, ClampTopK(0))
	assert.Equal(t, 1, ClampTopK(-5))
	assert.Equal(t, 15, ClampTopK(15))
	assert.Equal(t, 100, ClampTopK(100))
	assert.Equal(t, 100, ClampTopK(5000))
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("creator-mm")
	b := PointID("creator-mm")
	c := PointID("creator-md")

	assert.Equal(t, a, b, "same creator must map to the same point ID")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36) // canonical UUID form
}
