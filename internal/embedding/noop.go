package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// NoopProvider derives deterministic pseudo-random unit vectors from the
// input text. Used when no API key is configured: identical text always
// maps to the same vector, so local development still gets stable, if
// meaningless, nearest-neighbor behavior.
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a provider that needs no upstream API.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Dimensions returns the embedding vector size.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// Embed returns a deterministic unit vector seeded by the text.
func (p *NoopProvider) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec // not cryptographic

	vec := make([]float32, p.dims)
	var norm float64
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// EmbedBatch returns deterministic unit vectors for each text.
func (p *NoopProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}
