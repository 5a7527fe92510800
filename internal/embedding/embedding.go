// Package embedding provides vector embedding generation for brief and
// creator profile text.
//
// Defines a Provider interface and OpenAI, Gemini, and Noop implementations.
// The interface allows swapping embedding providers without changing consumers.
package embedding

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxBatchSize caps texts per upstream API call.
	MaxBatchSize = 100
	// DefaultConcurrency bounds in-flight API calls when a batch is chunked
	// and no explicit limit is configured.
	DefaultConcurrency = 3
)

// Provider generates vector embeddings from text.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, returned in
	// input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// embedChunked splits texts into MaxBatchSize chunks and runs embedOne per
// chunk with at most concurrency calls in flight. Results keep input order
// regardless of completion order.
func embedChunked(ctx context.Context, texts []string, concurrency int, embedOne func(ctx context.Context, chunk []string) ([][]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= MaxBatchSize {
		return embedOne(ctx, texts)
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(texts); start += MaxBatchSize {
		start := start
		end := min(start+MaxBatchSize, len(texts))
		g.Go(func() error {
			chunk, err := embedOne(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vecs[start:end], chunk)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}
