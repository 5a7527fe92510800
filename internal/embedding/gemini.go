package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/creatormatch/scout/internal/fault"
)

// GeminiConfig holds configuration for the Gemini embedding provider.
type GeminiConfig struct {
	APIKey      string
	Model       string // e.g. "gemini-embedding-001"
	Dimensions  int    // requested output dimensionality via Matryoshka truncation
	Concurrency int    // in-flight chunked batch calls; defaults to DefaultConcurrency
}

// GeminiProvider generates embeddings using Google's Gemini API.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	dimensions  int
	concurrency int
}

// NewGeminiProvider creates a new Gemini embedding provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fault.Newf(fault.KindConfig, "embedding.gemini", "API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create gemini client: %w", err)
	}

	return &GeminiProvider{
		client:      client,
		model:       model,
		dimensions:  dims,
		concurrency: cfg.Concurrency,
	}, nil
}

// Dimensions returns the embedding vector size.
func (p *GeminiProvider) Dimensions() int {
	return p.dimensions
}

// Embed generates a single embedding.
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunked at MaxBatchSize.
func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedChunked(ctx, texts, p.concurrency, p.embed)
}

func (p *GeminiProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dims := int32(p.dimensions) //nolint:gosec // validated positive at construction
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: &dims,
	})
	if err != nil {
		kind := fault.KindUnavailable
		if fault.KindOf(err) == fault.KindDeadline {
			kind = fault.KindDeadline
		}
		return nil, fault.New(kind, "embedding.embed", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fault.Newf(fault.KindUnavailable, "embedding.embed",
			"got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != p.dimensions {
			return nil, fault.Newf(fault.KindConfig, "embedding.embed",
				"embedding %d has unexpected dimensionality", i)
		}
		vecs[i] = emb.Values
	}
	return vecs, nil
}
