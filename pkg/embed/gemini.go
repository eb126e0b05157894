package embed

import (
	"context"
	"fmt"
	"os"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

// GeminiEmbedder implements Embedder on the Gemini embedding API.
type GeminiEmbedder struct {
	fn    *gemini.GeminiEmbeddingFunction
	model string
}

// NewGeminiEmbedder creates a Gemini embedder. model defaults to
// text-embedding-004.
func NewGeminiEmbedder(apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if model == "" {
		model = "text-embedding-004"
	}

	// The embedding function reads the key from the environment
	os.Setenv("GEMINI_API_KEY", apiKey)

	fn, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel(embeddings.EmbeddingModel(model)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	return &GeminiEmbedder{fn: fn, model: model}, nil
}

// Embed implements Embedder. Long inputs are truncated; embedding models
// have token limits.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > 10000 {
		text = text[:10000]
	}

	embedding, err := e.fn.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if embedding == nil {
		return nil, fmt.Errorf("gemini returned empty embedding")
	}
	return embedding.ContentAsFloat32(), nil
}

// ModelVersion implements Embedder.
func (e *GeminiEmbedder) ModelVersion() string {
	return e.model
}
