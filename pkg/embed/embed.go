package embed

import (
	"context"
)

// Embedder is the embedding collaborator: turns text into a fixed-dimension
// vector. ModelVersion identifies the model that produced a vector; index
// entries carry it so vectors from different models are never compared.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}
