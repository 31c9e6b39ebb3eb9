// Package embed is the Embedding Service: it produces fixed-dimension
// dense vectors for text through a tiered backend chain (in-process
// model first, local HTTP service second) with deferred background
// loading so construction never blocks a caller.
package embed

import (
	"context"
	"math"
)

const (
	// LocalDimensions is the output dimension of the in-process
	// sentence-embedding model.
	LocalDimensions = 384

	// RemoteDimensions is the output dimension of the HTTP fallback
	// service.
	RemoteDimensions = 768

	// MaxInputTokens caps how much of each text is fed to the model;
	// longer inputs are truncated before the forward pass.
	MaxInputTokens = 512

	// SubBatchSize bounds one forward pass. Callers passing more texts
	// get them split into sub-batches of at most this size; two or fewer
	// texts fall through to sequential single-text calls.
	SubBatchSize = 16

	// DefaultBatchSize is how many unembedded chunks the ingestion
	// pipeline pulls from the store per embedding pass.
	DefaultBatchSize = 32
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. Empty input
	// returns empty output without touching the backend.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
