// Package search is the Hybrid Retriever: it runs keyword and vector
// queries in parallel, fuses the two rankings with Reciprocal Rank
// Fusion, and materializes the winners into snippet-bearing results.
package search

import (
	"context"

	"github.com/Aman-CERP/localagent/internal/store"
)

// Source labels which index produced a result.
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceVector  Source = "vector"
	SourceHybrid  Source = "hybrid"
)

// SearchResult is one materialized hit.
type SearchResult struct {
	ChunkID    int64
	DocumentID int64
	Path       string
	Filename   string
	Extension  string
	Snippet    string
	ChunkIndex int
	Score      float64
	Source     Source
}

// SearchOptions configures one query.
type SearchOptions struct {
	// Limit is the maximum number of results (default DefaultLimit).
	Limit int

	// Extension restricts vector-side results to documents with this
	// extension; it is pushed down into the vector search.
	Extension string
}

// SearchEngine is the retriever's public face, split out so tools and
// transports can accept a fake in tests.
type SearchEngine interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error)
}

// Store is the slice of the Document Store the retriever reads.
type Store interface {
	KeywordSearch(ctx context.Context, query string, limit int) ([]store.KeywordResult, error)
	VectorSearch(ctx context.Context, queryVector []float32, limit int, extensionFilter string) ([]store.VectorResult, error)
	GetChunkWithDocument(ctx context.Context, chunkID int64) (store.ChunkWithDocument, error)
}

// QueryEmbedder produces the query vector for the semantic side.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Available(ctx context.Context) bool
}

const (
	// DefaultLimit is used when SearchOptions.Limit is zero or negative.
	DefaultLimit = 10

	// MaxLimit caps a single query's result count.
	MaxLimit = 100

	// SnippetLength is the approximate snippet size in bytes; snippets
	// break on a word boundary near this length.
	SnippetLength = 200
)
