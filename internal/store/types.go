// Package store is the Document Store (C1): the persistent catalog of
// files, chunks, keyword index and vector index, and the single
// authoritative state for the rest of the system.
package store

import (
	"context"
	"fmt"
	"time"
)

// CloudPlaceholderHashPrefix marks a document whose bytes were never
// read because the file is a cloud-placeholder (offline / recall-on-data
// access). The stored hash is "cloud:<path>" rather than a SHA-256 sum.
const CloudPlaceholderHashPrefix = "cloud:"

// Document is one row per ingested file, keyed by absolute path.
type Document struct {
	ID         int64
	Path       string
	Filename   string
	Extension  string
	Size       int64
	Hash       string // SHA-256 hex, or "cloud:<path>" for placeholders
	ModifiedAt time.Time
	IndexedAt  time.Time
}

// Chunk is a contiguous slice of a document's text sized for embedding.
type Chunk struct {
	ID           int64
	DocumentID   int64
	Index        int // zero-based, contiguous within a document
	Content      string
	TokenCount   int
	HasEmbedding bool
}

// ChunkWithDocument is a joined read used by get_chunk_with_document and
// by the hybrid retriever when materializing results.
type ChunkWithDocument struct {
	Chunk
	Path      string
	Filename  string
	Extension string
}

// Stats is the O(1) summary returned by get_stats.
type Stats struct {
	DocumentCount        int
	ChunkCount           int
	EmbeddedChunkCount   int
}

// Conversation is an optional persistent record of agent interactions.
type Conversation struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRole enumerates the roles a Message may carry.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one append-only entry in a Conversation.
type Message struct {
	ID             int64
	ConversationID int64
	Role           MessageRole
	Content        string
	Timestamp      time.Time
	ToolCallsJSON  string // serialized tool-call list, empty if none
	ModelID        string
}

// ErrVectorIndexDisabled is returned by insert_embedding when the vector
// index failed to initialize at startup; searches degrade to empty
// results rather than erroring.
var ErrVectorIndexDisabled = fmt.Errorf("vector index disabled")

// MetadataStore is the Document Store's public contract.
// All writes serialize under a single exclusive lock inside the
// implementation; readers may run concurrently where SQLite's WAL mode
// allows it.
type MetadataStore interface {
	UpsertDocument(ctx context.Context, path, filename, extension string, size int64, hash string, modifiedAt time.Time) (int64, error)
	InsertChunk(ctx context.Context, documentID int64, index int, content string, tokenCount int) (int64, error)
	DeleteChunksForDocument(ctx context.Context, documentID int64) error
	DeleteEmbeddingsForDocument(ctx context.Context, documentID int64) error
	MarkChunkEmbedded(ctx context.Context, chunkID int64) error
	GetUnembeddedChunks(ctx context.Context, limit int) ([]Chunk, error)

	KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordResult, error)
	VectorSearch(ctx context.Context, queryVector []float32, limit int, extensionFilter string) ([]VectorResult, error)
	InsertEmbedding(ctx context.Context, chunkID int64, vector []float32) error

	GetStats(ctx context.Context) (Stats, error)
	GetRecentDocuments(ctx context.Context, limit int) ([]Document, error)
	GetChunkWithDocument(ctx context.Context, chunkID int64) (ChunkWithDocument, error)
	GetDocumentByPath(ctx context.Context, path string) (Document, bool, error)
	DeleteDocument(ctx context.Context, documentID int64) error

	// Embedding-model identity, used to detect backend changes so stale
	// vectors can be re-embedded lazily instead of wiped.
	GetEmbeddingModelIdentity(ctx context.Context) (name string, dimensions int, err error)
	SetEmbeddingModelIdentity(ctx context.Context, name string, dimensions int) error
	MarkAllChunksUnembedded(ctx context.Context) error

	// Conversation persistence.
	CreateConversation(ctx context.Context) (int64, error)
	DeleteConversation(ctx context.Context, conversationID int64) error
	AppendMessage(ctx context.Context, m Message) (int64, error)
	GetMessages(ctx context.Context, conversationID int64) ([]Message, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]Message, error)

	Close() error
}

// KeywordResult is one row from KeywordSearch: lower rank is a better
// match, mirroring FTS5's native bm25() convention directly.
type KeywordResult struct {
	ChunkID int64
	Rank    float64
}

// VectorResult is a single vector search result: closest first.
type VectorResult struct {
	ID       string // chunk id, string-encoded for the generic VectorStore
	Distance float32
	Score    float32
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults for a given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides K-NN semantic search over fixed-length float
// vectors. Generic over string IDs so it can be exercised independently
// of the metadata store.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates the caller's vector length does not
// match the store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
