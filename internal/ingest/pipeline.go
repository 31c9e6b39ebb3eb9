// Package ingest implements the single-file and directory ingestion
// algorithm: extracting text, chunking it, embedding it, and
// synchronizing the result into the Document Store with change
// detection.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/localagent/internal/chunk"
	"github.com/Aman-CERP/localagent/internal/embed"
	"github.com/Aman-CERP/localagent/internal/store"
)

// markerPhrase is inserted into the single synthetic chunk created for a
// cloud-placeholder file, so it remains keyword-searchable by name.
const markerPhrase = "this file is stored in the cloud and has not been downloaded"

// Result summarizes a directory-root ingestion run.
type Result struct {
	Total   int
	Indexed int
	Failed  int
}

// Pipeline wires the Document Store, chunker and embedding service
// together.
type Pipeline struct {
	store     store.MetadataStore
	chunker   chunk.Chunker
	extractor *extractorRegistry
	embedder  embed.Embedder // may be nil: embedding step is then skipped entirely

	log *slog.Logger
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithEmbedder attaches an embedding backend. Without one, chunks are
// inserted keyword-searchable only, exactly as if embedding failed.
func WithEmbedder(e embed.Embedder) Option {
	return func(p *Pipeline) { p.embedder = e }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithChunker overrides the default WindowChunker.
func WithChunker(c chunk.Chunker) Option {
	return func(p *Pipeline) { p.chunker = c }
}

// New constructs a Pipeline over the given store.
func New(s store.MetadataStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     s,
		chunker:   chunk.NewWindowChunker(),
		extractor: NewExtractorRegistry(),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SyncEmbeddingIdentity compares the active embedding backend's
// identity with what the store last saw. When it changed (different
// model or dimensionality), every chunk is marked unembedded so the
// next embedding pass rebuilds vectors lazily instead of wiping the
// index outright.
func (p *Pipeline) SyncEmbeddingIdentity(ctx context.Context) error {
	type identified interface {
		ModelName() string
		Dimensions() int
	}
	e, ok := p.embedder.(identified)
	if !ok || p.embedder == nil {
		return nil
	}
	name, dims := e.ModelName(), e.Dimensions()
	if name == "" || dims == 0 {
		return nil
	}

	storedName, storedDims, err := p.store.GetEmbeddingModelIdentity(ctx)
	if err != nil {
		return err
	}
	if storedName == name && storedDims == dims {
		return nil
	}
	if storedName != "" {
		p.log.Info("embedding backend changed, re-embedding lazily",
			slog.String("previous", storedName), slog.String("current", name))
		if err := p.store.MarkAllChunksUnembedded(ctx); err != nil {
			return err
		}
	}
	return p.store.SetEmbeddingModelIdentity(ctx, name, dims)
}

// SupportedExtensions reports which file extensions the pipeline can
// ingest (those with a registered extractor).
func (p *Pipeline) SupportedExtensions() []string {
	return p.extractor.SupportedExtensions()
}

// IngestFile runs the single-file algorithm It is a
// no-op (but not an error) when the file is unchanged since the last
// ingest.
func (p *Pipeline) IngestFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("ingest_file: %s is a directory", path)
	}

	filename := filepath.Base(path)
	extension := strings.ToLower(filepath.Ext(path))

	if placeholder, err := isCloudPlaceholder(path); err != nil {
		p.log.Warn("cloud_placeholder_check_failed", slog.String("path", path), slog.String("error", err.Error()))
	} else if placeholder {
		return p.ingestCloudPlaceholder(ctx, path, filename, extension, info.ModTime())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	hash := sha256Hex(content)

	existing, found, err := p.store.GetDocumentByPath(ctx, path)
	if err != nil {
		return fmt.Errorf("lookup existing document: %w", err)
	}
	if found && existing.Hash == hash {
		return nil // unchanged
	}

	text, err := p.extractor.Extract(extension, content)
	if err != nil || strings.TrimSpace(text) == "" {
		p.log.Warn("extract_skipped", slog.String("path", path), slog.String("extension", extension))
		return nil
	}

	docID, err := p.store.UpsertDocument(ctx, path, filename, extension, info.Size(), hash, info.ModTime())
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if err := p.store.DeleteChunksForDocument(ctx, docID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	chunks, err := p.chunker.Chunk(ctx, &chunk.FileInput{Path: path, Text: text})
	if err != nil {
		return fmt.Errorf("chunk %s: %w", path, err)
	}

	for _, c := range chunks {
		if _, err := p.store.InsertChunk(ctx, docID, c.Index, c.Content, c.TokenCount); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}

	p.embedPendingChunks(ctx)
	return nil
}

func (p *Pipeline) ingestCloudPlaceholder(ctx context.Context, path, filename, extension string, modifiedAt time.Time) error {
	hash := store.CloudPlaceholderHashPrefix + path

	existing, found, err := p.store.GetDocumentByPath(ctx, path)
	if err != nil {
		return fmt.Errorf("lookup existing document: %w", err)
	}
	if found && existing.Hash == hash {
		return nil
	}

	docID, err := p.store.UpsertDocument(ctx, path, filename, extension, 0, hash, modifiedAt)
	if err != nil {
		return fmt.Errorf("upsert placeholder document: %w", err)
	}
	if err := p.store.DeleteChunksForDocument(ctx, docID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	content := fmt.Sprintf("%s %s %s", filename, extension, markerPhrase)
	if _, err := p.store.InsertChunk(ctx, docID, 0, content, len(strings.Fields(content))); err != nil {
		return fmt.Errorf("insert placeholder chunk: %w", err)
	}
	return nil
}

// embedPendingChunks fetches unembedded chunks and embeds them in one
// batch, stopping at the first failure so partially-embedded documents
// stay keyword-searchable.
func (p *Pipeline) embedPendingChunks(ctx context.Context) {
	if p.embedder == nil || !p.embedder.Available(ctx) {
		return
	}

	chunks, err := p.store.GetUnembeddedChunks(ctx, embed.DefaultBatchSize)
	if err != nil {
		p.log.Error("get_unembedded_chunks_failed", slog.String("error", err.Error()))
		return
	}
	if len(chunks) == 0 {
		return
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.log.Warn("embed_batch_failed", slog.String("error", err.Error()))
		return
	}

	for i, c := range chunks {
		if i >= len(vectors) {
			break
		}
		if err := p.store.InsertEmbedding(ctx, c.ID, vectors[i]); err != nil {
			p.log.Warn("insert_embedding_failed", slog.Int64("chunk_id", c.ID), slog.String("error", err.Error()))
			return
		}
		if err := p.store.MarkChunkEmbedded(ctx, c.ID); err != nil {
			p.log.Warn("mark_chunk_embedded_failed", slog.Int64("chunk_id", c.ID), slog.String("error", err.Error()))
			return
		}
	}
}

// IngestDirectory walks root recursively, skipping any path segment
// starting with ".", and runs the single-file algorithm for every file
// whose extension has a registered extractor.
func (p *Pipeline) IngestDirectory(ctx context.Context, root string) (Result, error) {
	var result Result

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		if !p.supported(strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		result.Total++
		if err := p.IngestFile(ctx, path); err != nil {
			p.log.Warn("ingest_file_failed", slog.String("path", path), slog.String("error", err.Error()))
			result.Failed++
			return nil
		}
		result.Indexed++
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walk %s: %w", root, err)
	}
	return result, nil
}

// RemovePath deletes a document and all its chunks/embeddings. Used by
// the watcher on a Removed(path) event.
func (p *Pipeline) RemovePath(ctx context.Context, path string) error {
	doc, found, err := p.store.GetDocumentByPath(ctx, path)
	if err != nil {
		return fmt.Errorf("lookup document: %w", err)
	}
	if !found {
		return nil
	}
	return p.store.DeleteDocument(ctx, doc.ID)
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
