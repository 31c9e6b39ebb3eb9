package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// DatabaseFilename is the single metadata database file kept under the
// app's data directory.
const DatabaseFilename = "localagent.db"

// VectorIndexFilename is the HNSW snapshot written next to the database.
const VectorIndexFilename = "vectors.hnsw"

// Store composes the SQLite metadata store with the HNSW vector index
// into the full document-store surface. The vector index is optional:
// when it cannot be initialized the store records vec_enabled=false and
// every vector operation degrades — searches return empty, inserts
// return ErrVectorIndexDisabled — while keyword search keeps working.
type Store struct {
	*SQLiteStore

	vec        VectorStore
	vecPath    string
	vecEnabled bool

	log *slog.Logger
}

var _ MetadataStore = (*Store)(nil)

// Open creates (or reopens) the store under dir. dimensions configures
// the vector index; pass 0 to skip vector-index initialization entirely
// (keyword-only mode).
func Open(dir string, dimensions int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}

	meta, err := NewSQLiteStore(filepath.Join(dir, DatabaseFilename))
	if err != nil {
		return nil, err
	}

	s := &Store{
		SQLiteStore: meta,
		vecPath:     filepath.Join(dir, VectorIndexFilename),
		log:         slog.Default(),
	}

	if dimensions > 0 {
		s.initVectorIndex(dimensions)
	}
	return s, nil
}

// initVectorIndex tries to bring up the K-NN index, loading any existing
// snapshot. Failure is not fatal: the store continues keyword-only.
func (s *Store) initVectorIndex(dimensions int) {
	if stored, err := ReadHNSWStoreDimensions(s.vecPath); err == nil && stored > 0 && stored != dimensions {
		s.log.Warn("vector index dimension changed, rebuilding",
			slog.Int("stored", stored), slog.Int("requested", dimensions))
		_ = os.Remove(s.vecPath)
		_ = os.Remove(s.vecPath + ".meta")
	}

	vec, err := NewHNSWStore(DefaultVectorStoreConfig(dimensions))
	if err != nil {
		s.log.Warn("vector index unavailable, continuing keyword-only", slog.Any("error", err))
		return
	}
	if _, statErr := os.Stat(s.vecPath); statErr == nil {
		if err := vec.Load(s.vecPath); err != nil {
			s.log.Warn("vector index snapshot unreadable, starting empty", slog.Any("error", err))
		}
	}
	s.vec = vec
	s.vecEnabled = true
}

// VectorEnabled reports whether the K-NN index initialized successfully.
func (s *Store) VectorEnabled() bool {
	return s.vecEnabled
}

// InsertEmbedding stores a chunk's vector in the K-NN index. The caller
// must follow up with MarkChunkEmbedded once the insert succeeds.
func (s *Store) InsertEmbedding(ctx context.Context, chunkID int64, vector []float32) error {
	if !s.vecEnabled {
		return ErrVectorIndexDisabled
	}
	return s.vec.Add(ctx, []string{chunkIDKey(chunkID)}, [][]float32{vector})
}

// VectorSearch runs K-NN over the vector index, closest first. The
// optional extension filter is applied inside the store: candidates are
// over-fetched and narrowed by their document's extension. With the
// index disabled the result is empty, never an error.
func (s *Store) VectorSearch(ctx context.Context, queryVector []float32, limit int, extensionFilter string) ([]VectorResult, error) {
	if !s.vecEnabled || limit <= 0 {
		return nil, nil
	}

	k := limit
	if extensionFilter != "" {
		k = limit * 4
	}
	raw, err := s.vec.Search(ctx, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]VectorResult, 0, limit)
	for _, r := range raw {
		if r == nil {
			continue
		}
		if extensionFilter != "" {
			chunkID, err := strconv.ParseInt(r.ID, 10, 64)
			if err != nil {
				continue
			}
			joined, err := s.GetChunkWithDocument(ctx, chunkID)
			if err != nil || joined.Extension != extensionFilter {
				continue
			}
		}
		out = append(out, *r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// DeleteEmbeddingsForDocument clears embedding flags in the metadata
// store and removes the matching vectors from the K-NN index.
func (s *Store) DeleteEmbeddingsForDocument(ctx context.Context, documentID int64) error {
	ids, err := s.chunkIDsForDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if s.vecEnabled && len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = chunkIDKey(id)
		}
		if err := s.vec.Delete(ctx, keys); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
	}
	return s.SQLiteStore.DeleteEmbeddingsForDocument(ctx, documentID)
}

// DeleteChunksForDocument removes chunks, their keyword-index rows, and
// their vectors together, keeping the cascade invariant intact.
func (s *Store) DeleteChunksForDocument(ctx context.Context, documentID int64) error {
	if err := s.DeleteEmbeddingsForDocument(ctx, documentID); err != nil {
		return err
	}
	return s.SQLiteStore.DeleteChunksForDocument(ctx, documentID)
}

// DeleteDocument removes the document row along with every chunk,
// keyword-index row, and vector that belongs to it.
func (s *Store) DeleteDocument(ctx context.Context, documentID int64) error {
	if err := s.DeleteChunksForDocument(ctx, documentID); err != nil {
		return err
	}
	return s.SQLiteStore.DeleteDocument(ctx, documentID)
}

func (s *Store) chunkIDsForDocument(ctx context.Context, documentID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Flush persists the vector index snapshot to disk. The SQLite side is
// durable on its own through WAL.
func (s *Store) Flush() error {
	if !s.vecEnabled {
		return nil
	}
	return s.vec.Save(s.vecPath)
}

// Close flushes the vector snapshot and closes both halves.
func (s *Store) Close() error {
	if s.vecEnabled {
		if err := s.vec.Save(s.vecPath); err != nil {
			s.log.Warn("failed to save vector index on close", slog.Any("error", err))
		}
		_ = s.vec.Close()
	}
	return s.SQLiteStore.Close()
}

func chunkIDKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
