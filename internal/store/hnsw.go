// HNSW-backed implementation of the VectorStore interface: the K-NN
// half of the Document Store. Chunk embeddings live in an in-memory
// navigable-small-world graph, snapshotted to a file next to the SQLite
// database; chunk ids are the string keys the rest of the system
// addresses vectors by.
package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore maps chunk ids to embedding vectors over a pure-Go HNSW
// graph (no cgo). The graph itself is keyed by opaque uint64s; the two
// maps translate between those keys and the chunk ids callers use.
//
// Deletion is lazy: removing a chunk drops its id from the maps while
// the node stays in the graph as an orphan, invisible to results. The
// underlying graph misbehaves when its last node is removed outright,
// and orphans cost only memory until the next full re-embed rebuilds
// the snapshot.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	chunkKeys map[string]uint64 // chunk id -> graph key
	keyChunks map[uint64]string // graph key -> chunk id
	nextKey   uint64

	closed bool
}

// hnswMetadata is the gob sidecar persisted next to the graph snapshot:
// the chunk-id mapping plus the configuration the snapshot was built
// with, so a reopen can detect dimension changes before importing.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore creates an empty vector store for the configured
// dimension and metric.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25 // level generation factor (fixed, not derived from M)

	return &HNSWStore{
		graph:     graph,
		config:    cfg,
		chunkKeys: make(map[string]uint64),
		keyChunks: make(map[uint64]string),
	}, nil
}

// Add inserts chunk embeddings. Re-adding an existing chunk id
// replaces its vector: the old graph node is orphaned (lazy deletion)
// and a fresh node takes over the id.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{
				Expected: s.config.Dimensions,
				Got:      len(v),
			}
		}
	}

	for i, id := range ids {
		if oldKey, exists := s.chunkKeys[id]; exists {
			// Re-embed of an existing chunk: orphan the old node.
			delete(s.keyChunks, oldKey)
			delete(s.chunkKeys, id)
		}

		key := s.nextKey
		s.nextKey++

		// Cosine distance assumes unit vectors; normalize a copy so the
		// caller's slice is untouched.
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.chunkKeys[id] = key
		s.keyChunks[key] = id
	}

	return nil
}

// Search finds the k nearest chunks to the query vector, closest first.
// Orphaned nodes left behind by lazy deletion are filtered out here.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	nodes := s.graph.Search(normalizedQuery, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, live := s.keyChunks[node.Key]
		if !live {
			continue // orphan from a lazy deletion
		}

		distance := s.graph.Distance(normalizedQuery, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}

	return results, nil
}

// Delete removes chunks by id. Lazy: the ids vanish from results
// immediately, the graph nodes linger as orphans until the snapshot is
// rebuilt.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		if key, exists := s.chunkKeys[id]; exists {
			delete(s.keyChunks, key)
			delete(s.chunkKeys, id)
		}
	}

	return nil
}

// AllIDs returns every live chunk id. Used for consistency checks
// against the metadata store.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	ids := make([]string, 0, len(s.chunkKeys))
	for id := range s.chunkKeys {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether a chunk id has a live vector.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	_, exists := s.chunkKeys[id]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	return len(s.chunkKeys)
}

// HNSWStats accounts for lazy deletion: how many graph nodes are live
// chunk vectors versus orphans awaiting a snapshot rebuild.
type HNSWStats struct {
	ValidIDs   int // live chunk-id mappings
	GraphNodes int // total nodes in the graph, orphans included
	Orphans    int // GraphNodes - ValidIDs
}

// Stats reports the live/orphan split.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return HNSWStats{}
	}

	live := len(s.chunkKeys)
	nodes := s.graph.Len()
	return HNSWStats{
		ValidIDs:   live,
		GraphNodes: nodes,
		Orphans:    nodes - live,
	}
}

// Save persists the graph snapshot and its metadata sidecar, each
// written atomically (temp file + rename).
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize snapshot file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("save metadata sidecar: %w", err)
	}
	return nil
}

// saveMetadata writes the chunk-id mapping sidecar.
func (s *HNSWStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.chunkKeys,
		NextKey: s.nextKey,
		Config:  s.config,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp metadata file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load restores a snapshot: metadata sidecar first (it carries the
// configuration), then the graph.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata sidecar: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	// The graph importer reads byte-at-a-time; buffer the file.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

// loadMetadata restores the chunk-id mapping and rebuilds the reverse
// index.
func (s *HNSWStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.chunkKeys = meta.IDMap
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.keyChunks = make(map[uint64]string, len(meta.IDMap))
	for id, key := range s.chunkKeys {
		s.keyChunks[key] = id
	}
	return nil
}

// Close releases the graph. The snapshot on disk, if any, is untouched.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadHNSWStoreDimensions peeks at a snapshot's metadata sidecar and
// returns the dimension it was built with, or 0 when no snapshot
// exists yet. Callers use this before opening the store to detect an
// embedding-backend change that requires a rebuild.
func ReadHNSWStoreDimensions(vectorPath string) (int, error) {
	file, err := os.Open(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open metadata sidecar: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata sidecar", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode metadata sidecar: %w", err)
	}
	return meta.Config.Dimensions, nil
}

var _ VectorStore = (*HNSWStore)(nil)

// normalizeVectorInPlace scales a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance to a 0-1 similarity score:
// cosine distance spans 0-2, L2 spans 0-infinity.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
