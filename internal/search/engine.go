package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
	"github.com/Aman-CERP/localagent/internal/store"
)

// Engine runs hybrid search over one Document Store. The keyword side
// always runs; the vector side joins in only when a query embedding can
// be produced, and its failures degrade to keyword-only with a warning
// rather than failing the query.
type Engine struct {
	store    Store
	embedder QueryEmbedder // may be nil: keyword-only engine
	log      *slog.Logger
}

var _ SearchEngine = (*Engine)(nil)

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithQueryEmbedder attaches the semantic side.
func WithQueryEmbedder(e QueryEmbedder) EngineOption {
	return func(eng *Engine) { eng.embedder = e }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(eng *Engine) { eng.log = l }
}

// NewEngine builds a retriever over s.
func NewEngine(s Store, opts ...EngineOption) *Engine {
	eng := &Engine{store: s, log: slog.Default()}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// Search runs the hybrid query: keyword and vector candidates are
// fetched in parallel at twice the requested limit, fused with RRF, and
// the top hits are joined against their documents and snippeted.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, agenterrors.New(agenterrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	fetch := 2 * limit

	var (
		keyword []store.KeywordResult
		vector  []store.VectorResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		keyword, err = e.store.KeywordSearch(gctx, query, fetch)
		if err != nil {
			return fmt.Errorf("keyword search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if e.embedder == nil || !e.embedder.Available(gctx) {
			return nil
		}
		vec, err := e.embedder.Embed(gctx, query)
		if err != nil {
			e.log.Warn("query embedding failed, degrading to keyword-only", slog.Any("error", err))
			return nil
		}
		results, err := e.store.VectorSearch(gctx, vec, fetch, opts.Extension)
		if err != nil {
			e.log.Warn("vector search failed, degrading to keyword-only", slog.Any("error", err))
			return nil
		}
		vector = results
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := fuse(keyword, vector)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]*SearchResult, 0, len(ranked))
	for _, f := range ranked {
		joined, err := e.store.GetChunkWithDocument(ctx, f.chunkID)
		if err != nil {
			e.log.Warn("fused chunk disappeared before materialization",
				slog.Int64("chunk_id", f.chunkID), slog.Any("error", err))
			continue
		}
		out = append(out, &SearchResult{
			ChunkID:    joined.ID,
			DocumentID: joined.DocumentID,
			Path:       joined.Path,
			Filename:   joined.Filename,
			Extension:  joined.Extension,
			Snippet:    Snippet(joined.Content, SnippetLength),
			ChunkIndex: joined.Index,
			Score:      f.score,
			Source:     f.source(),
		})
	}
	return out, nil
}

// Snippet truncates content to roughly maxBytes on a word boundary,
// never splitting inside a UTF-8 codepoint, and appends an ellipsis
// when anything was cut.
func Snippet(content string, maxBytes int) string {
	content = strings.TrimSpace(content)
	if len(content) <= maxBytes {
		return content
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	truncated := content[:cut]

	// Back up to the last word boundary so no word is split.
	if idx := strings.LastIndexAny(truncated, " \t\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	return strings.TrimRight(truncated, " \t\n") + "…"
}
