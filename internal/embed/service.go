package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/localagent/internal/artifacts"
	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
)

// Backend identifies which embedding backend is active.
type Backend string

const (
	BackendNone   Backend = "none"
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// State is the deferred-load state machine:
// unloaded -> loading -> {ready | errored | none}.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateErrored  State = "errored"
	StateNone     State = "none"
)

// ServiceConfig configures the tiered backend chain.
type ServiceConfig struct {
	ArtifactsDir string
	Remote       RemoteConfig

	// DisableLocal / DisableRemote skip a tier, for configs that pin
	// one backend.
	DisableLocal  bool
	DisableRemote bool
}

// Service is the Embedding Service: construction is cheap and never
// blocks; the first Activate kicks off a background load that tries the
// in-process backend, then the HTTP fallback, and settles on None when
// both are unavailable (keyword search still works without vectors).
// Concurrent Activate calls while loading collapse to a no-op.
type Service struct {
	cfg   ServiceConfig
	cache *artifacts.Cache
	log   *slog.Logger

	mu       sync.Mutex
	state    State
	backend  Backend
	embedder Embedder
	loaded   chan struct{} // closed when the load settles
}

// NewService constructs the service in the unloaded state.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		cfg:   cfg,
		cache: artifacts.NewCache(cfg.ArtifactsDir),
		log:   slog.Default(),
		state: StateUnloaded,
	}
}

// Activate starts the background load if one has not run yet. It
// returns immediately; callers poll Status or wait on WaitReady.
func (s *Service) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnloaded {
		return
	}
	s.state = StateLoading
	s.loaded = make(chan struct{})
	go s.load()
}

func (s *Service) load() {
	ctx := context.Background()

	var embedder Embedder
	backend := BackendNone

	if !s.cfg.DisableLocal {
		local, err := NewLocalEmbedder(ctx, s.cache)
		if err == nil {
			embedder, backend = local, BackendLocal
		} else {
			s.log.Info("local embedding backend unavailable", slog.Any("error", err))
		}
	}

	if embedder == nil && !s.cfg.DisableRemote {
		remote, err := NewRemoteEmbedder(ctx, s.cfg.Remote)
		if err == nil {
			embedder, backend = remote, BackendRemote
		} else {
			s.log.Info("remote embedding backend unavailable", slog.Any("error", err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if embedder != nil {
		s.embedder = NewCachedEmbedderWithDefaults(embedder)
		s.backend = backend
		s.state = StateReady
	} else {
		s.backend = BackendNone
		s.state = StateNone
	}
	close(s.loaded)
}

// Backend reports which backend is active (None until ready).
func (s *Service) Backend() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return BackendNone
	}
	return s.backend
}

// IsLoading reports whether a load is in flight.
func (s *Service) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateLoading
}

// Status returns the load state for UI display.
func (s *Service) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WaitReady blocks until the load settles or ctx expires. It triggers
// Activate itself so callers need not sequence the two.
func (s *Service) WaitReady(ctx context.Context) error {
	s.Activate()
	s.mu.Lock()
	ch := s.loaded
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ready returns the active embedder or an error when none is loaded.
func (s *Service) ready() (Embedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.embedder == nil {
		return nil, agenterrors.New(agenterrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("no embedding backend available (state=%s)", s.state), nil)
	}
	return s.embedder, nil
}

// Embed produces one vector.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := s.ready()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

// EmbedBatch produces vectors for texts. More than two texts are split
// into sub-batches of at most SubBatchSize; one or two fall through to
// sequential single-text calls; empty input returns empty output
// without touching the backend.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	e, err := s.ready()
	if err != nil {
		return nil, err
	}

	if len(texts) <= 2 {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			vec, err := e.Embed(ctx, t)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += SubBatchSize {
		end := start + SubBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Dimensions returns the active backend's vector width, or 0 when no
// backend is loaded yet.
func (s *Service) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder == nil {
		return 0
	}
	return s.embedder.Dimensions()
}

// ModelName identifies the active embedding model, or "" when none.
func (s *Service) ModelName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder == nil {
		return ""
	}
	return s.embedder.ModelName()
}

// Available reports whether embeddings can be produced right now.
func (s *Service) Available(ctx context.Context) bool {
	e, err := s.ready()
	if err != nil {
		return false
	}
	return e.Available(ctx)
}

// Close shuts the active backend down.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder != nil {
		err := s.embedder.Close()
		s.embedder = nil
		s.state = StateUnloaded
		return err
	}
	return nil
}

var _ Embedder = (*Service)(nil)
