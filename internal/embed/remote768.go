package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Remote HTTP fallback: a locally-running external embedding service
// speaking a one-request-one-response JSON protocol. Ollama's
// /api/embeddings endpoint is the concrete wire shape.
const (
	DefaultRemoteHost  = "http://localhost:11434"
	DefaultRemoteModel = "nomic-embed-text"

	remoteHealthTimeout  = 5 * time.Second
	remoteRequestTimeout = 120 * time.Second
)

// RemoteConfig configures the HTTP backend.
type RemoteConfig struct {
	Host  string
	Model string
}

// RemoteEmbedder talks to the external embedding service. Requests are
// sequential per text; the service owns its own batching.
type RemoteEmbedder struct {
	cfg    RemoteConfig
	client *http.Client

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*RemoteEmbedder)(nil)

type remoteEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type remoteEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewRemoteEmbedder verifies the service answers before returning, so
// the caller can fall through to backend None when nothing is
// listening.
func NewRemoteEmbedder(ctx context.Context, cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultRemoteHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRemoteModel
	}

	// Per-request timeouts come from context deadlines, not the client,
	// so a slow first (model-loading) request can get a longer budget.
	e := &RemoteEmbedder{cfg: cfg, client: &http.Client{}, dims: RemoteDimensions}

	checkCtx, cancel := context.WithTimeout(ctx, remoteHealthTimeout)
	defer cancel()
	if err := e.healthCheck(checkCtx); err != nil {
		return nil, fmt.Errorf("remote embedding service unavailable: %w", err)
	}
	return e, nil
}

func (e *RemoteEmbedder) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Embed requests one embedding.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	reqCtx, cancel := context.WithTimeout(ctx, remoteRequestTimeout)
	defer cancel()

	payload, err := json.Marshal(remoteEmbedRequest{Model: e.cfg.Model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.cfg.Host+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding request failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("service returned an empty embedding")
	}

	vec := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vec[i] = float32(v)
	}

	e.mu.Lock()
	e.dims = len(vec)
	e.mu.Unlock()

	return normalizeVector(vec), nil
}

// EmbedBatch issues sequential per-text requests; the protocol has no
// batch endpoint. Transient failures retry with backoff.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		var vec []float32
		err := withRetry(ctx, DefaultRetryConfig(), func() error {
			var embedErr error
			vec, embedErr = e.Embed(ctx, text)
			return embedErr
		})
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension, refined after the first
// successful request.
func (e *RemoteEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *RemoteEmbedder) ModelName() string { return e.cfg.Model }

// Available re-checks the service.
func (e *RemoteEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, remoteHealthTimeout)
	defer cancel()
	return e.healthCheck(checkCtx) == nil
}

// Close releases idle connections.
func (e *RemoteEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
