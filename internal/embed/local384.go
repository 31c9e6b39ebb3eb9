package embed

import (
	"context"
	"fmt"
	"sync"

	"github.com/Aman-CERP/localagent/internal/artifacts"
	"github.com/Aman-CERP/localagent/internal/llama"
)

// Local in-process embedding model: a small sentence-transformer
// packaged as GGUF, mean-pooled and L2-normalized to 384 dimensions.
const (
	LocalModelName = "all-MiniLM-L6-v2"
	LocalModelRepo = "leliuga/all-MiniLM-L6-v2-GGUF"
	LocalModelFile = "all-MiniLM-L6-v2.Q8_0.gguf"
	LocalModelURL  = "https://huggingface.co/leliuga/all-MiniLM-L6-v2-GGUF/resolve/main/all-MiniLM-L6-v2.Q8_0.gguf"
)

// LocalEmbedder runs the sentence-embedding model in-process through
// the shared native backend handle. Construction loads the weights and
// is therefore slow; the Service wraps it behind a background load.
type LocalEmbedder struct {
	model *llama.Model

	mu     sync.Mutex
	closed bool
}

var _ Embedder = (*LocalEmbedder)(nil)

// NewLocalEmbedder ensures the weights are cached, then loads them.
// Fails fast when the native library is unavailable so the caller can
// fall through to the next backend.
func NewLocalEmbedder(ctx context.Context, cache *artifacts.Cache) (*LocalEmbedder, error) {
	if !llama.Available() {
		return nil, fmt.Errorf("local embedding backend: %w", llama.ErrUnavailable)
	}

	path, err := cache.Ensure(ctx, LocalModelRepo, LocalModelFile, LocalModelURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ensure embedding model: %w", err)
	}

	model, err := llama.LoadModel(path, llama.ModelConfig{})
	if err != nil {
		return nil, fmt.Errorf("load embedding model: %w", err)
	}
	return &LocalEmbedder{model: model}, nil
}

// Embed generates one embedding.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch runs one forward pass per sub-batch: each text is
// tokenized, truncated to MaxInputTokens, fed as its own sequence, and
// read back mean-pooled. Vectors are L2-normalized before returning.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += SubBatchSize {
		end := start + SubBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.forward(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *LocalEmbedder) forward(ctx context.Context, texts []string) ([][]float32, error) {
	tokenized := make([][]int32, len(texts))
	longest := 0
	for i, t := range texts {
		toks, err := e.model.Tokenize(t, true, false)
		if err != nil {
			return nil, fmt.Errorf("tokenize text %d: %w", i, err)
		}
		if len(toks) > MaxInputTokens {
			toks = toks[:MaxInputTokens]
		}
		if len(toks) == 0 {
			toks = []int32{0}
		}
		tokenized[i] = toks
		if len(toks) > longest {
			longest = len(toks)
		}
	}

	ictx, err := e.model.NewContext(llama.ContextConfig{
		NCtx:        longest * len(texts),
		NBatch:      longest * len(texts),
		Embeddings:  true,
		PoolingType: llama.PoolingMean,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding context: %w", err)
	}
	defer ictx.Close()

	for seq, toks := range tokenized {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := ictx.Decode(toks, 0, int32(seq), false); err != nil {
			return nil, fmt.Errorf("decode sequence %d: %w", seq, err)
		}
	}

	dims := e.Dimensions()
	out := make([][]float32, len(texts))
	for seq := range tokenized {
		v := ictx.EmbeddingsSeq(int32(seq), dims)
		if v == nil {
			return nil, fmt.Errorf("no embedding produced for sequence %d", seq)
		}
		out[seq] = normalizeVector(v)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *LocalEmbedder) Dimensions() int {
	if e.model != nil {
		if d := e.model.NEmbd(); d > 0 {
			return d
		}
	}
	return LocalDimensions
}

// ModelName returns the model identifier.
func (e *LocalEmbedder) ModelName() string { return LocalModelName }

// Available reports readiness; the model is resident once constructed.
func (e *LocalEmbedder) Available(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// Close frees the model weights.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.model.Close()
	return nil
}
