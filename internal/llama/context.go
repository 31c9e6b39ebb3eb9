package llama

import (
	"fmt"
	"unsafe"
)

// batch mirrors llama_batch. All pointers reference Go-allocated slices
// that stay alive for the duration of the decode call.
type batch struct {
	nTokens int32
	token   *int32
	embd    *float32
	pos     *int32
	nSeqID  *int32
	seqID   **int32
	logits  *int8
}

// Context is one inference arena (KV cache included). Contexts are
// created per call and destroyed when the call returns; they are not
// pooled, so every call starts from a clean cache.
type Context struct {
	ptr   uintptr
	model *Model
}

// ContextConfig sizes a new context.
type ContextConfig struct {
	NCtx          int
	NBatch        int
	Threads       int
	ThreadsBatch  int
	KVCacheType   int // TypeQ8_0 / TypeQ4_0 / TypeF16
	Embeddings    bool
	PoolingType   int
}

// NewContext allocates an inference context over the model.
func (m *Model) NewContext(cfg ContextConfig) (*Context, error) {
	params := fns.contextDefaultParams()
	if cfg.NCtx > 0 {
		params.nCtx = uint32(cfg.NCtx)
	}
	if cfg.NBatch > 0 {
		params.nBatch = uint32(cfg.NBatch)
		params.nUbatch = uint32(cfg.NBatch)
	}
	if cfg.Threads > 0 {
		params.nThreads = int32(cfg.Threads)
	}
	if cfg.ThreadsBatch > 0 {
		params.nThreadsBatch = int32(cfg.ThreadsBatch)
	}
	if cfg.KVCacheType != 0 {
		params.typeK = int32(cfg.KVCacheType)
		params.typeV = int32(cfg.KVCacheType)
	}
	if cfg.Embeddings {
		params.embeddings = 1
		params.poolingType = int32(cfg.PoolingType)
	}

	ptr := fns.initFromModel(m.ptr, params)
	if ptr == 0 {
		return nil, fmt.Errorf("failed to create inference context (n_ctx=%d)", cfg.NCtx)
	}
	return &Context{ptr: ptr, model: m}, nil
}

// Close frees the context and its KV cache.
func (c *Context) Close() {
	if c.ptr != 0 {
		fns.contextFree(c.ptr)
		c.ptr = 0
	}
}

// Decode feeds tokens at the given positions for one sequence.
// logitsForLast requests logits only for the final token, which is all
// sampling needs.
func (c *Context) Decode(tokens []int32, startPos int, seq int32, logitsForLast bool) error {
	n := len(tokens)
	if n == 0 {
		return nil
	}

	pos := make([]int32, n)
	nSeq := make([]int32, n)
	seqIDs := make([]*int32, n)
	logits := make([]int8, n)
	seqVal := seq
	for i := 0; i < n; i++ {
		pos[i] = int32(startPos + i)
		nSeq[i] = 1
		seqIDs[i] = &seqVal
	}
	if logitsForLast {
		logits[n-1] = 1
	} else {
		for i := range logits {
			logits[i] = 1
		}
	}

	b := batch{
		nTokens: int32(n),
		token:   &tokens[0],
		pos:     &pos[0],
		nSeqID:  &nSeq[0],
		seqID:   &seqIDs[0],
		logits:  &logits[0],
	}
	if rc := fns.decode(c.ptr, b); rc != 0 {
		return fmt.Errorf("decode failed with status %d", rc)
	}
	return nil
}

// EmbeddingsSeq returns the pooled embedding for a sequence, copied out
// of the context's buffer.
func (c *Context) EmbeddingsSeq(seq int32, dims int) []float32 {
	p := fns.getEmbeddingsSeq(c.ptr, seq)
	if p == nil {
		return nil
	}
	out := make([]float32, dims)
	src := unsafe.Slice(p, dims)
	copy(out, src)
	return out
}

// EmbeddingsIth returns the embedding at output index i, for contexts
// running without pooling.
func (c *Context) EmbeddingsIth(i int32, dims int) []float32 {
	p := fns.getEmbeddingsIth(c.ptr, i)
	if p == nil {
		return nil
	}
	out := make([]float32, dims)
	copy(out, unsafe.Slice(p, dims))
	return out
}
