package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Aman-CERP/localagent/internal/artifacts"
	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
	"github.com/Aman-CERP/localagent/internal/llama"
)

// DefaultMaxTokens bounds one decode loop when the caller does not set
// a limit.
const DefaultMaxTokens = 1024

// LlamaBackend runs inference in-process through the shared native
// handle. Weights load once in the background; each Generate call gets
// a fresh context (clean KV cache) that is destroyed when the call
// returns.
type LlamaBackend struct {
	cache *artifacts.Cache
	log   *slog.Logger

	mu      sync.Mutex
	status  Status
	loading bool
	model   *llama.Model
	entry   Entry
	profile HardwareProfile
}

var _ Backend = (*LlamaBackend)(nil)

// NewLlamaBackend constructs the backend in the unloaded state.
// Construction is cheap; weights load on EnsureLoaded.
func NewLlamaBackend(cache *artifacts.Cache) *LlamaBackend {
	return &LlamaBackend{cache: cache, log: slog.Default(), status: StatusUnloaded}
}

// EnsureLoaded triggers a background load of modelID, collapsing
// concurrent calls onto a single in-flight load.
func (b *LlamaBackend) EnsureLoaded(modelID string) {
	b.mu.Lock()
	if b.loading || (b.status == StatusReady && b.entry.ID == modelID) {
		b.mu.Unlock()
		return
	}
	b.loading = true
	b.status = StatusLoading
	b.mu.Unlock()

	go b.load(modelID)
}

func (b *LlamaBackend) load(modelID string) {
	finish := func(status Status, entry Entry, m *llama.Model, profile HardwareProfile) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.loading = false
		b.status = status
		b.entry = entry
		b.profile = profile
		if b.model != nil && b.model != m {
			b.model.Close()
		}
		b.model = m
	}

	entry, ok := ResolveModelID(modelID)
	if !ok {
		b.log.Warn("unknown model id", slog.String("model", modelID))
		finish(StatusErrored, Entry{}, nil, HardwareProfile{})
		return
	}

	if !llama.Available() {
		finish(StatusNone, Entry{}, nil, HardwareProfile{})
		return
	}

	path, err := b.cache.Ensure(context.Background(), entry.RepoID, entry.Filename, entry.DownloadURL(), nil)
	if err != nil {
		b.log.Warn("model download failed", slog.String("model", entry.ID), slog.Any("error", err))
		finish(StatusErrored, Entry{}, nil, HardwareProfile{})
		return
	}

	profile := ComputeProfile(ProbeHardware(entry))

	m, err := llama.LoadModel(path, llama.ModelConfig{
		GPULayers: profile.GPULayers,
		UseMlock:  profile.MemoryLocked,
	})
	if err != nil {
		b.log.Warn("model load failed", slog.String("model", entry.ID), slog.Any("error", err))
		finish(StatusErrored, Entry{}, nil, HardwareProfile{})
		return
	}

	b.log.Info("model loaded",
		slog.String("model", entry.ID),
		slog.Int("gpu_layers", profile.GPULayers),
		slog.Int("context", profile.ContextSize))
	finish(StatusReady, entry, m, profile)
}

// Status returns the current load state.
func (b *LlamaBackend) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// IsLoading reports whether a load is in flight.
func (b *LlamaBackend) IsLoading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// Generate runs one inference step: template application, sampler-chain
// construction, prefill, token-by-token decode, and tool-call parsing.
func (b *LlamaBackend) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	b.mu.Lock()
	if b.status != StatusReady || b.model == nil {
		status := b.status
		b.mu.Unlock()
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeModelNotFound,
			fmt.Sprintf("model %q is not loaded (status=%s)", req.ModelID, status), nil)
	}
	m := b.model
	profile := b.profile
	b.mu.Unlock()

	tmpl, err := ApplyTemplate(m, req.Messages, req.Tools)
	if err != nil {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeInternal, "template application failed", err)
	}

	sampler, fellBack, err := b.buildSampler(m, req, tmpl)
	if err != nil {
		return GenerateResult{}, err
	}
	defer sampler.Close()

	tokens, err := m.Tokenize(tmpl.Prompt, true, true)
	if err != nil {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeTokenization, "prompt tokenization failed", err)
	}

	ctxSize := req.ContextSize
	if ctxSize <= 0 {
		ctxSize = profile.ContextSize
	}
	if len(tokens) >= ctxSize {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeContextOverflow,
			fmt.Sprintf("Prompt too long: %d tokens with a %d-token context window", len(tokens), ctxSize), nil)
	}

	ictx, err := m.NewContext(llama.ContextConfig{
		NCtx:         ctxSize,
		NBatch:       profile.BatchSize,
		Threads:      profile.GenerationThreads,
		ThreadsBatch: profile.PrefillThreads,
		KVCacheType:  kvCacheType(profile.KVCacheType),
	})
	if err != nil {
		return GenerateResult{}, agenterrors.New(agenterrors.ErrCodeDecodeFailed, "context creation failed", err)
	}
	defer ictx.Close()

	if err := b.prefill(ctx, ictx, tokens, profile.BatchSize); err != nil {
		return GenerateResult{}, err
	}

	raw, err := b.decodeLoop(ctx, m, ictx, sampler, req, tmpl, len(tokens), ctxSize)
	if err != nil {
		return GenerateResult{}, err
	}

	if !tmpl.ParseToolCalls {
		return GenerateResult{Content: strings.TrimSpace(raw), GrammarFellBack: fellBack}, nil
	}

	content, calls, err := ParseOutput(raw)
	if err != nil {
		// Unparseable tool syntax: surface the raw text instead of
		// failing the run, so the model can be corrected next turn.
		b.log.Warn("tool call parse failed, returning raw content", slog.Any("error", err))
		return GenerateResult{Content: strings.TrimSpace(raw), GrammarFellBack: fellBack}, nil
	}
	return GenerateResult{Content: content, ToolCalls: calls, GrammarFellBack: fellBack}, nil
}

// buildSampler assembles temperature -> top-p -> seeded sample ->
// optional grammar. A grammar that fails to build degrades to an
// unconstrained chain with a warning rather than failing the call.
func (b *LlamaBackend) buildSampler(m *llama.Model, req GenerateRequest, tmpl TemplateResult) (*llama.Sampler, bool, error) {
	cfg := llama.SamplerConfig{
		Temperature: float32(req.Temperature),
		TopP:        0.9,
		MinKeep:     1,
		Seed:        uint32(req.Seed),
	}
	if req.TopP > 0 {
		cfg.TopP = float32(req.TopP)
	}

	if tmpl.Grammar != "" {
		withGrammar := cfg
		withGrammar.Grammar = tmpl.Grammar
		withGrammar.GrammarLazy = tmpl.GrammarIsLazy
		withGrammar.TriggerWords = tmpl.GrammarTriggerWords
		withGrammar.TriggerTokens = tmpl.GrammarTriggerTokens

		sampler, err := m.NewSampler(withGrammar)
		if err == nil {
			return sampler, false, nil
		}
		b.log.Warn("grammar sampler failed to build, sampling unconstrained", slog.Any("error", err))
	}

	sampler, err := m.NewSampler(cfg)
	if err != nil {
		return nil, false, agenterrors.New(agenterrors.ErrCodeDecodeFailed, "sampler chain construction failed", err)
	}
	return sampler, tmpl.Grammar != "", nil
}

// prefill feeds the prompt in nBatch-sized slices, requesting logits
// only for the very last token so sampling can start.
func (b *LlamaBackend) prefill(ctx context.Context, ictx *llama.Context, tokens []int32, nBatch int) error {
	if nBatch <= 0 {
		nBatch = 64
	}
	for start := 0; start < len(tokens); start += nBatch {
		if ctx.Err() != nil {
			return agenterrors.New(agenterrors.ErrCodeDecodeFailed, "generation cancelled", ctx.Err())
		}
		end := start + nBatch
		if end > len(tokens) {
			end = len(tokens)
		}
		last := end == len(tokens)
		if err := ictx.Decode(tokens[start:end], start, 0, last); err != nil {
			return agenterrors.New(agenterrors.ErrCodeDecodeFailed, "prompt prefill failed", err)
		}
	}
	return nil
}

// decodeLoop samples one token at a time until end-of-generation, a
// stop string, the token budget, or cancellation.
func (b *LlamaBackend) decodeLoop(ctx context.Context, m *llama.Model, ictx *llama.Context, sampler *llama.Sampler, req GenerateRequest, tmpl TemplateResult, promptLen, ctxSize int) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if room := ctxSize - promptLen - 1; maxTokens > room {
		maxTokens = room
	}

	decoder := &UTF8StreamDecoder{}
	var out strings.Builder
	pos := promptLen

	for generated := 0; generated < maxTokens; generated++ {
		if ctx.Err() != nil {
			return "", agenterrors.New(agenterrors.ErrCodeDecodeFailed, "generation cancelled", ctx.Err())
		}

		token := sampler.Sample(ictx, -1)
		sampler.Accept(token)
		if m.IsEOG(token) {
			break
		}

		if piece := decoder.Push(m.TokenToPiece(token)); piece != "" {
			out.WriteString(piece)
			if req.OnTextDelta != nil {
				req.OnTextDelta(piece)
			}
		}

		if stop, ok := endsWithAny(out.String(), tmpl.AdditionalStops); ok {
			s := out.String()
			return s[:len(s)-len(stop)], nil
		}

		if err := ictx.Decode([]int32{token}, pos, 0, true); err != nil {
			return "", agenterrors.New(agenterrors.ErrCodeDecodeFailed, "token decode failed", err)
		}
		pos++
	}

	if rest := decoder.Flush(); rest != "" {
		out.WriteString(rest)
	}
	return out.String(), nil
}

func endsWithAny(s string, stops []string) (string, bool) {
	for _, stop := range stops {
		if stop != "" && strings.HasSuffix(s, stop) {
			return stop, true
		}
	}
	return "", false
}

func kvCacheType(t KVCacheType) int {
	switch t {
	case KVCache4Bit:
		return llama.TypeQ4_0
	default:
		return llama.TypeQ8_0
	}
}
