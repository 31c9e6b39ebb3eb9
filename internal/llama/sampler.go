package llama

import "fmt"

// samplerChainParams mirrors llama_sampler_chain_params.
type samplerChainParams struct {
	noPerf byte
}

// SamplerConfig describes the sampler chain: temperature, then top-p,
// then a seeded categorical sample, then an optional grammar constraint.
// A lazy grammar activates only once a trigger word or trigger token
// appears in the output; a strict grammar is enforced from the first
// token.
type SamplerConfig struct {
	Temperature float32
	TopP        float32
	MinKeep     int
	Seed        uint32

	Grammar       string
	GrammarRoot   string
	GrammarLazy   bool
	TriggerWords  []string
	TriggerTokens []int32
}

// Sampler is a built sampler chain.
type Sampler struct {
	ptr uintptr
}

// NewSampler builds the chain against the model's vocabulary. A grammar
// that fails to build returns an error so the caller can fall back to
// an unconstrained chain.
func (m *Model) NewSampler(cfg SamplerConfig) (*Sampler, error) {
	params := fns.samplerChainDefaultParams()
	chain := fns.samplerChainInit(params)
	if chain == 0 {
		return nil, fmt.Errorf("failed to create sampler chain")
	}

	fns.samplerChainAdd(chain, fns.samplerInitTemp(cfg.Temperature))

	minKeep := cfg.MinKeep
	if minKeep < 1 {
		minKeep = 1
	}
	fns.samplerChainAdd(chain, fns.samplerInitTopP(cfg.TopP, uint64(minKeep)))

	fns.samplerChainAdd(chain, fns.samplerInitDist(cfg.Seed))

	if cfg.Grammar != "" {
		root := cfg.GrammarRoot
		if root == "" {
			root = "root"
		}
		var g uintptr
		if cfg.GrammarLazy {
			words, pins := cStringArray(cfg.TriggerWords)
			var wordsPtr **byte
			if len(words) > 0 {
				wordsPtr = &words[0]
			}
			var tokensPtr *int32
			if len(cfg.TriggerTokens) > 0 {
				tokensPtr = &cfg.TriggerTokens[0]
			}
			g = fns.samplerInitGrammarLazy(m.vocab, cfg.Grammar, root,
				wordsPtr, uint64(len(words)), tokensPtr, uint64(len(cfg.TriggerTokens)))
			_ = pins
		} else {
			g = fns.samplerInitGrammar(m.vocab, cfg.Grammar, root)
		}
		if g == 0 {
			fns.samplerFree(chain)
			return nil, fmt.Errorf("grammar failed to build")
		}
		fns.samplerChainAdd(chain, g)
	}

	return &Sampler{ptr: chain}, nil
}

// Sample draws the next token from the logits at output index idx.
func (s *Sampler) Sample(ctx *Context, idx int32) int32 {
	return fns.samplerSample(s.ptr, ctx.ptr, idx)
}

// Accept feeds the chosen token back into the chain so stateful
// sub-samplers (the grammar in particular) advance.
func (s *Sampler) Accept(token int32) {
	fns.samplerAccept(s.ptr, token)
}

// Close frees the chain and every sub-sampler it owns.
func (s *Sampler) Close() {
	if s.ptr != 0 {
		fns.samplerFree(s.ptr)
		s.ptr = 0
	}
}

// cStringArray converts Go strings to NUL-terminated byte arrays plus
// a pointer table, returning both so the backing memory stays reachable
// for the duration of the call.
func cStringArray(in []string) ([]*byte, [][]byte) {
	if len(in) == 0 {
		return nil, nil
	}
	ptrs := make([]*byte, len(in))
	pins := make([][]byte, len(in))
	for i, s := range in {
		b := append([]byte(s), 0)
		pins[i] = b
		ptrs[i] = &b[0]
	}
	return ptrs, pins
}
