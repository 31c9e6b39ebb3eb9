package llama

import (
	"fmt"
	"strings"
	"unsafe"
)

// modelParams mirrors the llama_model_params ABI fields this package
// sets. Fields not exposed here keep the library defaults.
type modelParams struct {
	devices             uintptr
	tensorBuftOverrides uintptr
	nGpuLayers          int32
	splitMode           int32
	mainGpu             int32
	tensorSplit         uintptr
	progressCallback    uintptr
	progressUserData    uintptr
	kvOverrides         uintptr
	vocabOnly           byte
	useMmap             byte
	useMlock            byte
	checkTensors        byte
}

// contextParams mirrors the llama_context_params ABI fields this
// package sets.
type contextParams struct {
	nCtx              uint32
	nBatch            uint32
	nUbatch           uint32
	nSeqMax           uint32
	nThreads          int32
	nThreadsBatch     int32
	ropeScalingType   int32
	poolingType       int32
	attentionType     int32
	flashAttnType     int32
	ropeFreqBase      float32
	ropeFreqScale     float32
	yarnExtFactor     float32
	yarnAttnFactor    float32
	yarnBetaFast      float32
	yarnBetaSlow      float32
	yarnOrigCtx       uint32
	defragThold       float32
	cbEval            uintptr
	cbEvalUserData    uintptr
	typeK             int32
	typeV             int32
	abortCallback     uintptr
	abortCallbackData uintptr
	embeddings        byte
	offloadKqv        byte
	noPerf            byte
	opOffload         byte
	swaFull           byte
	kvUnified         byte
}

// GGML element types for the KV cache.
const (
	TypeF16  = 1
	TypeQ8_0 = 8
	TypeQ4_0 = 2
)

// Pooling modes for embedding contexts.
const (
	PoolingNone = 0
	PoolingMean = 1
)

// Model is one loaded GGUF model.
type Model struct {
	ptr   uintptr
	vocab uintptr
}

// ModelConfig controls weight loading.
type ModelConfig struct {
	GPULayers int
	UseMlock  bool
}

// LoadModel loads GGUF weights from path. The backend handle must have
// been initialized (Load) first.
func LoadModel(path string, cfg ModelConfig) (*Model, error) {
	if err := Load(); err != nil {
		return nil, err
	}

	params := fns.modelDefaultParams()
	params.nGpuLayers = int32(cfg.GPULayers)
	if cfg.UseMlock && fns.mlockSupported() {
		params.useMlock = 1
	}

	ptr := fns.modelLoadFromFile(path, params)
	if ptr == 0 {
		return nil, fmt.Errorf("failed to load model from %s", path)
	}
	return &Model{ptr: ptr, vocab: fns.modelGetVocab(ptr)}, nil
}

// Close frees the model weights.
func (m *Model) Close() {
	if m.ptr != 0 {
		fns.modelFree(m.ptr)
		m.ptr = 0
	}
}

// NLayer returns the model's transformer layer count.
func (m *Model) NLayer() int { return int(fns.modelNLayer(m.ptr)) }

// NEmbd returns the model's embedding width.
func (m *Model) NEmbd() int { return int(fns.modelNEmbd(m.ptr)) }

// TrainContext returns the context length the model was trained with.
func (m *Model) TrainContext() int { return int(fns.modelNCtxTrain(m.ptr)) }

// ChatTemplateString returns the model's built-in chat template, or ""
// when the GGUF metadata carries none.
func (m *Model) ChatTemplateString() string {
	p := fns.modelChatTemplate(m.ptr, 0)
	if p == 0 {
		return ""
	}
	return goString(p)
}

// Tokenize converts text to token ids, growing the output buffer when
// the first pass reports a larger requirement.
func (m *Model) Tokenize(text string, addSpecial, parseSpecial bool) ([]int32, error) {
	if text == "" {
		return nil, nil
	}
	buf := make([]int32, len(text)+8)
	n := fns.tokenize(m.vocab, text, int32(len(text)), &buf[0], int32(len(buf)), addSpecial, parseSpecial)
	if n < 0 {
		buf = make([]int32, -n)
		n = fns.tokenize(m.vocab, text, int32(len(text)), &buf[0], int32(len(buf)), addSpecial, parseSpecial)
	}
	if n < 0 {
		return nil, fmt.Errorf("tokenize failed for %d-byte input", len(text))
	}
	return buf[:n], nil
}

// TokenToPiece renders one token id back to its byte sequence. The
// bytes may be a partial UTF-8 codepoint; callers stream them through a
// decoder that reassembles codepoints across token boundaries.
func (m *Model) TokenToPiece(token int32) []byte {
	buf := make([]byte, 64)
	n := fns.tokenToPiece(m.vocab, token, &buf[0], int32(len(buf)), 0, true)
	if n < 0 {
		buf = make([]byte, -n)
		n = fns.tokenToPiece(m.vocab, token, &buf[0], int32(len(buf)), 0, true)
	}
	if n <= 0 {
		return nil
	}
	return buf[:n]
}

// IsEOG reports whether token ends generation.
func (m *Model) IsEOG(token int32) bool {
	return fns.vocabIsEOG(m.vocab, token)
}

// chatMessageABI mirrors llama_chat_message: two C string pointers.
type chatMessageABI struct {
	role    *byte
	content *byte
}

// ApplyChatTemplate renders role/content pairs through the template
// engine. tmpl may be "" to use the model's built-in template.
func (m *Model) ApplyChatTemplate(tmpl string, roles, contents []string, addAssistant bool) (string, error) {
	if len(roles) != len(contents) {
		return "", fmt.Errorf("roles/contents length mismatch: %d vs %d", len(roles), len(contents))
	}
	if tmpl == "" {
		tmpl = m.ChatTemplateString()
	}
	if tmpl == "" {
		// No template in the GGUF metadata: simple fallback framing.
		var b strings.Builder
		for i := range roles {
			fmt.Fprintf(&b, "<|%s|>\n%s\n", roles[i], contents[i])
		}
		if addAssistant {
			b.WriteString("<|assistant|>\n")
		}
		return b.String(), nil
	}

	msgs := make([]chatMessageABI, len(roles))
	pins := make([][]byte, 0, len(roles)*2)
	for i := range roles {
		r := append([]byte(roles[i]), 0)
		c := append([]byte(contents[i]), 0)
		pins = append(pins, r, c)
		msgs[i] = chatMessageABI{role: &r[0], content: &c[0]}
	}

	size := 0
	for i := range contents {
		size += len(contents[i]) + len(roles[i]) + 32
	}
	buf := make([]byte, size*2+256)

	var msgPtr uintptr
	if len(msgs) > 0 {
		msgPtr = uintptr(unsafe.Pointer(&msgs[0]))
	}
	n := fns.chatApplyTemplate(tmpl, msgPtr, uint64(len(msgs)), addAssistant, &buf[0], int32(len(buf)))
	if n < 0 {
		return "", fmt.Errorf("chat template application failed")
	}
	if int(n) > len(buf) {
		buf = make([]byte, n)
		n = fns.chatApplyTemplate(tmpl, msgPtr, uint64(len(msgs)), addAssistant, &buf[0], int32(len(buf)))
		if n < 0 {
			return "", fmt.Errorf("chat template application failed")
		}
	}
	_ = pins
	return string(buf[:n]), nil
}

func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var b []byte
	for i := uintptr(0); ; i++ {
		c := *(*byte)(unsafe.Pointer(p + i))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}
