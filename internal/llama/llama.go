// Package llama binds a llama.cpp-compatible shared library at runtime
// through purego, with no cgo. The backend handle is a process-wide
// singleton initialized once on first use; model instances and per-call
// contexts form a tree rooted at that handle and live only as long as a
// single caller needs them.
//
// The library is optional: when no shared library can be found the
// package reports unavailable and callers degrade (keyword-only search,
// HTTP inference fallback) instead of failing at startup.
package llama

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

// ErrUnavailable is returned when no shared library could be loaded.
var ErrUnavailable = fmt.Errorf("llama shared library not available")

// libNames are the candidate filenames probed per platform, in order.
func libNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libllama.dylib"}
	case "windows":
		return []string{"llama.dll"}
	default:
		return []string{"libllama.so", "libllama.so.1"}
	}
}

// EnvLibraryPath overrides library discovery when set.
const EnvLibraryPath = "LOCALAGENT_LLAMA_LIB"

type api struct {
	backendInit func()
	backendFree func()

	modelDefaultParams func() modelParams
	modelLoadFromFile  func(path string, params modelParams) uintptr
	modelFree          func(model uintptr)
	modelGetVocab      func(model uintptr) uintptr
	modelNLayer        func(model uintptr) int32
	modelNEmbd         func(model uintptr) int32
	modelNCtxTrain     func(model uintptr) int32
	modelChatTemplate  func(model uintptr, name uintptr) uintptr

	contextDefaultParams func() contextParams
	initFromModel        func(model uintptr, params contextParams) uintptr
	contextFree          func(ctx uintptr)
	setEmbeddings        func(ctx uintptr, enabled bool)

	tokenize     func(vocab uintptr, text string, textLen int32, tokens *int32, nMax int32, addSpecial bool, parseSpecial bool) int32
	tokenToPiece func(vocab uintptr, token int32, buf *byte, length int32, lstrip int32, special bool) int32
	vocabIsEOG   func(vocab uintptr, token int32) bool

	decode           func(ctx uintptr, batch batch) int32
	getLogitsIth     func(ctx uintptr, i int32) uintptr
	getEmbeddingsIth func(ctx uintptr, i int32) *float32
	getEmbeddingsSeq func(ctx uintptr, seq int32) *float32

	chatApplyTemplate func(tmpl string, msgs uintptr, n uint64, addAssistant bool, buf *byte, length int32) int32

	samplerChainDefaultParams func() samplerChainParams
	samplerChainInit          func(params samplerChainParams) uintptr
	samplerChainAdd           func(chain uintptr, smpl uintptr)
	samplerInitTemp           func(t float32) uintptr
	samplerInitTopP           func(p float32, minKeep uint64) uintptr
	samplerInitDist           func(seed uint32) uintptr
	samplerInitGrammar        func(vocab uintptr, grammar string, root string) uintptr
	samplerInitGrammarLazy    func(vocab uintptr, grammar string, root string, triggerWords **byte, nWords uint64, triggerTokens *int32, nTokens uint64) uintptr
	samplerSample             func(smpl uintptr, ctx uintptr, idx int32) int32
	samplerAccept             func(smpl uintptr, token int32)
	samplerFree               func(smpl uintptr)

	mlockSupported func() bool
}

var (
	once    sync.Once
	loadErr error
	fns     api
)

// Load initializes the process-wide backend handle, locating and
// dlopen-ing the shared library. Concurrent and repeated calls collapse
// onto the first initialization; the handle is torn down only at
// process exit.
func Load() error {
	once.Do(func() {
		path := findLibrary()
		if path == "" {
			loadErr = ErrUnavailable
			return
		}
		lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			loadErr = fmt.Errorf("load %s: %w", path, err)
			return
		}
		register(lib)
		fns.backendInit()
	})
	return loadErr
}

// Available reports whether the shared library loaded successfully. It
// triggers the load on first call.
func Available() bool {
	return Load() == nil
}

func findLibrary() string {
	if p := os.Getenv(EnvLibraryPath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		return ""
	}

	dirs := []string{"/usr/local/lib", "/usr/lib", "/opt/homebrew/lib"}
	if exe, err := os.Executable(); err == nil {
		dirs = append([]string{filepath.Dir(exe)}, dirs...)
	}
	for _, dir := range dirs {
		for _, name := range libNames() {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	// Fall back to the dynamic linker's own search path.
	return libNames()[0]
}

func register(lib uintptr) {
	purego.RegisterLibFunc(&fns.backendInit, lib, "llama_backend_init")
	purego.RegisterLibFunc(&fns.backendFree, lib, "llama_backend_free")

	purego.RegisterLibFunc(&fns.modelDefaultParams, lib, "llama_model_default_params")
	purego.RegisterLibFunc(&fns.modelLoadFromFile, lib, "llama_model_load_from_file")
	purego.RegisterLibFunc(&fns.modelFree, lib, "llama_model_free")
	purego.RegisterLibFunc(&fns.modelGetVocab, lib, "llama_model_get_vocab")
	purego.RegisterLibFunc(&fns.modelNLayer, lib, "llama_model_n_layer")
	purego.RegisterLibFunc(&fns.modelNEmbd, lib, "llama_model_n_embd")
	purego.RegisterLibFunc(&fns.modelNCtxTrain, lib, "llama_model_n_ctx_train")
	purego.RegisterLibFunc(&fns.modelChatTemplate, lib, "llama_model_chat_template")

	purego.RegisterLibFunc(&fns.contextDefaultParams, lib, "llama_context_default_params")
	purego.RegisterLibFunc(&fns.initFromModel, lib, "llama_init_from_model")
	purego.RegisterLibFunc(&fns.contextFree, lib, "llama_free")
	purego.RegisterLibFunc(&fns.setEmbeddings, lib, "llama_set_embeddings")

	purego.RegisterLibFunc(&fns.tokenize, lib, "llama_tokenize")
	purego.RegisterLibFunc(&fns.tokenToPiece, lib, "llama_token_to_piece")
	purego.RegisterLibFunc(&fns.vocabIsEOG, lib, "llama_vocab_is_eog")

	purego.RegisterLibFunc(&fns.decode, lib, "llama_decode")
	purego.RegisterLibFunc(&fns.getLogitsIth, lib, "llama_get_logits_ith")
	purego.RegisterLibFunc(&fns.getEmbeddingsIth, lib, "llama_get_embeddings_ith")
	purego.RegisterLibFunc(&fns.getEmbeddingsSeq, lib, "llama_get_embeddings_seq")

	purego.RegisterLibFunc(&fns.chatApplyTemplate, lib, "llama_chat_apply_template")

	purego.RegisterLibFunc(&fns.samplerChainDefaultParams, lib, "llama_sampler_chain_default_params")
	purego.RegisterLibFunc(&fns.samplerChainInit, lib, "llama_sampler_chain_init")
	purego.RegisterLibFunc(&fns.samplerChainAdd, lib, "llama_sampler_chain_add")
	purego.RegisterLibFunc(&fns.samplerInitTemp, lib, "llama_sampler_init_temp")
	purego.RegisterLibFunc(&fns.samplerInitTopP, lib, "llama_sampler_init_top_p")
	purego.RegisterLibFunc(&fns.samplerInitDist, lib, "llama_sampler_init_dist")
	purego.RegisterLibFunc(&fns.samplerInitGrammar, lib, "llama_sampler_init_grammar")
	purego.RegisterLibFunc(&fns.samplerInitGrammarLazy, lib, "llama_sampler_init_grammar_lazy_patterns")
	purego.RegisterLibFunc(&fns.samplerSample, lib, "llama_sampler_sample")
	purego.RegisterLibFunc(&fns.samplerAccept, lib, "llama_sampler_accept")
	purego.RegisterLibFunc(&fns.samplerFree, lib, "llama_sampler_free")

	purego.RegisterLibFunc(&fns.mlockSupported, lib, "llama_supports_mlock")
}
