package model

import (
	"sync"

	"github.com/Aman-CERP/localagent/internal/artifacts"
	"github.com/Aman-CERP/localagent/internal/llama"
)

// BackendConfig selects and configures the inference backend.
type BackendConfig struct {
	// ArtifactsDir is the content-addressed weight cache directory.
	ArtifactsDir string

	// OllamaHost overrides the HTTP fallback endpoint.
	OllamaHost string

	// ForceOllama skips the in-process backend even when the native
	// library is present.
	ForceOllama bool
}

var (
	sharedOnce    sync.Once
	sharedBackend Backend
)

// Shared returns the process-wide backend handle, constructing it on
// first call: the in-process native backend when its shared library is
// loadable, otherwise the managed Ollama HTTP fallback. The handle is
// never torn down before process exit; every component that needs
// inference obtains this same handle.
func Shared(cfg BackendConfig) Backend {
	sharedOnce.Do(func() {
		if !cfg.ForceOllama && llama.Available() {
			sharedBackend = NewLlamaBackend(artifacts.NewCache(cfg.ArtifactsDir))
			return
		}
		sharedBackend = NewOllamaBackend(cfg.OllamaHost)
	})
	return sharedBackend
}
