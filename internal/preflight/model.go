package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/localagent/internal/llama"
)

// CheckInferenceBackend reports whether the in-process inference
// library can load. Missing is a warning, not a failure: the HTTP
// fallback or keyword-only mode still work.
func (c *Checker) CheckInferenceBackend() CheckResult {
	result := CheckResult{
		Name:     "inference backend",
		Required: false,
	}

	if llama.Available() {
		result.Status = StatusPass
		result.Message = "native inference library loaded"
		return result
	}

	result.Status = StatusWarn
	result.Message = "native inference library not found"
	result.Details = "the agent will use the HTTP fallback if one is running; search degrades to keyword-only otherwise"
	return result
}

// CheckModelCache verifies the artifact cache directory is writable.
func (c *Checker) CheckModelCache(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "model cache",
		Required: false,
	}

	dir := filepath.Join(dataDir, "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot create %s", dir)
		result.Details = err.Error()
		return result
	}

	probe := filepath.Join(dir, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot write to %s", dir)
		result.Details = err.Error()
		return result
	}
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = fmt.Sprintf("writable at %s", dir)
	return result
}
