// Package settings is the user-facing JSON settings file,
// distinct from internal/config's process-level YAML config: this file
// owns watched directories, the global shortcut, and agent behavior
// knobs the desktop-shell frontend lets a user edit directly.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"

	agenterrors "github.com/Aman-CERP/localagent/internal/errors"
)

// AgentSettings configures the Agent Runtime.
type AgentSettings struct {
	ModelID         string  `json:"model_id"` // a registry id, or "auto" to use model.Recommend
	MaxIterations   int     `json:"max_iterations"`
	MaxTokens       int     `json:"max_tokens"`
	ContextWindow   int     `json:"context_window"`
	Temperature     float64 `json:"temperature"`
	AutoApproveSafe bool    `json:"auto_approve_safe"`
	SkillsDirectory string  `json:"skills_directory"`
}

// Settings is the full persisted settings document.
type Settings struct {
	WatchedDirectories []string      `json:"watched_directories"`
	GlobalShortcut     string        `json:"global_shortcut"`
	Agent              AgentSettings `json:"agent"`
}

// Default returns sensible defaults.
func Default() Settings {
	return Settings{
		WatchedDirectories: nil,
		GlobalShortcut:     "CommandOrControl+Shift+Space",
		Agent: AgentSettings{
			ModelID:         "auto",
			MaxIterations:   10,
			MaxTokens:       2048,
			ContextWindow:   8192,
			Temperature:     0.7,
			AutoApproveSafe: false,
			SkillsDirectory: filepath.Join("skills"),
		},
	}
}

// Path returns the settings file location under the app's data
// directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, "settings.json")
}

// Load reads settings.json from dataDir, returning defaults if the
// file does not yet exist.
func Load(dataDir string) (Settings, error) {
	path := Path(dataDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Settings{}, agenterrors.New(agenterrors.ErrCodeConfigNotFound, "failed to read settings file", err)
	}

	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, agenterrors.New(agenterrors.ErrCodeConfigInvalid, "failed to parse settings file", err)
	}
	return s, nil
}

// Save writes settings atomically (write-then-rename) to avoid a
// truncated file on a crash mid-write.
func Save(dataDir string, s Settings) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return agenterrors.New(agenterrors.ErrCodeFilePermission, "failed to create settings directory", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return agenterrors.New(agenterrors.ErrCodeInternal, "failed to marshal settings", err)
	}

	path := Path(dataDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return agenterrors.New(agenterrors.ErrCodeFilePermission, "failed to write settings file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return agenterrors.New(agenterrors.ErrCodeFilePermission, "failed to finalize settings file", err)
	}
	return nil
}
