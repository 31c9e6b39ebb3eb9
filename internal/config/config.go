// Package config loads the process-level YAML configuration: where data
// lives, how the daemon listens, how logs are written, and which
// embedding backends may load. User-facing agent and watch settings are
// a separate JSON file owned by internal/settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFilename is the YAML file looked up under the config directory.
const ConfigFilename = "config.yaml"

// Config is the process configuration with defaults applied.
type Config struct {
	// DataDir holds the database, vector index, and artifact cache.
	DataDir string `yaml:"data_dir"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	Daemon     DaemonConfig     `yaml:"daemon"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Model      ModelConfig      `yaml:"model"`
}

// DaemonConfig controls the daemon process boundary.
type DaemonConfig struct {
	// SocketPath is the unix socket the CLI connects to.
	SocketPath string `yaml:"socket_path"`

	// PIDFile guards against double starts.
	PIDFile string `yaml:"pid_file"`
}

// EmbeddingsConfig selects embedding backends.
type EmbeddingsConfig struct {
	DisableLocal  bool   `yaml:"disable_local"`
	DisableRemote bool   `yaml:"disable_remote"`
	RemoteHost    string `yaml:"remote_host"`
	RemoteModel   string `yaml:"remote_model"`
}

// ModelConfig selects the chat-inference backend.
type ModelConfig struct {
	// OllamaHost overrides the HTTP fallback endpoint.
	OllamaHost string `yaml:"ollama_host"`

	// ForceOllama skips the in-process backend.
	ForceOllama bool `yaml:"force_ollama"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := ".localagent"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".localagent")
	}
	return Config{
		DataDir:  dataDir,
		LogLevel: "info",
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(dataDir, "daemon.sock"),
			PIDFile:    filepath.Join(dataDir, "daemon.pid"),
		},
	}
}

// Load reads the config file under dir (os.UserConfigDir()/localagent
// when dir is empty), layering file values over defaults and
// environment variables over both. A missing file is not an error.
func Load(dir string) (Config, error) {
	cfg := Default()

	if dir == "" {
		base, err := os.UserConfigDir()
		if err == nil {
			dir = filepath.Join(base, "localagent")
		}
	}

	if dir != "" {
		path := filepath.Join(dir, ConfigFilename)
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv layers LOCALAGENT_* environment overrides on top.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LOCALAGENT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOCALAGENT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOCALAGENT_SOCKET"); v != "" {
		cfg.Daemon.SocketPath = v
	}
	if v := os.Getenv("LOCALAGENT_OLLAMA_HOST"); v != "" {
		cfg.Model.OllamaHost = v
		if cfg.Embeddings.RemoteHost == "" {
			cfg.Embeddings.RemoteHost = v
		}
	}
}

// Validate rejects values the rest of the system cannot work with.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn, or error)", c.LogLevel)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	return nil
}

// ArtifactsDir is where downloaded model weights live.
func (c Config) ArtifactsDir() string {
	return filepath.Join(c.DataDir, "models")
}

// SkillsDir is the default skills directory when settings do not name
// one.
func (c Config) SkillsDir() string {
	return filepath.Join(c.DataDir, "skills")
}
