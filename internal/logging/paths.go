package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.localagent/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".localagent", "logs")
	}
	return filepath.Join(home, ".localagent", "logs")
}

// DefaultLogPath returns the daemon log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "daemon.log")
}

// CLILogPath returns the CLI log path.
func CLILogPath() string {
	return filepath.Join(DefaultLogDir(), "cli.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceDaemon is the daemon logs (default).
	LogSourceDaemon LogSource = "daemon"
	// LogSourceCLI is the CLI logs.
	LogSourceCLI LogSource = "cli"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.localagent/logs/daemon.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	// Try global path
	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. The daemon may not have run yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceDaemon:
		daemonPath := DefaultLogPath()
		checked = append(checked, daemonPath)
		if _, err := os.Stat(daemonPath); err == nil {
			paths = append(paths, daemonPath)
		}

	case LogSourceCLI:
		cliPath := CLILogPath()
		checked = append(checked, cliPath)
		if _, err := os.Stat(cliPath); err == nil {
			paths = append(paths, cliPath)
		}

	case LogSourceAll:
		daemonPath := DefaultLogPath()
		cliPath := CLILogPath()
		checked = append(checked, daemonPath, cliPath)

		if _, err := os.Stat(daemonPath); err == nil {
			paths = append(paths, daemonPath)
		}
		if _, err := os.Stat(cliPath); err == nil {
			paths = append(paths, cliPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: daemon, cli, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "cli":
		return LogSourceCLI
	case "all":
		return LogSourceAll
	default:
		return LogSourceDaemon
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceDaemon:
		return "To generate daemon logs:\n  localagent daemon start"
	case LogSourceCLI:
		return "To generate CLI logs:\n  localagent --debug <command>"
	case LogSourceAll:
		return "To generate logs:\n  daemon: localagent daemon start\n  cli:    localagent --debug <command>"
	default:
		return ""
	}
}
