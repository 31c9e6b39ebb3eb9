// Package ui provides the CLI's terminal rendering: lipgloss styles, a
// bubbletea progress view for indexing, and status output. Non-TTY
// output degrades to plain lines.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor honors the NO_COLOR convention and CI environments.
func DetectNoColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	if os.Getenv("CI") != "" {
		return true
	}
	return false
}
