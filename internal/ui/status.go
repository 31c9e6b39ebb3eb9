package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// StatusInfo is the daemon status summary the CLI renders.
type StatusInfo struct {
	Running        bool   `json:"running"`
	PID            int    `json:"pid,omitempty"`
	Uptime         string `json:"uptime,omitempty"`
	DocumentCount  int    `json:"document_count"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddedChunks int    `json:"embedded_chunks"`
	EmbeddingState string `json:"embedding_state"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	ModelState     string `json:"model_state"`
	VectorEnabled  bool   `json:"vector_enabled"`
	WatchedRoots   int    `json:"watched_roots"`
}

// StatusRenderer displays daemon status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes the human-readable status block.
func (r *StatusRenderer) Render(info StatusInfo) error {
	s := r.styles

	fmt.Fprintln(r.out, s.Title.Render("localagent status"))
	if info.Running {
		fmt.Fprintf(r.out, "%s %s (pid %d, up %s)\n",
			s.Label.Render("daemon:"), s.Good.Render("running"), info.PID, info.Uptime)
	} else {
		fmt.Fprintf(r.out, "%s %s\n", s.Label.Render("daemon:"), s.Bad.Render("not running"))
	}
	fmt.Fprintf(r.out, "%s %d documents, %d chunks (%d with embeddings)\n",
		s.Label.Render("index:"), info.DocumentCount, info.ChunkCount, info.EmbeddedChunks)

	vector := "enabled"
	style := s.Good
	if !info.VectorEnabled {
		vector = "disabled (keyword-only)"
		style = s.Warn
	}
	fmt.Fprintf(r.out, "%s %s\n", s.Label.Render("vector index:"), style.Render(vector))

	embedding := info.EmbeddingState
	if info.EmbeddingModel != "" {
		embedding = fmt.Sprintf("%s (%s)", embedding, info.EmbeddingModel)
	}
	fmt.Fprintf(r.out, "%s %s\n", s.Label.Render("embeddings:"), r.stateStyle(info.EmbeddingState).Render(embedding))
	fmt.Fprintf(r.out, "%s %s\n", s.Label.Render("model:"), r.stateStyle(info.ModelState).Render(info.ModelState))
	fmt.Fprintf(r.out, "%s %d\n", s.Label.Render("watched roots:"), info.WatchedRoots)
	return nil
}

// RenderJSON writes the machine-readable form.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) stateStyle(state string) interface{ Render(...string) string } {
	switch state {
	case "ready":
		return r.styles.Good
	case "loading":
		return r.styles.Warn
	case "errored":
		return r.styles.Bad
	default:
		return r.styles.Muted
	}
}

// FormatBytes renders a byte count with a binary-unit suffix.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
