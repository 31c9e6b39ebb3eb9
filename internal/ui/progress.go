package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// ProgressEvent is one unit of indexing progress.
type ProgressEvent struct {
	Current int
	Total   int
	File    string
}

// IndexRenderer shows indexing progress: an animated bar on a TTY, one
// line per update otherwise.
type IndexRenderer interface {
	Update(ev ProgressEvent)
	Done(indexed, failed int, took time.Duration)
}

// NewIndexRenderer picks the renderer for the writer.
func NewIndexRenderer(out io.Writer, noColor bool) IndexRenderer {
	if IsTTY(out) && !noColor {
		return newBarRenderer(out)
	}
	return &plainIndexRenderer{out: out}
}

// plainIndexRenderer prints a line per file, suitable for pipes and CI.
type plainIndexRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func (r *plainIndexRenderer) Update(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Total > 0 {
		fmt.Fprintf(r.out, "[%d/%d] %s\n", ev.Current, ev.Total, ev.File)
		return
	}
	fmt.Fprintf(r.out, "indexing %s\n", ev.File)
}

func (r *plainIndexRenderer) Done(indexed, failed int, took time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "Indexed %d files (%d failed) in %s\n", indexed, failed, took.Round(100*time.Millisecond))
}

// barRenderer drives a bubbletea progress bar.
type barRenderer struct {
	prog *tea.Program
	done chan struct{}
}

type barModel struct {
	bar     progress.Model
	current int
	total   int
	file    string
	summary string
}

type barUpdateMsg ProgressEvent
type barDoneMsg string

func (m barModel) Init() tea.Cmd { return nil }

func (m barModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case barUpdateMsg:
		m.current, m.total, m.file = msg.Current, msg.Total, msg.File
		if m.total > 0 {
			return m, m.bar.SetPercent(float64(m.current) / float64(m.total))
		}
		return m, nil
	case barDoneMsg:
		m.summary = string(msg)
		return m, tea.Quit
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m barModel) View() string {
	if m.summary != "" {
		return m.summary + "\n"
	}
	if m.total == 0 {
		return fmt.Sprintf("indexing %s\n", m.file)
	}
	return fmt.Sprintf("%s %d/%d  %s\n", m.bar.View(), m.current, m.total, m.file)
}

func newBarRenderer(out io.Writer) *barRenderer {
	model := barModel{bar: progress.New(progress.WithDefaultGradient())}
	prog := tea.NewProgram(model, tea.WithOutput(out), tea.WithInput(nil))
	r := &barRenderer{prog: prog, done: make(chan struct{})}
	go func() {
		_, _ = prog.Run()
		close(r.done)
	}()
	return r
}

func (r *barRenderer) Update(ev ProgressEvent) {
	r.prog.Send(barUpdateMsg(ev))
}

func (r *barRenderer) Done(indexed, failed int, took time.Duration) {
	summary := fmt.Sprintf("Indexed %d files (%d failed) in %s", indexed, failed, took.Round(100*time.Millisecond))
	r.prog.Send(barDoneMsg(summary))
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		r.prog.Kill()
	}
}
