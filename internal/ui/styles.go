package ui

import "github.com/charmbracelet/lipgloss"

// Palette.
const (
	colorTeal   = "6"
	colorGreen  = "2"
	colorYellow = "3"
	colorRed    = "1"
	colorGray   = "8"
)

// Styles groups the lipgloss styles the renderers share.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Good    lipgloss.Style
	Warn    lipgloss.Style
	Bad     lipgloss.Style
	Muted   lipgloss.Style
	Snippet lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorTeal)),
		Label:   lipgloss.NewStyle().Bold(true),
		Value:   lipgloss.NewStyle(),
		Good:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Bad:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Snippet: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)).Italic(true),
	}
}

// NoColorStyles returns unstyled equivalents.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title: plain, Label: plain, Value: plain,
		Good: plain, Warn: plain, Bad: plain,
		Muted: plain, Snippet: plain,
	}
}

// GetStyles picks a style set.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
