// Package theme holds the lipgloss styles of the studi command line output.
package theme

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Muted lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	Bar      lipgloss.Style
	BarEmpty lipgloss.Style
	Card     lipgloss.Style
}

var (
	defaultStyles *Styles
	once          sync.Once
)

// Default returns the singleton default Styles instance.
func Default() *Styles {
	once.Do(func() {
		defaultStyles = newStyles()
	})
	return defaultStyles
}

func newStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(Purple),

		Label: lipgloss.NewStyle().
			Foreground(LightGray).
			Width(20),

		Value: lipgloss.NewStyle().
			Bold(true).
			Foreground(White),

		Muted: lipgloss.NewStyle().
			Foreground(DimGray),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Error).
			Bold(true),

		Bar: lipgloss.NewStyle().
			Foreground(BrightPurple),

		BarEmpty: lipgloss.NewStyle().
			Foreground(DimGray),

		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Purple).
			Padding(0, 1),
	}
}

// Score picks the style for a flow score band.
func (s *Styles) Score(score int) lipgloss.Style {
	switch {
	case score >= 700:
		return s.Success
	case score >= 500:
		return s.Warning
	default:
		return s.Error
	}
}

// Row renders a label/value line.
func (s *Styles) Row(label, value string) string {
	return s.Label.Render(label) + s.Value.Render(value)
}

// ProgressBar renders value/total as a bar of width cells.
func (s *Styles) ProgressBar(value, total float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if total > 0 && value > 0 {
		filled = int(value / total * float64(width))
		if filled == 0 {
			filled = 1
		}
		if filled > width {
			filled = width
		}
	}
	return s.Bar.Render(strings.Repeat("█", filled)) + s.BarEmpty.Render(strings.Repeat("░", width-filled))
}
