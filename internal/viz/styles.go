package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles derived from a theme.
type Styles struct {
	Panel   lipgloss.Style
	Title   lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Subtle  lipgloss.Style
	OK      lipgloss.Style
	Failed  lipgloss.Style
	BarHigh lipgloss.Style
	BarMid  lipgloss.Style
	BarLow  lipgloss.Style
}

// NewStyles builds the styles for t.
func NewStyles(t Theme) Styles {
	return Styles{
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Secondary),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Text).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(t.Muted),
		Label:   lipgloss.NewStyle().Foreground(t.Muted),
		Value:   lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		Subtle:  lipgloss.NewStyle().Foreground(t.Muted),
		OK:      lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		Failed:  lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		BarHigh: lipgloss.NewStyle().Foreground(t.Success),
		BarMid:  lipgloss.NewStyle().Foreground(t.Warning),
		BarLow:  lipgloss.NewStyle().Foreground(t.Error),
	}
}

// ProgressBar renders fraction (0..1) as a bar of width cells.
func (s Styles) ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	if fraction > 0.8 {
		return s.BarHigh.Render(bar)
	} else if fraction > 0.4 {
		return s.BarMid.Render(bar)
	}
	return s.BarLow.Render(bar)
}

// Separator renders a decorated horizontal rule.
func (s Styles) Separator(width int) string {
	if width < 8 {
		width = 8
	}
	mid := width / 2
	left := strings.Repeat("─", mid-3)
	right := strings.Repeat("─", width-mid-3)
	return s.Subtle.Render(left + " ◆ " + right)
}
