package viz

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the colour scheme of the summary panel, the stage table and the
// progress bar.
type Theme struct {
	Name      string
	Primary   lipgloss.Color // counts in the stage table
	Secondary lipgloss.Color // panel title
	Text      lipgloss.Color
	Muted     lipgloss.Color // borders, labels, truncated members
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

var (
	ThemeOcean = Theme{
		Name:      "ocean",
		Primary:   lipgloss.Color("#1e88c7"),
		Secondary: lipgloss.Color("#3fb6d8"),
		Text:      lipgloss.Color("#dcecf7"),
		Muted:     lipgloss.Color("#5a8aa6"),
		Success:   lipgloss.Color("#3ccf8e"),
		Warning:   lipgloss.Color("#e8b923"),
		Error:     lipgloss.Color("#e5534b"),
	}

	// ThemePlain stays readable on light and dark terminals alike.
	ThemePlain = Theme{
		Name:      "plain",
		Primary:   lipgloss.Color("12"),
		Secondary: lipgloss.Color("14"),
		Text:      lipgloss.Color("7"),
		Muted:     lipgloss.Color("8"),
		Success:   lipgloss.Color("10"),
		Warning:   lipgloss.Color("11"),
		Error:     lipgloss.Color("9"),
	}

	// Current is used by the package level render functions.
	Current = ThemeOcean

	Themes = []Theme{ThemeOcean, ThemePlain}
)

// SetTheme makes the named theme current.
func SetTheme(name string) error {
	for _, t := range Themes {
		if t.Name == name {
			Current = t
			return nil
		}
	}
	return fmt.Errorf("unknown theme: %s (available: %v)", name, ThemeNames())
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
