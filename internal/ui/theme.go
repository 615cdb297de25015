package ui

import "github.com/charmbracelet/lipgloss"

// Theme is one palette of styles. The dashboard's dark-mode flag selects it.
type Theme struct {
	Header    lipgloss.Style
	StatusBar lipgloss.Style
	Item      lipgloss.Style
	Selected  lipgloss.Style
	Help      lipgloss.Style
	Error     lipgloss.Style
	Notice    lipgloss.Style
	Panel     lipgloss.Style
	Dimmed    lipgloss.Style

	statusColors   map[string]lipgloss.Color
	priorityColors map[string]lipgloss.Color
}

type palette struct {
	fg, bg, accent, subtle, border lipgloss.Color
	red, green, yellow, blue, gray lipgloss.Color
}

var (
	darkPalette = palette{
		fg: "#F8F9FA", bg: "#1A1B26", accent: "#5B9BD5", subtle: "#495057", border: "#495057",
		red: "#FF6B6B", green: "#6BCB77", yellow: "#FFD93D", blue: "#5B9BD5", gray: "#868E96",
	}
	lightPalette = palette{
		fg: "#1A202C", bg: "#FFFFFF", accent: "#2B6CB0", subtle: "#CBD5E0", border: "#E2E8F0",
		red: "#C53030", green: "#2F855A", yellow: "#B7791F", blue: "#2B6CB0", gray: "#718096",
	}
)

// DarkTheme and LightTheme return the two palettes.
func DarkTheme() Theme  { return newTheme(darkPalette) }
func LightTheme() Theme { return newTheme(lightPalette) }

// ThemeFor picks the palette for the dark-mode flag.
func ThemeFor(dark bool) Theme {
	if dark {
		return DarkTheme()
	}
	return LightTheme()
}

func newTheme(p palette) Theme {
	return Theme{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(p.bg).Background(p.accent).Padding(0, 1),
		StatusBar: lipgloss.NewStyle().Foreground(p.fg).Background(p.subtle).Padding(0, 1),
		Item:      lipgloss.NewStyle().PaddingLeft(2).Foreground(p.fg),
		Selected: lipgloss.NewStyle().
			PaddingLeft(1).
			Bold(true).
			Foreground(p.accent).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(p.accent),
		Help:   lipgloss.NewStyle().Foreground(p.gray).Italic(true),
		Error:  lipgloss.NewStyle().Foreground(p.red).Bold(true),
		Notice: lipgloss.NewStyle().Foreground(p.green),
		Panel: lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.border),
		Dimmed: lipgloss.NewStyle().Foreground(p.gray).Strikethrough(true),
		statusColors: map[string]lipgloss.Color{
			"Pending":   p.blue,
			"Completed": p.green,
			"Missed":    p.red,
		},
		priorityColors: map[string]lipgloss.Color{
			"High":   p.red,
			"Medium": p.yellow,
			"Low":    p.gray,
		},
	}
}

// StatusStyle colours a derived task status.
func (t Theme) StatusStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Width(10)
	if c, ok := t.statusColors[status]; ok {
		return base.Foreground(c)
	}
	return base
}

// PriorityStyle colours a priority label.
func (t Theme) PriorityStyle(priority string) lipgloss.Style {
	base := lipgloss.NewStyle().Width(7)
	if c, ok := t.priorityColors[priority]; ok {
		return base.Foreground(c)
	}
	return base
}
