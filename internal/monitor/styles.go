package monitor

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Green  = lipgloss.Color("#4caf50")
	Yellow = lipgloss.Color("#f5c518")
	Red    = lipgloss.Color("#e53935")
	Teal   = lipgloss.Color("#0d7377")
	Gray   = lipgloss.Color("#888888")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f8f7f4")).
			Background(Teal).
			Bold(true).
			Padding(0, 1)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Teal).
			Padding(0, 1)

	AlertStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	HintStyle = lipgloss.NewStyle().
			Foreground(Gray)
)
