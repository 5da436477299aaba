package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/buemura/jarhunter/pkg/types"
)

// Status colors.
var (
	ColorVulnerable = lipgloss.Color("#FF0000")
	ColorPotential  = lipgloss.Color("#FFCC00")
	ColorMitigated  = lipgloss.Color("#0099FF")
	ColorSafe       = lipgloss.Color("#00CC00")
	ColorMuted      = lipgloss.Color("#666666")
	ColorAccent     = lipgloss.Color("#7D56F4")
)

// Styles used across TUI views.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(ColorAccent).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent).
			MarginBottom(1)

	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	CursorStyle = lipgloss.NewStyle().
			Foreground(ColorAccent)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	VulnerableStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorVulnerable)
	PotentialStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorPotential)
	MitigatedStyle  = lipgloss.NewStyle().Foreground(ColorMitigated)
	SafeStyle       = lipgloss.NewStyle().Foreground(ColorSafe)
)

// StatusStyle returns the style for a detection status.
func StatusStyle(s types.Status) lipgloss.Style {
	switch s {
	case types.StatusVulnerable:
		return VulnerableStyle
	case types.StatusPotentiallyVulnerable:
		return PotentialStyle
	case types.StatusMitigated:
		return MitigatedStyle
	case types.StatusNotVulnerable:
		return SafeStyle
	default:
		return lipgloss.NewStyle()
	}
}
