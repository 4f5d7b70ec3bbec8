package color

import (
	"github.com/charmbracelet/lipgloss"
)

// Semantic palette with light and dark variants.
var (
	ColorPrimary = lipgloss.AdaptiveColor{
		Light: "#5A56E0",
		Dark:  "#7571F9",
	}
	ColorSuccess = lipgloss.AdaptiveColor{
		Light: "#059669",
		Dark:  "#10B981",
	}
	ColorError = lipgloss.AdaptiveColor{
		Light: "#DC2626",
		Dark:  "#EF4444",
	}
	ColorWarning = lipgloss.AdaptiveColor{
		Light: "#D97706",
		Dark:  "#F59E0B",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#6B7280",
		Dark:  "#9CA3AF",
	}
	ColorBorder = lipgloss.AdaptiveColor{
		Light: "#D1D5DB",
		Dark:  "#4B5563",
	}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Width(12)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)
)

// Step states understood by StateStyle and StateIcon.
const (
	StateOK      = "ok"
	StateFailed  = "failed"
	StateSkipped = "skipped"
)

// StateStyle returns the text style for a step state.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case StateOK:
		return SuccessStyle
	case StateFailed:
		return ErrorStyle
	case StateSkipped:
		return MutedStyle
	default:
		return lipgloss.NewStyle()
	}
}

// StateIcon returns a styled marker for state.
func StateIcon(state string) string {
	switch state {
	case StateOK:
		return SuccessStyle.Render("✓")
	case StateFailed:
		return ErrorStyle.Render("✗")
	case StateSkipped:
		return MutedStyle.Render("-")
	default:
		return " "
	}
}

// Row renders a "label value" line.
func Row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, LabelStyle.Render(label), value)
}
