// Package theme holds the terminal styles used to render banners and
// plan summaries.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/study-planner/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the application title line.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// HelpStyle is used for secondary text such as timestamps.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// BannerColor returns the accent color of a banner kind.
func BannerColor(kind model.BannerKind) lipgloss.AdaptiveColor {
	switch kind {
	case model.BannerSuccess:
		return ColorGreen
	case model.BannerWarning:
		return ColorYellow
	case model.BannerError:
		return ColorRed
	default:
		return ColorBlue
	}
}

// BannerStyle returns the bordered box style for a banner kind.
func BannerStyle(kind model.BannerKind) lipgloss.Style {
	return lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BannerColor(kind))
}

// BannerTitleStyle returns the bold title style for a banner kind.
func BannerTitleStyle(kind model.BannerKind) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(BannerColor(kind))
}

// PriorityStyle returns a color-coded style for a plan priority.
func PriorityStyle(p model.Priority) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch p {
	case model.PriorityHigh:
		return base.Foreground(ColorRed)
	case model.PriorityMedium:
		return base.Foreground(ColorYellow)
	case model.PriorityLow:
		return base.Foreground(ColorBlue)
	default:
		return base.Foreground(ColorGray)
	}
}

// UrgencyStyle returns a color-coded style for a reminder urgency.
func UrgencyStyle(u model.Urgency) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch u {
	case model.UrgencyCritical:
		return base.Foreground(ColorRed)
	case model.UrgencyUrgent:
		return base.Foreground(ColorOrange)
	case model.UrgencyUpcoming:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorGray)
	}
}
