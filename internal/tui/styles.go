package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary  = lipgloss.Color("#4F46E5")
	colorMuted    = lipgloss.Color("#6B7280")
	colorSuccess  = lipgloss.Color("#16A34A")
	colorWarning  = lipgloss.Color("#D97706")
	colorCritical = lipgloss.Color("#DC2626")
	colorVisited  = lipgloss.Color("#9CA3AF")
	colorReview   = lipgloss.Color("#9333EA")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)

	timerStyle        = lipgloss.NewStyle().Bold(true)
	timerWarningStyle = timerStyle.Copy().Foreground(colorCritical).Blink(true)

	violationStyles = map[string]lipgloss.Style{
		"normal":   lipgloss.NewStyle().Foreground(colorSuccess),
		"warning":  lipgloss.NewStyle().Foreground(colorWarning).Bold(true),
		"critical": lipgloss.NewStyle().Foreground(colorCritical).Bold(true),
	}

	promptStyle   = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	optionStyle   = lipgloss.NewStyle().PaddingLeft(2)
	cursorStyle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	reviewStyle   = lipgloss.NewStyle().Foreground(colorReview).Bold(true)

	cellBase      = lipgloss.NewStyle().Width(4).Align(lipgloss.Center)
	cellUnvisited = cellBase.Copy().Foreground(colorMuted)
	cellVisited   = cellBase.Copy().Foreground(colorVisited).Underline(true)
	cellAnswered  = cellBase.Copy().Foreground(colorSuccess).Bold(true)
	cellCurrent   = lipgloss.NewStyle().Reverse(true)

	submitStyle        = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("#FFFFFF")).Background(colorPrimary)
	submitPendingStyle = submitStyle.Copy().Background(colorMuted)

	overlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(1, 3).
			Width(56)
	overlayCriticalStyle = overlayStyle.Copy().BorderForeground(colorCritical)
	overlayWarningStyle  = overlayStyle.Copy().BorderForeground(colorWarning)

	errorStyle = lipgloss.NewStyle().Foreground(colorCritical).Bold(true)
)
