package ui

import "github.com/charmbracelet/lipgloss"

// Color palette shared by the renderer, the highlighter and the viewer.
var (
	salmonPink   = lipgloss.Color("#FFB3BA") // accent, current entry
	coralPink    = lipgloss.Color("#FFCCCB") // pending entry
	mintGreen    = lipgloss.Color("#A8E6CF") // URLs, strings
	skyBlue      = lipgloss.Color("#A0C4FF") // keys, subframes
	butterYellow = lipgloss.Color("#FDFFB6") // numbers
	mutedGray    = lipgloss.Color("#6B7280") // secondary text
	brightWhite  = lipgloss.Color("#F9FAFB") // primary text
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	subtleStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	currentStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(coralPink).
			Italic(true)

	urlStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	frameStyle = lipgloss.NewStyle().
			Foreground(skyBlue)

	textStyle = lipgloss.NewStyle().
			Foreground(brightWhite)

	badgeStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1)
)
