package monitor

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF0000")
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")
	colorDim    = lipgloss.Color("#444444")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	dictatingDotStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	idleDotStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	spokenStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Italic(true)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	sessionStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)
