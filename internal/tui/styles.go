package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorWhite     = lipgloss.Color("#FFFFFF")
	colorLightGray = lipgloss.Color("#CCCCCC")
	colorGray      = lipgloss.Color("#888888")
	colorDarkGray  = lipgloss.Color("#444444")
	colorGreen     = lipgloss.Color("#00FF00")
	colorYellow    = lipgloss.Color("#FFFF00")
	colorRed       = lipgloss.Color("#FF0000")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Align(lipgloss.Center).
			MarginTop(1).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorLightGray).
			Align(lipgloss.Center).
			MarginBottom(2)

	commandStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Bold(true)

	commandDescStyle = lipgloss.NewStyle().
				Foreground(colorGray).
				PaddingLeft(1)

	inputStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorLightGray)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorLightGray).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorDarkGray).
			Italic(true).
			MarginTop(1)

	onlineStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	offlineStyle = lipgloss.NewStyle().Foreground(colorDarkGray)
	typingStyle  = lipgloss.NewStyle().Foreground(colorYellow).Italic(true)

	connectedStyle    = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	connectingStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	disconnectedStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

const logo = `
   ██████╗ ██████╗ ██╗     ██╗      █████╗ ██████╗ ██╗  ██╗██╗████████╗
  ██╔════╝██╔═══██╗██║     ██║     ██╔══██╗██╔══██╗██║ ██╔╝██║╚══██╔══╝
  ██║     ██║   ██║██║     ██║     ███████║██████╔╝█████╔╝ ██║   ██║
  ██║     ██║   ██║██║     ██║     ██╔══██║██╔══██╗██╔═██╗ ██║   ██║
  ╚██████╗╚██████╔╝███████╗███████╗██║  ██║██████╔╝██║  ██╗██║   ██║
   ╚═════╝ ╚═════╝ ╚══════╝╚═════╝ ╚═╝  ╚═╝╚═════╝ ╚═╝  ╚═╝╚═╝   ╚═╝
`
