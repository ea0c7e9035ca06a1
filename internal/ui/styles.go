package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorDanger    = lipgloss.Color("196") // Red
)

// SelectedItem style for the row under the cursor.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary)

// NormalItem style for unselected rows.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// MetaText style for the second line of expanded rows.
var MetaText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ScoreUp and ScoreDown color the score when the user has voted.
var (
	ScoreUp      = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	ScoreDown    = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	ScoreNeutral = lipgloss.NewStyle().Foreground(colorSecondary)
)

// TabActive and TabInactive render the feed tabs in the header.
var TabActive = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

var TabInactive = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// Sentinel style for the row below the last item.
var Sentinel = lipgloss.NewStyle().
	Foreground(colorMuted).
	Italic(true)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for error notices.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorDanger).
	Bold(true).
	Padding(0, 1)

// InfoStyle for informational notices.
var InfoStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(0, 1)
