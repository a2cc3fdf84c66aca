// Package ui provides the status display for a live viewer session.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary = lipgloss.Color("39")  // Bright blue
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorError   = lipgloss.Color("196") // Red
	ColorInfo    = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	connectedStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	reconnectingStyle = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	advisoryStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			MarginTop(1)
)
