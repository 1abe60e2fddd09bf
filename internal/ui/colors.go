package ui

import "github.com/charmbracelet/lipgloss"

// Palette used across the CLI's table and prompt rendering.
var (
	ColorAccent = lipgloss.Color("39")  // blue: headers, highlighted paths
	ColorWarn   = lipgloss.Color("214") // amber: warnings, pending state
	ColorPass   = lipgloss.Color("42")  // green: success, vaults
	ColorFail   = lipgloss.Color("196") // red: errors, refused actions
	ColorMuted  = lipgloss.Color("245") // gray: hints, borders
)
