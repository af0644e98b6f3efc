// Package replay renders recorded run journals for forensic review.
package replay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Component color scheme - each component has a distinct, consistent color.
var (
	// Structural / metadata
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - labels

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")) // White - values

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - headers

	// Planner - Blue
	planStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Policy engine - Cyan
	policyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	// Simulation sandbox - Yellow
	simStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	// Execution - default/white
	execStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	// Reflection - Magenta
	reflectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13"))

	// Autonomy cycles - White bold
	cycleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	// Project governance - Orange
	governanceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	// Outcomes
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	// Timeline
	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)
