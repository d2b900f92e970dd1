package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains all lipgloss styles for the TUI
type Styles struct {
	// Header styling
	Title lipgloss.Style
	Timer lipgloss.Style
	Batch lipgloss.Style

	// Workload styling
	WorkloadActive lipgloss.Style
	WorkloadReady  lipgloss.Style
	WorkloadFailed lipgloss.Style
	WorkloadName   lipgloss.Style

	// Phase icons and text
	PhaseIcon lipgloss.Style
	PhaseText lipgloss.Style

	// Footer styling
	Footer    lipgloss.Style
	FooterKey lipgloss.Style

	// Status counts
	StatusReady  lipgloss.Style
	StatusFailed lipgloss.Style
	StatusActive lipgloss.Style

	// Log area styling
	LogTitle lipgloss.Style
	LogLine  lipgloss.Style
}

// DefaultStyles returns the default TUI styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Timer: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Batch: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		WorkloadActive: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		WorkloadReady:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		WorkloadFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		WorkloadName:   lipgloss.NewStyle().Bold(true),

		PhaseIcon: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		PhaseText: lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Italic(true),

		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1),
		FooterKey: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),

		StatusReady:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		StatusFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		StatusActive: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),

		LogTitle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true),
		LogLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Icons used in the TUI
const (
	IconActive   = "●"
	IconComplete = "✓"
	IconFailed   = "✗"
	IconPull     = "⬇"
	IconCreate   = "📦"
	IconWaiting  = "⏳"
	IconStop     = "■"
)
