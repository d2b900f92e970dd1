package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// WorkloadState tracks the state of a single workload in the TUI
type WorkloadState struct {
	Key       string
	Container string
	Phase     string
	PhaseIcon string
	Elapsed   time.Duration
	Error     string
	Done      bool
	Failed    bool
}

// Model is the bubbletea model for the TUI
type Model struct {
	// Configuration
	Project string
	Batch   string
	Styles  Styles

	// State
	Total     int
	Order     []string
	Workloads map[string]*WorkloadState
	Ready     int
	Failed    int
	StartTime time.Time
	LogLines  []string
	LogLimit  int
	Width     int
	Height    int

	// Control
	Quitting    bool
	Interrupted bool
	Done        bool
}

// NewModel creates a new TUI model
func NewModel(project, batch string) *Model {
	return &Model{
		Project:   project,
		Batch:     batch,
		Styles:    DefaultStyles(),
		Workloads: make(map[string]*WorkloadState),
		StartTime: time.Now(),
		LogLimit:  200,
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
	)
}

// TickMsg is sent every second to update the timer
type TickMsg time.Time

// tickCmd returns a command that sends TickMsg every second
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg signals the TUI should exit
type DoneMsg struct{}

// QuitMsg signals the user requested quit (q or Ctrl+C)
type QuitMsg struct{}

// BatchStartedMsg carries the number of workloads submitted
type BatchStartedMsg struct {
	Total int
}

// WorkloadPhaseMsg moves a workload to a new phase
type WorkloadPhaseMsg struct {
	Key       string
	Container string
	Phase     string
	PhaseIcon string
}

// WorkloadReadyMsg indicates a workload passed its readiness checks
type WorkloadReadyMsg struct {
	Key     string
	Elapsed time.Duration
}

// WorkloadFailedMsg indicates a workload could not be started
type WorkloadFailedMsg struct {
	Key   string
	Error string
}
