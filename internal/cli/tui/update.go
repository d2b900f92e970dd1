package tui

import tea "github.com/charmbracelet/bubbletea"

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q":
			m.Quitting = true
			return m, tea.Quit
		case "ctrl+c":
			// The terminal is in raw mode, so no SIGINT reaches the process.
			m.Interrupted = true
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case TickMsg:
		// Continue ticking for timer updates
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case QuitMsg:
		m.Quitting = true
		return m, tea.Quit

	case BatchStartedMsg:
		m.Total = msg.Total

	case WorkloadPhaseMsg:
		w := m.workload(msg.Key)
		if msg.Container != "" {
			w.Container = msg.Container
		}
		w.Phase = msg.Phase
		w.PhaseIcon = msg.PhaseIcon

	case WorkloadReadyMsg:
		w := m.workload(msg.Key)
		if !w.Done {
			m.Ready++
		}
		w.Done = true
		w.Elapsed = msg.Elapsed
		w.Phase = "ready"
		w.PhaseIcon = IconComplete

	case WorkloadFailedMsg:
		w := m.workload(msg.Key)
		if !w.Failed {
			m.Failed++
		}
		w.Failed = true
		w.Error = msg.Error
		w.Phase = "failed"
		w.PhaseIcon = IconFailed

	case LogMsg:
		m.LogLines = append(m.LogLines, msg.Line)
		if m.LogLimit > 0 && len(m.LogLines) > m.LogLimit {
			m.LogLines = m.LogLines[len(m.LogLines)-m.LogLimit:]
		}
	}

	return m, nil
}

// workload returns the state for key, adding it in arrival order.
func (m *Model) workload(key string) *WorkloadState {
	w, ok := m.Workloads[key]
	if !ok {
		w = &WorkloadState{Key: key}
		m.Workloads[key] = w
		m.Order = append(m.Order, key)
	}
	return w
}
