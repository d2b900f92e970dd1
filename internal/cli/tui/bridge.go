package tui

import (
	"time"

	"github.com/RevCBH/berth/internal/events"
	tea "github.com/charmbracelet/bubbletea"
)

// Bridge connects the event bus to the bubbletea program
type Bridge struct {
	program *tea.Program
}

// NewBridge creates a new bridge for the given program
func NewBridge(program *tea.Program) *Bridge {
	return &Bridge{
		program: program,
	}
}

// Handler returns an event handler function for the event bus
func (b *Bridge) Handler() events.Handler {
	return func(evt events.Event) {
		msg := b.eventToMsg(evt)
		if msg != nil {
			b.program.Send(msg)
		}
	}
}

// eventToMsg converts an events.Event to a tea.Msg
func (b *Bridge) eventToMsg(evt events.Event) tea.Msg {
	payload, _ := evt.Payload.(map[string]any)

	switch evt.Type {
	case events.BatchStarted:
		total, _ := payload["workloads"].(int)
		return BatchStartedMsg{Total: total}

	case events.WorkloadResolved:
		return phase(evt, "resolved", IconActive)

	case events.WorkloadSkipped:
		return phase(evt, "skipped", IconActive)

	case events.WorkloadPulled:
		return phase(evt, "pulled", IconPull)

	case events.WorkloadCreated:
		return phase(evt, "created", IconCreate)

	case events.WorkloadStarted:
		return phase(evt, "started", IconActive)

	case events.WorkloadAwaiting:
		label := "waiting"
		if waiting, ok := payload["waiting"].(string); ok && waiting != "" {
			label = "waiting " + waiting
		}
		return phase(evt, label, IconWaiting)

	case events.WorkloadRestarting:
		return phase(evt, "restarting", IconActive)

	case events.WorkloadStopping:
		return phase(evt, "stopping", IconStop)

	case events.WorkloadReady:
		var elapsed time.Duration
		if ms, ok := payload["elapsed_ms"].(int64); ok {
			elapsed = time.Duration(ms) * time.Millisecond
		}
		return WorkloadReadyMsg{Key: evt.Workload, Elapsed: elapsed}

	case events.WorkloadFailed:
		return WorkloadFailedMsg{Key: evt.Workload, Error: evt.Error}

	default:
		return nil
	}
}

func phase(evt events.Event, label, icon string) WorkloadPhaseMsg {
	return WorkloadPhaseMsg{
		Key:       evt.Workload,
		Container: evt.Container,
		Phase:     label,
		PhaseIcon: icon,
	}
}

// SendDone sends a DoneMsg to the program
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}

// SendQuit sends a QuitMsg to the program
func (b *Bridge) SendQuit() {
	b.program.Send(QuitMsg{})
}
