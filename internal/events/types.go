package events

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a single occurrence in a batch's lifecycle
type Event struct {
	// Time is when the event occurred (set by bus on emit)
	Time time.Time `json:"time"`

	// Type identifies what happened
	Type EventType `json:"type"`

	// Batch is the batch label the event belongs to
	Batch string `json:"batch,omitempty"`

	// Workload is the workload key (alias or image name); empty for batch events
	Workload string `json:"workload,omitempty"`

	// Container is the runtime container ID once one exists
	Container string `json:"container,omitempty"`

	// Payload contains event-specific data (type varies by event)
	Payload any `json:"payload,omitempty"`

	// Error contains error message if this is a failure event
	Error string `json:"error,omitempty"`
}

// EventType is a string constant identifying the event category
type EventType string

// Batch lifecycle events
const (
	// BatchStarted payload: workload_count (int)
	BatchStarted  EventType = "batch.started"
	BatchReady    EventType = "batch.ready"
	BatchFailed   EventType = "batch.failed"
	BatchStopping EventType = "batch.stopping"
	BatchStopped  EventType = "batch.stopped"
)

// Workload state machine: Resolved -> Created -> Started -> AwaitingReadiness
// -> Ready | ReadinessFailed, then Ready -> Stopping -> Stopped.
const (
	// WorkloadResolved payload: position (int), dependencies ([]string)
	WorkloadResolved EventType = "workload.resolved"
	WorkloadSkipped  EventType = "workload.skipped"
	// WorkloadPulled payload: image (string)
	WorkloadPulled  EventType = "workload.pulled"
	WorkloadCreated EventType = "workload.created"
	WorkloadStarted EventType = "workload.started"
	// WorkloadAwaiting payload: checks (string)
	WorkloadAwaiting EventType = "workload.awaiting"
	// WorkloadReady payload: elapsed_ms (int64)
	WorkloadReady    EventType = "workload.ready"
	WorkloadFailed   EventType = "workload.failed"
	WorkloadStopping EventType = "workload.stopping"
	WorkloadStopped  EventType = "workload.stopped"
	// WorkloadTeardownFailed is a stop or remove error during teardown
	WorkloadTeardownFailed EventType = "workload.teardown.failed"
	WorkloadRestarting     EventType = "workload.restarting"
)

// Network events
const (
	NetworkCreated EventType = "network.created"
	NetworkRemoved EventType = "network.removed"
)

// NewEvent creates an event with the given type and workload
func NewEvent(eventType EventType, workload string) Event {
	return Event{
		Type:     eventType,
		Workload: workload,
	}
}

// WithBatch returns a copy of the event with the batch set
func (e Event) WithBatch(batch string) Event {
	e.Batch = batch
	return e
}

// WithContainer returns a copy of the event with the container ID set
func (e Event) WithContainer(id string) Event {
	e.Container = id
	return e
}

// WithPayload returns a copy of the event with the payload set
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// WithError returns a copy of the event with the error message set
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure returns true if this is a failure event type
func (e Event) IsFailure() bool {
	return strings.HasSuffix(string(e.Type), ".failed")
}

// String returns a human-readable representation of the event
func (e Event) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Type))

	if e.Workload != "" {
		parts = append(parts, e.Workload)
	}
	if e.Container != "" {
		parts = append(parts, "container="+shortID(e.Container))
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
