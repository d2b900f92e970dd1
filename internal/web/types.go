package web

import (
	"net/http"
	"time"

	"github.com/RevCBH/berth/internal/events"
	"github.com/RevCBH/berth/internal/tracker"
)

// Config holds the monitor server's wiring.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:9464)
	Addr string

	// Containers reports what is currently tracked
	Containers func() []tracker.Descriptor

	// Metrics serves the prometheus exposition, if set
	Metrics http.Handler
}

// ContainerView is one tracked container as served by /api/containers.
type ContainerView struct {
	ID           string    `json:"id"`
	Workload     string    `json:"workload"`
	Alias        string    `json:"alias,omitempty"`
	Batch        string    `json:"batch,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Event is the JSON shape streamed over /api/events.
type Event struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	Batch     string    `json:"batch,omitempty"`
	Workload  string    `json:"workload,omitempty"`
	Container string    `json:"container,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func viewOf(d tracker.Descriptor) ContainerView {
	return ContainerView{
		ID:           d.ContainerID,
		Workload:     d.Workload.Name,
		Alias:        d.Workload.Alias,
		Batch:        string(d.Batch),
		RegisteredAt: d.RegisteredAt,
	}
}

func wireEvent(e events.Event) *Event {
	return &Event{
		Type:      string(e.Type),
		Time:      e.Time,
		Batch:     e.Batch,
		Workload:  e.Workload,
		Container: e.Container,
		Payload:   e.Payload,
		Error:     e.Error,
	}
}
