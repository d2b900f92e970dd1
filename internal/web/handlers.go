package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/RevCBH/berth/internal/tracker"
)

// ContainersHandler returns the tracked containers as JSON.
// GET /api/containers
func ContainersHandler(snapshot func() []tracker.Descriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views := []ContainerView{}
		if snapshot != nil {
			for _, d := range snapshot() {
				views = append(views, viewOf(d))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

// ContainerHandler returns one tracked container looked up by workload
// name, alias or container ID.
// GET /api/containers/{name}
func ContainerHandler(snapshot func() []tracker.Descriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if snapshot != nil {
			for _, d := range snapshot() {
				if d.ContainerID == name || d.Workload.Name == name || (d.Workload.Alias != "" && d.Workload.Alias == name) {
					w.Header().Set("Content-Type", "application/json")
					json.NewEncoder(w).Encode(viewOf(d))
					return
				}
			}
		}
		http.Error(w, "container not tracked", http.StatusNotFound)
	}
}

// BatchesHandler lists the batch labels that still have tracked containers.
// GET /api/batches
func BatchesHandler(snapshot func() []tracker.Descriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts := make(map[string]int)
		if snapshot != nil {
			for _, d := range snapshot() {
				if d.Batch != "" {
					counts[string(d.Batch)]++
				}
			}
		}
		type batch struct {
			Label      string `json:"label"`
			Containers int    `json:"containers"`
		}
		out := []batch{}
		for label, n := range counts {
			out = append(out, batch{Label: label, Containers: n})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// EventsHandler provides the SSE event stream.
// GET /api/events[?batch=<label>]
// Sets appropriate headers and streams events to the client.
func EventsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		client := NewClient(generateID(), r.URL.Query().Get("batch"))
		if !hub.Register(client) {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		defer hub.Unregister(client)

		// Send initial comment to establish connection
		fmt.Fprintf(w, ": connected\n\n")
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-client.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
				flusher.Flush()
			}
		}
	}
}

// generateID generates a random client ID.
func generateID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less random but still unique ID
		return hex.EncodeToString([]byte("fallback"))
	}
	return hex.EncodeToString(bytes)
}
