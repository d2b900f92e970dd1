package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	handler := LogHandler(LogConfig{Writer: &buf, IncludePayload: true})

	handler(Event{
		Time:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Type:     WorkloadReady,
		Workload: "db",
		Payload:  map[string]any{"elapsed_ms": 120},
	})

	output := buf.String()
	for _, want := range []string{"2024-05-01T10:00:00Z", "[workload.ready]", "db", "elapsed_ms:120"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got: %s", want, output)
		}
	}
}

func TestLogHandler_DefaultWriter(t *testing.T) {
	// Should not panic with the default writer
	LogHandler(LogConfig{})(Event{Type: BatchStarted})
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := JSONHandler(&buf)

	handler(NewEvent(WorkloadFailed, "web").WithBatch("01H").WithError(errors.New("boom")))

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if decoded["type"] != "workload.failed" || decoded["workload"] != "web" || decoded["error"] != "boom" {
		t.Errorf("unexpected json: %v", decoded)
	}
}

func TestZapHandler_Levels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := ZapHandler(zap.New(core))

	handler(NewEvent(WorkloadStarted, "db").WithContainer("abc"))
	handler(NewEvent(WorkloadFailed, "db").WithError(errors.New("died")))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.DebugLevel {
		t.Errorf("expected debug for start, got %s", entries[0].Level)
	}
	if entries[1].Level != zap.WarnLevel {
		t.Errorf("expected warn for failure, got %s", entries[1].Level)
	}
	if entries[1].ContextMap()["error"] != "died" {
		t.Errorf("expected error field, got %v", entries[1].ContextMap())
	}
}

func TestBus_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	bus := NewBus(4)

	var mu sync.Mutex
	var got []EventType
	bus.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type)
		if e.Time.IsZero() {
			t.Error("bus should stamp event time")
		}
	})

	want := []EventType{BatchStarted, WorkloadCreated, WorkloadStarted, WorkloadReady, BatchReady, BatchStopping, BatchStopped}
	for _, et := range want {
		bus.Emit(NewEvent(et, ""))
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBus_EmitAfterCloseIsDropped(t *testing.T) {
	bus := NewBus(1)
	calls := 0
	bus.Subscribe(func(Event) { calls++ })
	bus.Close()
	bus.Emit(NewEvent(BatchStarted, ""))
	bus.Close()

	if calls != 0 {
		t.Errorf("expected no deliveries after close, got %d", calls)
	}
}
