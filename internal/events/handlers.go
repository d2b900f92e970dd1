package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogConfig configures the logging handler
type LogConfig struct {
	// Writer is where logs are written (default: os.Stderr)
	Writer io.Writer

	// IncludePayload includes event payload in log output
	IncludePayload bool

	// TimeFormat is the timestamp format (default: RFC3339)
	TimeFormat string
}

// LogHandler returns a handler that writes one line per event
// Format: <time> [event.type] workload container=<id> error=<msg>
func LogHandler(cfg LogConfig) Handler {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	return func(e Event) {
		var buf strings.Builder
		buf.WriteString(e.Time.Format(cfg.TimeFormat))
		buf.WriteString(" ")
		buf.WriteString(e.String())
		if cfg.IncludePayload && e.Payload != nil {
			fmt.Fprintf(&buf, " payload=%v", e.Payload)
		}
		buf.WriteString("\n")

		fmt.Fprint(cfg.Writer, buf.String())
	}
}

// JSONHandler returns a handler that writes newline-delimited JSON events,
// for piping `berth up` into other tools.
func JSONHandler(w io.Writer) Handler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(e)
	}
}

// ZapHandler returns a handler that records events in the structured log.
// Failures log at warn level, everything else at debug.
func ZapHandler(logger *zap.Logger) Handler {
	return func(e Event) {
		fields := []zap.Field{zap.String("event", string(e.Type))}
		if e.Batch != "" {
			fields = append(fields, zap.String("batch", e.Batch))
		}
		if e.Workload != "" {
			fields = append(fields, zap.String("workload", e.Workload))
		}
		if e.Container != "" {
			fields = append(fields, zap.String("container", shortID(e.Container)))
		}
		if e.Payload != nil {
			fields = append(fields, zap.Any("payload", e.Payload))
		}
		if e.IsFailure() {
			fields = append(fields, zap.String("error", e.Error))
			logger.Warn("event", fields...)
			return
		}
		logger.Debug("event", fields...)
	}
}
