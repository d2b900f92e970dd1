package tui

import (
	"bytes"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// LogMsg is emitted when a log line should be appended to the TUI.
type LogMsg struct {
	Line string
}

// LogWriter is a zap sink that streams log lines into the TUI so they do
// not tear the alt screen.
type LogWriter struct {
	send    func(tea.Msg)
	mu      sync.Mutex
	buffer  bytes.Buffer
	maxLine int
	lines   chan string
	done    chan struct{}
	closed  bool
}

// NewLogWriter creates a LogWriter that sends log lines into the program.
func NewLogWriter(program *tea.Program) *LogWriter {
	return newLogWriter(program.Send)
}

func newLogWriter(send func(tea.Msg)) *LogWriter {
	w := &LogWriter{
		send:    send,
		maxLine: 2000,
		lines:   make(chan string, 200),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for line := range w.lines {
			w.send(LogMsg{Line: line})
		}
	}()
	return w
}

// Write implements io.Writer, splitting log output into lines.
func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, _ = w.buffer.Write(p)

	for {
		data := w.buffer.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}

		line := string(data[:idx])
		w.buffer.Next(idx + 1)
		w.sendLine(line)
	}

	return len(p), nil
}

// Sync implements zapcore.WriteSyncer by flushing any partial line.
func (w *LogWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buffer.Len() == 0 {
		return nil
	}
	line := w.buffer.String()
	w.buffer.Reset()
	w.sendLine(line)
	return nil
}

// Close stops forwarding once queued lines are delivered. Later writes
// are discarded.
func (w *LogWriter) Close() {
	_ = w.Sync()
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *LogWriter) sendLine(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" || w.closed {
		return
	}
	if w.maxLine > 0 && len(line) > w.maxLine {
		line = line[:w.maxLine] + "..."
	}
	// Drop rather than block logging when the UI falls behind.
	select {
	case w.lines <- line:
	default:
	}
}
