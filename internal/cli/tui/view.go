package tui

import (
	"fmt"
	"strings"
	"time"
)

// logTail is how many log lines are shown under the workload list.
const logTail = 8

// View implements tea.Model
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}

	var b strings.Builder

	// Header
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	b.WriteString(m.renderWorkloads())

	// Status line
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")

	b.WriteString(m.renderLogs())

	// Footer
	b.WriteString(m.renderFooter())

	return b.String()
}

// renderHeader renders the title line with timer and batch label
func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	timer := fmt.Sprintf("[%s]", formatDuration(elapsed))
	batch := fmt.Sprintf("Batch: %s", m.Batch)

	return fmt.Sprintf("%s  %s  %s",
		m.Styles.Title.Render("berth "+m.Project),
		m.Styles.Timer.Render(timer),
		m.Styles.Batch.Render(batch),
	)
}

// renderWorkloads renders workloads in the order they were first seen
func (m *Model) renderWorkloads() string {
	if len(m.Order) == 0 {
		return "  Resolving workloads...\n\n"
	}

	var b strings.Builder
	for _, key := range m.Order {
		b.WriteString(m.renderWorkload(m.Workloads[key]))
	}
	b.WriteString("\n")
	return b.String()
}

// renderWorkload renders one line: ● db  waiting for tcp ports 5432
func (m *Model) renderWorkload(w *WorkloadState) string {
	var icon string
	switch {
	case w.Failed:
		icon = m.Styles.WorkloadFailed.Render(IconFailed)
	case w.Done && w.Phase == "ready":
		icon = m.Styles.WorkloadReady.Render(IconComplete)
	default:
		icon = m.Styles.WorkloadActive.Render(IconActive)
	}

	name := m.Styles.WorkloadName.Render(fmt.Sprintf("%-20s", w.Key))
	phase := w.Phase
	if w.Done && w.Phase == "ready" && w.Elapsed > 0 {
		phase = fmt.Sprintf("ready in %s", w.Elapsed.Round(time.Millisecond))
	}
	line := fmt.Sprintf("  %s %s %s %s",
		icon, name, m.Styles.PhaseIcon.Render(w.PhaseIcon), m.Styles.PhaseText.Render(phase))
	if w.Error != "" {
		line += "\n      " + m.Styles.WorkloadFailed.Render(w.Error)
	}
	return line + "\n"
}

// renderStatusLine renders the summary status line
func (m *Model) renderStatusLine() string {
	active := len(m.Order) - m.Ready - m.Failed

	ready := m.Styles.StatusReady.Render(fmt.Sprintf("%d ready", m.Ready))
	failed := m.Styles.StatusFailed.Render(fmt.Sprintf("%d failed", m.Failed))
	starting := m.Styles.StatusActive.Render(fmt.Sprintf("%d starting", active))

	return fmt.Sprintf("  Workloads: %d/%d %s | %s | %s",
		m.Ready+m.Failed,
		m.Total,
		ready,
		failed,
		starting,
	)
}

func (m *Model) renderLogs() string {
	if len(m.LogLines) == 0 {
		return ""
	}
	lines := m.LogLines
	if len(lines) > logTail {
		lines = lines[len(lines)-logTail:]
	}

	var b strings.Builder
	b.WriteString("\n" + m.Styles.LogTitle.Render("  Log") + "\n")
	for _, l := range lines {
		b.WriteString("  " + m.Styles.LogLine.Render(l) + "\n")
	}
	return b.String()
}

// renderFooter renders the help text
func (m *Model) renderFooter() string {
	key := m.Styles.FooterKey.Render("q")
	return m.Styles.Footer.Render(fmt.Sprintf("  Press %s to hide, Ctrl+C to stop the batch", key))
}

// formatDuration formats a duration as HH:MM:SS
func formatDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
