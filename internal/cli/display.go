package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/RevCBH/berth/internal/store"
	"github.com/RevCBH/berth/internal/workload"
)

// DisplayConfig controls plan and status output formatting
type DisplayConfig struct {
	UseColor bool // Enable ANSI color codes
	Now      time.Time
}

// StatusSymbol is the leading marker of a displayed line
type StatusSymbol string

const (
	SymbolRunning StatusSymbol = "●"
	SymbolStopped StatusSymbol = "○"
	SymbolFailed  StatusSymbol = "✗"
	SymbolSkipped StatusSymbol = "-"
	SymbolDep     StatusSymbol = "→"
)

type palette struct {
	heading lipgloss.Style
	name    lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	bad     lipgloss.Style
}

func newPalette(useColor bool) palette {
	if !useColor {
		plain := lipgloss.NewStyle()
		return palette{plain, plain, plain, plain, plain}
	}
	return palette{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		name:    lipgloss.NewStyle().Bold(true),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// GetRunSymbol returns the symbol for a run status
func GetRunSymbol(status store.RunStatus) StatusSymbol {
	switch status {
	case store.RunStatusRunning:
		return SymbolRunning
	case store.RunStatusFailed:
		return SymbolFailed
	default:
		return SymbolStopped
	}
}

// FormatPlan renders the resolved start order, one workload per line
// followed by its dependencies.
func FormatPlan(project string, ordered []workload.Workload, cfg DisplayConfig) string {
	p := newPalette(cfg.UseColor)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", p.heading.Render(fmt.Sprintf("Start order for %s (%d workloads)", project, len(ordered))))
	for i, w := range ordered {
		symbol := SymbolRunning
		suffix := ""
		if w.Run.Skip {
			symbol = SymbolSkipped
			suffix = p.dim.Render(" (skipped)")
		}
		fmt.Fprintf(&b, " %2d. %s %s%s\n", i+1, symbol, p.name.Render(w.Description()), suffix)
		if deps := w.Dependencies(); len(deps) > 0 {
			fmt.Fprintf(&b, "       %s %s\n", SymbolDep, p.dim.Render("needs "+strings.Join(deps, ", ")))
		}
	}
	return b.String()
}

// FormatRuns renders recorded batches, newest first
func FormatRuns(project string, runs []*store.Run, cfg DisplayConfig) string {
	p := newPalette(cfg.UseColor)
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.heading.Render("Batches for "+project))
	if len(runs) == 0 {
		b.WriteString("  No batches recorded\n")
		return b.String()
	}

	for _, r := range runs {
		symbol := string(GetRunSymbol(r.Status))
		switch r.Status {
		case store.RunStatusRunning:
			symbol = p.ok.Render(symbol)
		case store.RunStatusFailed:
			symbol = p.bad.Render(symbol)
		}

		var when string
		if r.StoppedAt != nil {
			when = fmt.Sprintf("ran %s", r.StoppedAt.Sub(r.StartedAt).Round(time.Second))
		} else {
			when = fmt.Sprintf("up %s", cfg.Now.Sub(r.StartedAt).Round(time.Second))
		}

		fmt.Fprintf(&b, "  %s %s  %-8s %d containers  %s  %s\n",
			symbol,
			p.name.Render(r.ID),
			r.Status,
			r.Workloads,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			p.dim.Render(when),
		)
		if r.Error != nil {
			fmt.Fprintf(&b, "      %s\n", p.bad.Render(*r.Error))
		}
	}
	return b.String()
}
