package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RevCBH/berth/internal/orchestrator"
)

// PlanOptions holds flags for the plan command
type PlanOptions struct {
	JSON bool // Output as JSON instead of formatted text
}

// NewPlanCmd creates the plan command
func NewPlanCmd(app *App) *cobra.Command {
	var opts PlanOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the resolved start order",
		Long: `Plan resolves workload dependencies and prints the order in which
'berth up' would start them. Containers that already exist satisfy
dependencies on names outside the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ShowPlan(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON instead of formatted text")

	return cmd
}

type planEntry struct {
	Position     int      `json:"position"`
	Name         string   `json:"name"`
	Alias        string   `json:"alias,omitempty"`
	Skip         bool     `json:"skip,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// ShowPlan resolves and prints the start order
func (a *App) ShowPlan(cmd *cobra.Command, opts PlanOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, a.verbose, true, a.logSink)
	if err != nil {
		return err
	}

	runtime, err := a.newRuntime(cfg.Runtime)
	if err != nil {
		return fmt.Errorf("container runtime: %w", err)
	}
	svc := orchestrator.New(orchestrator.Config{Project: cfg.Project}, orchestrator.Dependencies{
		Runtime: runtime,
		Logger:  logger,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ordered, err := svc.Plan(ctx, cfg.Workloads)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		entries := make([]planEntry, len(ordered))
		for i, w := range ordered {
			entries[i] = planEntry{
				Position:     i + 1,
				Name:         w.Name,
				Alias:        w.Alias,
				Skip:         w.Run.Skip,
				Dependencies: w.Dependencies(),
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	fmt.Fprint(out, FormatPlan(cfg.Project, ordered, DisplayConfig{UseColor: isTerminal(out)}))
	return nil
}
