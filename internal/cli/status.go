package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RevCBH/berth/internal/pullcache"
	"github.com/RevCBH/berth/internal/store"
)

// StatusOptions holds flags for the status command
type StatusOptions struct {
	Limit  int  // Maximum runs to show (0 = all)
	JSON   bool // Output as JSON instead of formatted text
	Pulled bool // List the project's auto-pulled images instead of runs
}

// NewStatusCmd creates the status command
func NewStatusCmd(app *App) *cobra.Command {
	opts := StatusOptions{
		Limit: 10,
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded batches",
		Long:  `Display the batches started by 'berth up' for this project, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ShowStatus(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "Maximum batches to show (0 = all)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON instead of formatted text")
	cmd.Flags().BoolVar(&opts.Pulled, "pulled", false, "List images already auto-pulled for this project")

	return cmd
}

type runJSON struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Workloads int     `json:"workloads"`
	StartedAt string  `json:"started_at"`
	StoppedAt *string `json:"stopped_at,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// ShowStatus prints the project's recorded runs
func (a *App) ShowStatus(cmd *cobra.Command, opts StatusOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := store.OpenDir(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	if opts.Pulled {
		return showPulled(cmd, pullcache.New(db, cfg.Project), opts.JSON)
	}

	runs, err := db.ListRuns(cmd.Context(), cfg.Project, opts.Limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		items := make([]runJSON, 0, len(runs))
		for _, r := range runs {
			item := runJSON{
				ID:        r.ID,
				Status:    string(r.Status),
				Workloads: r.Workloads,
				StartedAt: r.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
				Error:     r.Error,
			}
			if r.StoppedAt != nil {
				s := r.StoppedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
				item.StoppedAt = &s
			}
			items = append(items, item)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	fmt.Fprint(out, FormatRuns(cfg.Project, runs, DisplayConfig{UseColor: isTerminal(out)}))
	return nil
}

// showPulled lists the images the pull cache holds. They are not pulled
// again under the IfNotPresent policy.
func showPulled(cmd *cobra.Command, cache *pullcache.Cache, asJSON bool) error {
	images, err := cache.Images(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(images)
	}
	if len(images) == 0 {
		fmt.Fprintln(out, "No images pulled yet")
		return nil
	}
	for _, img := range images {
		fmt.Fprintln(out, img)
	}
	return nil
}
