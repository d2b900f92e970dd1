package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RevCBH/berth/internal/orchestrator"
	"github.com/RevCBH/berth/internal/store"
	"github.com/RevCBH/berth/internal/tracker"
)

// DownOptions holds flags for the down command
type DownOptions struct {
	Batch          string // Batch label (default: latest running batch)
	Keep           bool
	RemoveVolumes  bool
	RemoveNetworks bool

	// set records which teardown flags were given explicitly
	set map[string]bool
}

// NewDownCmd creates the down command
func NewDownCmd(app *App) *cobra.Command {
	var opts DownOptions

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop a detached batch",
		Long: `Down stops and removes the containers of a batch started with
'berth up --detach'. Containers are found by their batch label, so this
works from a different process than the one that started them.

Without --batch the project's most recent running batch is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.set = map[string]bool{}
			for _, name := range []string{"keep", "remove-volumes", "remove-networks"} {
				opts.set[name] = cmd.Flags().Changed(name)
			}
			return app.RunDown(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Batch, "batch", "", "Batch label (default: latest running batch)")
	cmd.Flags().BoolVar(&opts.Keep, "keep", false, "Stop containers without removing them")
	cmd.Flags().BoolVar(&opts.RemoveVolumes, "remove-volumes", false, "Remove anonymous volumes with the containers")
	cmd.Flags().BoolVar(&opts.RemoveNetworks, "remove-networks", false, "Remove custom networks the batch used")

	return cmd
}

// RunDown tears down a batch by label and records the outcome
func (a *App) RunDown(ctx context.Context, out io.Writer, opts DownOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, a.verbose, isTerminal(a.logSink), a.logSink)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	handler := NewSignalHandler(cancel, logger)
	handler.StartWithNotify(a.notifySignals)
	defer handler.Stop()

	st, err := a.wire(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	batch := opts.Batch
	if batch == "" {
		run, err := st.Store.GetLatestRun(ctx, cfg.Project, store.RunStatusRunning)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no running batch recorded for project %s; pass --batch", cfg.Project)
		}
		batch = run.ID
	}
	st.Logger = st.Logger.With(zap.String("batch", batch))

	stopOpts := orchestrator.StopOptions{
		Keep:           pick(opts.set["keep"], opts.Keep, cfg.Teardown.Keep),
		RemoveVolumes:  pick(opts.set["remove-volumes"], opts.RemoveVolumes, cfg.Teardown.RemoveVolumes),
		RemoveNetworks: pick(opts.set["remove-networks"], opts.RemoveNetworks, cfg.Teardown.RemoveNetworks),
	}

	subscribeOutput(st.Events, out, false)

	timeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	stopCtx, stopCancel := context.WithTimeout(ctx, timeout)
	defer stopCancel()

	stopErr := st.Service.StopLabeled(stopCtx, tracker.BatchLabel(batch), stopOpts)

	// Batches not recorded by this state dir are stopped but not tracked.
	if run, err := st.Store.GetRun(context.WithoutCancel(ctx), batch); err == nil && run != nil {
		status := store.RunStatusStopped
		var msg *string
		if stopErr != nil {
			status = store.RunStatusFailed
			s := stopErr.Error()
			msg = &s
		}
		if err := st.Store.UpdateRunStatus(context.WithoutCancel(ctx), batch, status, msg); err != nil {
			st.Logger.Warn("failed to record run status", zap.Error(err))
		}
	}

	return stopErr
}

func pick(explicit, flag, fallback bool) bool {
	if explicit {
		return flag
	}
	return fallback
}
