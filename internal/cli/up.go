package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RevCBH/berth/internal/cli/tui"
	"github.com/RevCBH/berth/internal/config"
	"github.com/RevCBH/berth/internal/orchestrator"
	"github.com/RevCBH/berth/internal/store"
	"github.com/RevCBH/berth/internal/tracker"
	"github.com/RevCBH/berth/internal/watch"
	"github.com/RevCBH/berth/internal/web"
	"github.com/RevCBH/berth/internal/workload"
)

// UpOptions holds flags for the up command
type UpOptions struct {
	Batch       string // Batch label (default: a new ULID)
	Detach      bool   // Leave containers running and exit
	Watch       bool   // Restart workloads whose watch paths change
	NoTUI       bool   // Disable TUI even when stdout is a TTY
	JSON        bool   // Print events as JSON lines
	MetricsAddr string // Serve /metrics and /api on this address
}

// Validate checks UpOptions for validity
func (opts UpOptions) Validate() error {
	if opts.Detach && opts.Watch {
		return fmt.Errorf("--watch needs a foreground batch and cannot be combined with --detach")
	}
	if opts.JSON && !opts.NoTUI {
		return fmt.Errorf("--json requires --no-tui")
	}
	return nil
}

// NewUpCmd creates the up command
func NewUpCmd(app *App) *cobra.Command {
	var opts UpOptions

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start all workloads in dependency order",
		Long: `Up resolves workload dependencies, starts each container in order and
waits until it is ready.

Unless --detach is given, up stays in the foreground and stops the
batch again on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return app.RunUp(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Batch, "batch", "", "Batch label (default: generated)")
	cmd.Flags().BoolVarP(&opts.Detach, "detach", "d", false, "Leave containers running and exit")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Restart workloads when their watch paths change")
	cmd.Flags().BoolVar(&opts.NoTUI, "no-tui", false, "Disable interactive TUI (print events as lines)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print events as JSON lines (with --no-tui)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve metrics and container state on this address")

	return cmd
}

// RunUp starts the batch and, unless detached, supervises it until
// interrupted
func (a *App) RunUp(ctx context.Context, out io.Writer, opts UpOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Workloads) == 0 {
		return fmt.Errorf("no workloads defined for project %s", cfg.Project)
	}
	if opts.MetricsAddr == "" {
		opts.MetricsAddr = cfg.MetricsAddr
	}

	batch := tracker.BatchLabel(opts.Batch)
	if batch == "" {
		batch = tracker.NewBatchLabel()
	}

	// Create cancellable context
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	useTUI := !opts.NoTUI && isTerminal(out)

	// Set up TUI if enabled; logs are routed into it
	var (
		tuiProgram *tea.Program
		tuiBridge  *tui.Bridge
		logWriter  *tui.LogWriter
		tuiDone    chan struct{}
	)
	sink := a.logSink
	if useTUI {
		tuiProgram = tea.NewProgram(tui.NewModel(cfg.Project, string(batch)), tea.WithOutput(out))
		tuiBridge = tui.NewBridge(tuiProgram)
		logWriter = tui.NewLogWriter(tuiProgram)
		sink = logWriter
	}

	logger, err := newLogger(cfg.LogLevel, a.verbose, useTUI || isTerminal(sink), sink)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("project", cfg.Project), zap.String("batch", string(batch)))

	// Setup signal handler
	handler := NewSignalHandler(cancel, logger)
	handler.StartWithNotify(a.notifySignals)
	defer handler.Stop()

	st, err := a.wire(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if useTUI {
		st.Events.Subscribe(tuiBridge.Handler())
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			final, err := tuiProgram.Run()
			if err != nil {
				logger.Warn("TUI exited", zap.Error(err))
			}
			if m, ok := final.(*tui.Model); ok && m.Interrupted {
				cancel()
			}
		}()
		defer func() {
			tuiBridge.SendDone()
			<-tuiDone
			logWriter.Close()
		}()
	} else {
		subscribeOutput(st.Events, out, opts.JSON)
	}

	var monitor *web.Server
	if opts.MetricsAddr != "" {
		monitor = web.New(web.Config{
			Addr:       opts.MetricsAddr,
			Containers: func() []tracker.Descriptor { return st.Service.Tracker().Snapshot("") },
			Metrics:    st.Metrics.Handler(),
		}, logger)
		if err := monitor.Start(); err != nil {
			return err
		}
		st.Events.Subscribe(monitor.Hub().Handler())
	}

	run := &store.Run{ID: string(batch), Project: cfg.Project}
	if err := st.Store.CreateRun(ctx, run); err != nil {
		return err
	}

	stopOpts := orchestrator.StopOptions{
		Keep:           cfg.Teardown.Keep,
		RemoveVolumes:  cfg.Teardown.RemoveVolumes,
		RemoveNetworks: cfg.Teardown.RemoveNetworks,
	}

	result, startErr := st.Service.StartAll(ctx, cfg.Workloads, batch)
	if startErr != nil {
		// Tear down what did come up before reporting the failure.
		teardownErr := a.teardown(handler, cfg, st, batch, stopOpts)
		a.finishRun(st, run.ID, store.RunStatusFailed, errors.Join(startErr, teardownErr))
		stopMonitor(monitor)
		return startErr
	}
	if err := st.Store.SetRunWorkloads(ctx, run.ID, len(result.Started)); err != nil {
		logger.Warn("failed to record workload count", zap.Error(err))
	}

	if opts.Detach {
		stopMonitor(monitor)
		if !useTUI {
			fmt.Fprintf(out, "Batch %s started %d containers in %s; stop it with 'berth down --batch %s'\n",
				batch, len(result.Started), result.Duration.Round(time.Millisecond), batch)
		}
		return nil
	}

	superviseErr := a.supervise(ctx, cfg, st, batch, opts, monitor)

	teardownErr := a.teardown(handler, cfg, st, batch, stopOpts)
	status := store.RunStatusStopped
	if superviseErr != nil {
		status = store.RunStatusFailed
	}
	a.finishRun(st, run.ID, status, errors.Join(superviseErr, teardownErr))

	return errors.Join(superviseErr, teardownErr)
}

// supervise blocks until ctx is cancelled, running the optional watcher
// and monitor server alongside
func (a *App) supervise(ctx context.Context, cfg *config.Config, st *Stack, batch tracker.BatchLabel, opts UpOptions, monitor *web.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if opts.Watch {
		interval, err := cfg.WatchIntervalDuration()
		if err != nil {
			return err
		}
		restart := func(ctx context.Context, w workload.Workload) error {
			_, err := st.Service.Restart(ctx, w, batch)
			return err
		}
		watcher, err := watch.New(watch.Config{Interval: interval, Burst: cfg.Watch.Burst}, cfg.Workloads, restart, st.Logger)
		switch {
		case errors.Is(err, watch.ErrNothingToWatch):
			st.Logger.Warn("--watch given but no workload declares watch paths")
		case err != nil:
			return err
		default:
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	if monitor != nil {
		g.Go(func() error {
			select {
			case err := <-monitor.Done():
				if err != nil {
					return fmt.Errorf("monitor server: %w", err)
				}
				return nil
			case <-gctx.Done():
				stopMonitor(monitor)
				return nil
			}
		})
	}

	return g.Wait()
}

// teardown stops the batch under a fresh shutdown_timeout context, since
// the command context is usually already cancelled by then. A second
// signal cuts it short.
func (a *App) teardown(handler *SignalHandler, cfg *config.Config, st *Stack, batch tracker.BatchLabel, opts orchestrator.StopOptions) error {
	timeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		timeout = 30 * time.Second
	}
	ctx, cancel := handler.TeardownContext(timeout)
	defer cancel()
	return st.Service.StopAll(ctx, batch, opts)
}

func (a *App) finishRun(st *Stack, id string, status store.RunStatus, runErr error) {
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	if err := st.Store.UpdateRunStatus(context.Background(), id, status, msg); err != nil {
		st.Logger.Warn("failed to record run status", zap.Error(err))
	}
}

func stopMonitor(monitor *web.Server) {
	if monitor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = monitor.Stop(ctx)
}
