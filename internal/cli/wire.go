package cli

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/RevCBH/berth/internal/config"
	"github.com/RevCBH/berth/internal/events"
	"github.com/RevCBH/berth/internal/metrics"
	"github.com/RevCBH/berth/internal/orchestrator"
	"github.com/RevCBH/berth/internal/pullcache"
	"github.com/RevCBH/berth/internal/store"
	"github.com/RevCBH/berth/internal/wait"
)

// eventBufferSize is the bus capacity; emitters block when it fills.
const eventBufferSize = 1000

// Stack holds all wired components for one command invocation
type Stack struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   *store.DB
	Events  *events.Bus
	Metrics *metrics.Metrics
	Service *orchestrator.Service
}

// wire assembles the orchestration service and its collaborators
func (a *App) wire(cfg *config.Config, logger *zap.Logger) (*Stack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	policy, err := cfg.PullPolicy()
	if err != nil {
		return nil, err
	}

	runtime, err := a.newRuntime(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("container runtime: %w", err)
	}

	db, err := store.OpenDir(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	// Create event bus first (other components depend on it)
	bus := events.NewBus(eventBufferSize)
	bus.Subscribe(events.ZapHandler(logger))

	m := metrics.New()
	bus.Subscribe(m.EventHandler())

	svc := orchestrator.New(orchestrator.Config{
		Project:           cfg.Project,
		NamePattern:       cfg.ContainerNamePattern,
		HostAddress:       cfg.HostAddress,
		PullPolicy:        policy,
		ShowLogsOnFailure: cfg.ShowLogsOnFailure,
		Strict:            cfg.Teardown.Strict,
	}, orchestrator.Dependencies{
		Runtime:   runtime,
		PullCache: pullcache.New(db, cfg.Project),
		Bus:       bus,
		Logger:    logger,
		Waiter:    wait.New(logger),
	})

	return &Stack{
		Config:  cfg,
		Logger:  logger,
		Store:   db,
		Events:  bus,
		Metrics: m,
		Service: svc,
	}, nil
}

// Close drains the event bus and closes the state database
func (s *Stack) Close() error {
	var errs []error
	if s.Events != nil {
		if err := s.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close state: %w", err))
		}
	}
	_ = s.Logger.Sync()
	return errors.Join(errs...)
}

// subscribeOutput attaches the plain-text or JSON event printer
func subscribeOutput(bus *events.Bus, w io.Writer, jsonOutput bool) {
	if jsonOutput {
		bus.Subscribe(events.JSONHandler(w))
		return
	}
	bus.Subscribe(events.LogHandler(events.LogConfig{Writer: w, TimeFormat: "15:04:05"}))
}
