package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RevCBH/berth/internal/container"
	"github.com/RevCBH/berth/internal/events"
	"github.com/RevCBH/berth/internal/pullcache"
	"github.com/RevCBH/berth/internal/resolver"
	"github.com/RevCBH/berth/internal/tracker"
	"github.com/RevCBH/berth/internal/wait"
	"github.com/RevCBH/berth/internal/workload"
	"go.uber.org/zap"
)

// Labels applied to every container the service creates.
const (
	LabelBatch    = "berth.batch"
	LabelWorkload = "berth.workload"
	LabelProject  = "berth.project"
)

// DefaultHostAddress is dialed by mapped TCP probes when none is configured.
const DefaultHostAddress = "localhost"

// ErrNotTracked is returned when stopping a container this process did
// not start.
var ErrNotTracked = errors.New("container is not tracked")

// Service creates, supervises and tears down workload containers.
// It is safe for concurrent use; the tracker serializes shared state.
type Service struct {
	cfg      Config
	runtime  container.Runtime
	tracker  *tracker.Tracker
	pulls    *pullcache.Cache
	bus      *events.Bus
	logger   *zap.Logger
	waiter   *wait.Waiter
	resolver *resolver.Resolver

	now func() time.Time
}

// Config holds orchestration settings.
type Config struct {
	// Project is substituted for %p in name patterns and labels containers
	Project string

	// NamePattern is the default pattern for NamingAuto workloads
	NamePattern string

	// HostAddress is where mapped ports are probed
	HostAddress string

	// PullPolicy applies to workloads without their own pull policy
	PullPolicy pullcache.Policy

	// ShowLogsOnFailure dumps container output when it dies while starting
	ShowLogsOnFailure bool

	// Strict propagates teardown errors instead of only logging them
	Strict bool
}

// Dependencies bundles external dependencies for injection
type Dependencies struct {
	Runtime   container.Runtime
	Tracker   *tracker.Tracker
	PullCache *pullcache.Cache
	Bus       *events.Bus
	Logger    *zap.Logger
	Waiter    *wait.Waiter
}

// Started describes a workload whose container came up.
type Started struct {
	Workload    workload.Workload
	ContainerID string
	Name        string
	Elapsed     time.Duration
}

// Result represents the outcome of StartAll
type Result struct {
	Batch    tracker.BatchLabel
	Started  []Started
	Skipped  []string
	Duration time.Duration
}

// New creates a Service. Missing optional dependencies get defaults.
func New(cfg Config, deps Dependencies) *Service {
	if cfg.NamePattern == "" {
		cfg.NamePattern = DefaultNamePattern
	}
	if cfg.HostAddress == "" {
		cfg.HostAddress = DefaultHostAddress
	}
	if cfg.PullPolicy == "" {
		cfg.PullPolicy = pullcache.IfNotPresent
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	trk := deps.Tracker
	if trk == nil {
		trk = tracker.New()
	}
	waiter := deps.Waiter
	if waiter == nil {
		waiter = wait.New(logger)
	}

	s := &Service{
		cfg:     cfg,
		runtime: deps.Runtime,
		tracker: trk,
		pulls:   deps.PullCache,
		bus:     deps.Bus,
		logger:  logger,
		waiter:  waiter,
		now:     time.Now,
	}
	s.resolver = resolver.New(resolver.QueryFunc(s.containerExists))
	return s
}

// Tracker returns the tracker holding this service's containers.
func (s *Service) Tracker() *tracker.Tracker {
	return s.tracker
}

// Lookup returns the tracked container for a workload name or alias.
func (s *Service) Lookup(nameOrAlias string) (string, bool) {
	return s.tracker.Lookup(nameOrAlias)
}

// Plan resolves the start order without touching any container.
func (s *Service) Plan(ctx context.Context, workloads []workload.Workload) ([]workload.Workload, error) {
	return s.resolver.Resolve(ctx, workloads)
}

// StartAll resolves the start order and starts every workload in it,
// strictly one after another. The first failure aborts the batch; the
// containers started so far stay tracked so the caller can tear them down.
func (s *Service) StartAll(ctx context.Context, workloads []workload.Workload, batch tracker.BatchLabel) (*Result, error) {
	start := s.now()
	result := &Result{Batch: batch}
	log := s.logger.With(zap.String("batch", string(batch)))

	s.emit(events.NewEvent(events.BatchStarted, "").WithBatch(string(batch)).
		WithPayload(map[string]any{"workloads": len(workloads)}))

	ordered, err := s.resolver.Resolve(ctx, workloads)
	if err != nil {
		s.emit(events.NewEvent(events.BatchFailed, "").WithBatch(string(batch)).WithError(err))
		return result, err
	}

	for i, w := range ordered {
		s.emit(events.NewEvent(events.WorkloadResolved, w.Key()).WithBatch(string(batch)).
			WithPayload(map[string]any{"position": i, "dependencies": w.Dependencies()}))
	}

	for _, w := range ordered {
		if w.Run.Skip {
			log.Info("skipped running", zap.String("workload", w.Description()))
			s.emit(events.NewEvent(events.WorkloadSkipped, w.Key()).WithBatch(string(batch)))
			result.Skipped = append(result.Skipped, w.Key())
			continue
		}

		started, err := s.Start(ctx, w, batch)
		if err != nil {
			result.Duration = s.now().Sub(start)
			s.emit(events.NewEvent(events.BatchFailed, "").WithBatch(string(batch)).WithError(err))
			return result, err
		}
		result.Started = append(result.Started, started)
	}

	result.Duration = s.now().Sub(start)
	s.emit(events.NewEvent(events.BatchReady, "").WithBatch(string(batch)).
		WithPayload(map[string]any{"started": len(result.Started), "elapsed_ms": result.Duration.Milliseconds()}))
	return result, nil
}

// Start creates and starts one workload, registers it under batch and
// waits until it is ready.
func (s *Service) Start(ctx context.Context, w workload.Workload, batch tracker.BatchLabel) (Started, error) {
	log := s.logger.With(zap.String("workload", w.Description()), zap.String("batch", string(batch)))
	fail := func(id string, err error) (Started, error) {
		s.emit(events.NewEvent(events.WorkloadFailed, w.Key()).WithBatch(string(batch)).
			WithContainer(id).WithError(err))
		return Started{}, err
	}

	if err := s.ensureImage(ctx, w); err != nil {
		return fail("", err)
	}
	if w.Run.Network.IsCustom() {
		if err := s.ensureNetwork(ctx, w.Run.Network.Mode); err != nil {
			return fail("", err)
		}
	}

	name, err := s.containerName(ctx, w)
	if err != nil {
		return fail("", fmt.Errorf("%s: %w", w.Description(), err))
	}
	cfg, err := s.containerConfig(ctx, w, name, batch)
	if err != nil {
		return fail("", fmt.Errorf("%s: %w", w.Description(), err))
	}

	cid, err := s.runtime.Create(ctx, cfg)
	if err != nil {
		return fail("", fmt.Errorf("%s: create container: %w", w.Description(), err))
	}
	id := string(cid)
	s.emit(events.NewEvent(events.WorkloadCreated, w.Key()).WithBatch(string(batch)).
		WithContainer(id).WithPayload(map[string]any{"name": name}))

	if err := s.runtime.Start(ctx, cid); err != nil {
		if rmErr := s.runtime.Remove(context.WithoutCancel(ctx), cid, true); rmErr != nil {
			log.Warn("failed to remove container after start failure", zap.String("container", id), zap.Error(rmErr))
		}
		return fail(id, fmt.Errorf("%s: start container: %w", w.Description(), err))
	}

	s.tracker.Register(id, w, batch)
	s.emit(events.NewEvent(events.WorkloadStarted, w.Key()).WithBatch(string(batch)).WithContainer(id))
	log.Info("started container", zap.String("container", shortID(id)))

	elapsed, err := s.awaitReady(ctx, w, id, batch)
	if err != nil {
		return fail(id, err)
	}

	if hook := waitSpec(w).Exec.PostStart; len(hook) > 0 {
		out, err := s.runtime.Exec(ctx, cid, hook)
		if err != nil {
			return fail(id, fmt.Errorf("%s: post-start exec %q: %w", w.Description(), hook, err))
		}
		log.Debug("post-start exec finished", zap.Strings("cmd", hook), zap.String("output", out))
	}

	if name == "" {
		if d, err := s.runtime.Inspect(ctx, cid); err == nil {
			name = d.Name
		}
	}

	s.emit(events.NewEvent(events.WorkloadReady, w.Key()).WithBatch(string(batch)).WithContainer(id).
		WithPayload(map[string]any{"elapsed_ms": elapsed.Milliseconds(), "name": name}))
	return Started{Workload: w, ContainerID: id, Name: name, Elapsed: elapsed}, nil
}

// Restart stops the workload's tracked container, if any, and starts it
// again under batch. The new container is registered at the tail of the
// batch, so it is torn down before containers registered earlier.
func (s *Service) Restart(ctx context.Context, w workload.Workload, batch tracker.BatchLabel) (Started, error) {
	if id, ok := s.tracker.Lookup(w.Key()); ok {
		s.emit(events.NewEvent(events.WorkloadRestarting, w.Key()).WithBatch(string(batch)).WithContainer(id))
		if err := s.StopOne(ctx, id, StopOptions{}); err != nil {
			return Started{}, fmt.Errorf("%s: restart: %w", w.Description(), err)
		}
	}
	return s.Start(ctx, w, batch)
}

// containerExists answers the resolver's question for names outside the
// batch: is a container by that name (or a tracked workload) running?
func (s *Service) containerExists(ctx context.Context, name string) (bool, error) {
	if _, ok := s.tracker.Lookup(name); ok {
		return true, nil
	}
	id, err := s.findExternal(ctx, name, false)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

// findContainerID resolves a workload name or alias to a container ID,
// preferring tracked containers. Otherwise the name is taken as a
// container name; includeStopped also accepts stopped containers.
func (s *Service) findContainerID(ctx context.Context, nameOrAlias string, includeStopped bool) (string, error) {
	if id, ok := s.tracker.Lookup(nameOrAlias); ok {
		return id, nil
	}
	return s.findExternal(ctx, nameOrAlias, includeStopped)
}

func (s *Service) findExternal(ctx context.Context, name string, includeStopped bool) (string, error) {
	list, err := s.runtime.ListContainers(ctx, container.ListFilter{Name: name, All: includeStopped})
	if err != nil {
		return "", fmt.Errorf("list containers named %q: %w", name, err)
	}
	for _, c := range list {
		if c.Name == name {
			return string(c.ID), nil
		}
	}
	return "", nil
}

func (s *Service) emit(e events.Event) {
	if s.bus != nil {
		s.bus.Emit(e)
	}
}

func waitSpec(w workload.Workload) workload.WaitSpec {
	if w.Run.Wait == nil {
		return workload.WaitSpec{}
	}
	return *w.Run.Wait
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
