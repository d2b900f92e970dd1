package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/RevCBH/berth/internal/container"
	"github.com/RevCBH/berth/internal/events"
	"github.com/RevCBH/berth/internal/tracker"
	"github.com/RevCBH/berth/internal/wait"
	"github.com/RevCBH/berth/internal/workload"
	"go.uber.org/zap"
)

// maxLogDump caps the container output logged after a failed start.
const maxLogDump = 64 << 10

// ReadinessError reports a container that did not become ready.
type ReadinessError struct {
	Workload    workload.Workload
	ContainerID string
	Elapsed     time.Duration
	// Waiting is the combined label of the raced checkers
	Waiting string
	// ExitCode is set when the container stopped while being waited on
	ExitCode *int
	Err      error
}

func (e *ReadinessError) Error() string {
	var timeout *wait.TimeoutError
	var pre *wait.PreconditionError
	switch {
	case errors.As(e.Err, &timeout):
		return fmt.Sprintf("%s: Timeout after %d ms while waiting %s",
			e.Workload.Description(), e.Elapsed.Milliseconds(), e.Waiting)
	case errors.As(e.Err, &pre):
		code := -1
		if e.ExitCode != nil {
			code = *e.ExitCode
		}
		return fmt.Sprintf("%s: Container stopped with exit code %d unexpectedly after %d ms while waiting %s",
			e.Workload.Description(), code, e.Elapsed.Milliseconds(), e.Waiting)
	}
	return fmt.Sprintf("%s: readiness check failed after %d ms: %v",
		e.Workload.Description(), e.Elapsed.Milliseconds(), e.Err)
}

func (e *ReadinessError) Unwrap() error {
	return e.Err
}

// awaitReady builds the workload's checkers and waits on them. A workload
// without a wait spec is ready immediately.
func (s *Service) awaitReady(ctx context.Context, w workload.Workload, id string, batch tracker.BatchLabel) (time.Duration, error) {
	if w.Run.Wait == nil {
		return 0, nil
	}
	ws := *w.Run.Wait
	log := s.logger.With(zap.String("workload", w.Description()), zap.String("container", shortID(id)))
	maxWait := time.Duration(ws.Time) * time.Millisecond

	checkers, err := s.checkers(ctx, w, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", w.Description(), err)
	}
	if len(checkers) == 0 {
		if maxWait > 0 {
			log.Info("pausing", zap.Duration("duration", maxWait))
		}
		return s.waiter.Await(ctx, nil, maxWait, checkers...)
	}

	waiting := wait.Label(checkers)
	s.emit(events.NewEvent(events.WorkloadAwaiting, w.Key()).WithBatch(string(batch)).WithContainer(id).
		WithPayload(map[string]any{"waiting": waiting}))

	state := s.stateFunc(id)
	var pre wait.Precondition
	var lastExit *int
	var stateErr error
	// An exit-code wait expects the container to stop.
	if ws.Exit == nil {
		pre = func(ctx context.Context) (bool, error) {
			st, err := state(ctx)
			if err != nil {
				stateErr = fmt.Errorf("inspect container %s: %w", shortID(id), err)
				return false, stateErr
			}
			lastExit = st.ExitCode
			return st.Running, nil
		}
	}

	elapsed, err := s.waiter.Await(ctx, pre, maxWait, checkers...)
	if err != nil && stateErr != nil && errors.Is(err, stateErr) {
		// A runtime failure, not a verdict on the container.
		log.Error("failed to observe container while waiting", zap.Error(err))
		return elapsed, fmt.Errorf("%s: %w", w.Description(), err)
	}
	if err != nil {
		rerr := &ReadinessError{Workload: w, ContainerID: id, Elapsed: elapsed, Waiting: waiting, ExitCode: lastExit, Err: err}
		var preErr *wait.PreconditionError
		if errors.As(err, &preErr) && s.cfg.ShowLogsOnFailure {
			s.dumpLogs(ctx, id, log)
		}
		log.Error("container did not become ready", zap.Error(rerr))
		return elapsed, rerr
	}

	log.Info("waited", zap.String("on", waiting), zap.Duration("elapsed", elapsed))
	return elapsed, nil
}

// checkers builds the configured probes in a fixed order: url, log, tcp,
// healthy, exit code.
func (s *Service) checkers(ctx context.Context, w workload.Workload, id string) ([]wait.Checker, error) {
	ws := *w.Run.Wait
	cid := container.ContainerID(id)
	var checkers []wait.Checker

	if ws.URL != "" {
		c, err := wait.NewHTTPChecker(ws.URL, ws.HTTP.Method, ws.HTTP.Status, ws.HTTP.AllowAllHosts)
		if err != nil {
			return nil, err
		}
		checkers = append(checkers, c)
	}

	if ws.Log != "" {
		c, err := wait.NewLogChecker(ws.Log, func(ctx context.Context) (io.ReadCloser, error) {
			return s.runtime.Logs(ctx, cid, true)
		})
		if err != nil {
			cleanupAll(checkers)
			return nil, err
		}
		checkers = append(checkers, c)
	}

	if len(ws.TCP.Ports) > 0 {
		details, err := s.runtime.Inspect(ctx, cid)
		if err != nil {
			cleanupAll(checkers)
			return nil, fmt.Errorf("inspect container %s: %w", shortID(id), err)
		}
		addrs, err := tcpAddresses(ws.TCP, s.cfg.HostAddress, details)
		if err != nil {
			cleanupAll(checkers)
			return nil, err
		}
		checkers = append(checkers, wait.NewTCPChecker(addrs))
	}

	state := s.stateFunc(id)
	if ws.Healthy {
		hc := ""
		if d, err := s.runtime.Inspect(ctx, cid); err == nil {
			hc = d.HealthCheck
		}
		checkers = append(checkers, wait.NewHealthChecker(hc, state))
	}
	if ws.Exit != nil {
		checkers = append(checkers, wait.NewExitCodeChecker(*ws.Exit, state))
	}
	return checkers, nil
}

// tcpAddresses picks the addresses to dial. Without an explicit mode,
// "localhost" dials the container directly and any other host goes
// through the published ports.
func tcpAddresses(tcp workload.TCPWait, defaultHost string, d *container.Details) ([]string, error) {
	host := tcp.Host
	if host == "" {
		host = defaultHost
	}
	mode := tcp.Mode
	if mode == "" {
		mode = workload.TCPModeMapped
		if host == "localhost" {
			mode = workload.TCPModeDirect
		}
	}

	var addrs []string
	switch mode {
	case workload.TCPModeMapped:
		for _, port := range tcp.Ports {
			binding, ok := d.HostPortFor(port)
			if !ok {
				return nil, fmt.Errorf("cannot watch on port %d, since there is no network binding", port)
			}
			addrs = append(addrs, net.JoinHostPort(host, strconv.Itoa(binding.Port)))
		}
	case workload.TCPModeDirect:
		switch d.NetworkMode {
		case "", workload.NetworkBridge, workload.NetworkDefault:
			host = d.IPAddress
		case workload.NetworkHost:
		default:
			if ip, ok := d.Networks[d.NetworkMode]; ok && ip != "" {
				host = ip
			} else {
				host = d.IPAddress
			}
		}
		if host == "" {
			return nil, fmt.Errorf("container %s has no IP address to probe", shortID(d.ID))
		}
		for _, port := range tcp.Ports {
			addrs = append(addrs, net.JoinHostPort(host, strconv.Itoa(port)))
		}
	default:
		return nil, fmt.Errorf("invalid tcp wait mode %q", mode)
	}
	return addrs, nil
}

func (s *Service) stateFunc(id string) wait.StateFunc {
	return func(ctx context.Context) (wait.State, error) {
		d, err := s.runtime.Inspect(ctx, container.ContainerID(id))
		if err != nil {
			return wait.State{}, err
		}
		return wait.State{
			Running:        d.Running,
			ExitCode:       d.ExitCode,
			Health:         d.Health,
			HasHealthCheck: d.HealthCheck != "",
		}, nil
	}
}

// dumpLogs logs what the container printed before it died.
func (s *Service) dumpLogs(ctx context.Context, id string, log *zap.Logger) {
	rc, err := s.runtime.Logs(context.WithoutCancel(ctx), container.ContainerID(id), false)
	if err != nil {
		log.Warn("failed to fetch container logs", zap.Error(err))
		return
	}
	defer rc.Close()

	scanner := bufio.NewScanner(io.LimitReader(rc, maxLogDump))
	for scanner.Scan() {
		log.Info(scanner.Text(), zap.String("stream", "container"))
	}
}

func cleanupAll(checkers []wait.Checker) {
	for _, c := range checkers {
		c.Cleanup()
	}
}
