package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/RevCBH/berth/internal/container"
	"github.com/RevCBH/berth/internal/events"
	"github.com/RevCBH/berth/internal/tracker"
	"github.com/RevCBH/berth/internal/wait"
	"github.com/RevCBH/berth/internal/workload"
	"go.uber.org/zap"
)

// DefaultKillGrace is used for containers found by label, whose wait
// settings are unknown.
const DefaultKillGrace = 10 * time.Second

// StopOptions controls teardown.
type StopOptions struct {
	// Keep stops containers without removing them
	Keep bool
	// RemoveVolumes removes anonymous volumes with the container
	RemoveVolumes bool
	// RemoveNetworks removes custom networks once no container uses them
	RemoveNetworks bool
}

// StopOne stops a single tracked container and removes it from the tracker.
func (s *Service) StopOne(ctx context.Context, id string, opts StopOptions) error {
	d, ok := s.tracker.Remove(id)
	if !ok {
		return fmt.Errorf("stop %s: %w", shortID(id), ErrNotTracked)
	}
	if err := s.shutdown(ctx, d, opts); err != nil {
		return s.teardownError(d, err)
	}
	return nil
}

// StopAll tears down every container of batch, or every tracked container
// when batch is empty, last started first. A failure to stop one container
// does not keep the others running.
func (s *Service) StopAll(ctx context.Context, batch tracker.BatchLabel, opts StopOptions) error {
	descriptors := s.tracker.Drain(batch)
	s.emit(events.NewEvent(events.BatchStopping, "").WithBatch(string(batch)).
		WithPayload(map[string]any{"containers": len(descriptors)}))

	var errs []error
	var networks []string
	for _, d := range descriptors {
		if err := s.shutdown(ctx, d, opts); err != nil {
			if terr := s.teardownError(d, err); terr != nil {
				errs = append(errs, terr)
			}
		}
		if net := d.Workload.Run.Network; opts.RemoveNetworks && net.IsCustom() && !slices.Contains(networks, net.Mode) {
			networks = append(networks, net.Mode)
		}
	}

	errs = append(errs, s.removeNetworks(ctx, networks, s.networksInUse())...)

	s.emit(events.NewEvent(events.BatchStopped, "").WithBatch(string(batch)).
		WithPayload(map[string]any{"containers": len(descriptors)}))
	return errors.Join(errs...)
}

// StopLabeled tears down every container carrying the batch label, newest
// created first. Containers this process does not track get default grace
// periods.
func (s *Service) StopLabeled(ctx context.Context, batch tracker.BatchLabel, opts StopOptions) error {
	if batch == "" {
		return errors.New("stop by label: batch is required")
	}
	list, err := s.runtime.ListContainers(ctx, container.ListFilter{
		Labels: []string{LabelBatch + "=" + string(batch)},
		All:    true,
	})
	if err != nil {
		return fmt.Errorf("list containers of batch %s: %w", batch, err)
	}

	type found struct {
		desc    tracker.Descriptor
		created time.Time
		network string
	}
	var targets []found
	for _, c := range list {
		id := string(c.ID)
		details, inspectErr := s.runtime.Inspect(ctx, c.ID)
		if d, ok := s.tracker.Remove(id); ok {
			t := found{desc: d, created: d.RegisteredAt, network: d.Workload.Run.Network.Mode}
			if inspectErr == nil {
				t.created = details.Created
			}
			targets = append(targets, t)
			continue
		}
		if inspectErr != nil {
			s.logger.Warn("failed to inspect labeled container", zap.String("container", shortID(id)), zap.Error(inspectErr))
			continue
		}
		w := workload.Workload{Name: details.Image, Alias: details.Labels[LabelWorkload]}
		targets = append(targets, found{
			desc: tracker.Descriptor{
				ContainerID: id,
				Workload:    w,
				Batch:       batch,
				KillGrace:   DefaultKillGrace,
			},
			created: details.Created,
			network: details.NetworkMode,
		})
	}
	// Creation time orders tracked and untracked containers alike.
	slices.SortStableFunc(targets, func(a, b found) int {
		return b.created.Compare(a.created)
	})

	s.emit(events.NewEvent(events.BatchStopping, "").WithBatch(string(batch)).
		WithPayload(map[string]any{"containers": len(targets)}))

	var errs []error
	var networks []string
	for _, t := range targets {
		if err := s.shutdown(ctx, t.desc, opts); err != nil {
			if terr := s.teardownError(t.desc, err); terr != nil {
				errs = append(errs, terr)
			}
		}
		net := workload.NetworkSpec{Mode: t.network}
		if opts.RemoveNetworks && net.IsCustom() && !slices.Contains(networks, t.network) {
			networks = append(networks, t.network)
		}
	}
	errs = append(errs, s.removeNetworks(ctx, networks, s.networksInUse())...)

	s.emit(events.NewEvent(events.BatchStopped, "").WithBatch(string(batch)).
		WithPayload(map[string]any{"containers": len(targets)}))
	return errors.Join(errs...)
}

// shutdown runs the pre-stop hook, stops the container and, unless kept,
// removes it after the shutdown grace period.
func (s *Service) shutdown(ctx context.Context, d tracker.Descriptor, opts StopOptions) error {
	id := d.ContainerID
	log := s.logger.With(zap.String("workload", d.Workload.Description()), zap.String("container", shortID(id)))
	s.emit(events.NewEvent(events.WorkloadStopping, d.Workload.Key()).WithBatch(string(d.Batch)).WithContainer(id))

	if len(d.PreStop) > 0 {
		if _, err := s.runtime.Exec(ctx, container.ContainerID(id), d.PreStop); err != nil {
			log.Error("pre-stop exec failed", zap.Strings("cmd", d.PreStop), zap.Error(err))
		}
	}

	start := s.now()
	grace := killGraceSeconds(d.KillGrace, log)
	if err := s.runtime.Stop(ctx, container.ContainerID(id), time.Duration(grace)*time.Second); err != nil {
		return fmt.Errorf("stop container: %w", err)
	}

	if !opts.Keep {
		if err := wait.Sleep(ctx, d.ShutdownGrace); err != nil {
			return fmt.Errorf("shutdown grace interrupted: %w", err)
		}
		if err := s.runtime.Remove(ctx, container.ContainerID(id), opts.RemoveVolumes); err != nil {
			return fmt.Errorf("remove container: %w", err)
		}
	}

	waited := s.now().Sub(start)
	if opts.Keep {
		log.Info("stopped container", zap.Duration("elapsed", waited))
	} else {
		log.Info("stopped and removed container", zap.Duration("elapsed", waited))
	}
	s.emit(events.NewEvent(events.WorkloadStopped, d.Workload.Key()).WithBatch(string(d.Batch)).WithContainer(id).
		WithPayload(map[string]any{"removed": !opts.Keep, "elapsed_ms": waited.Milliseconds()}))
	return nil
}

// teardownError logs a failed teardown and returns it only in strict mode.
func (s *Service) teardownError(d tracker.Descriptor, err error) error {
	err = fmt.Errorf("%s: teardown of %s: %w", d.Workload.Description(), shortID(d.ContainerID), err)
	s.logger.Error("teardown failed", zap.String("workload", d.Workload.Description()),
		zap.String("container", shortID(d.ContainerID)), zap.Error(err))
	s.emit(events.NewEvent(events.WorkloadTeardownFailed, d.Workload.Key()).WithBatch(string(d.Batch)).
		WithContainer(d.ContainerID).WithError(err))
	if s.cfg.Strict {
		return err
	}
	return nil
}

// networksInUse lists custom networks of containers still tracked.
func (s *Service) networksInUse() map[string]bool {
	inUse := make(map[string]bool)
	for _, d := range s.tracker.Snapshot("") {
		if net := d.Workload.Run.Network; net.IsCustom() {
			inUse[net.Mode] = true
		}
	}
	return inUse
}

// removeNetworks removes networks after all containers of a batch are
// down, skipping those still used by tracked containers.
func (s *Service) removeNetworks(ctx context.Context, networks []string, inUse map[string]bool) []error {
	var errs []error
	for _, name := range networks {
		if inUse[name] {
			s.logger.Debug("keeping network still in use", zap.String("network", name))
			continue
		}
		if err := s.runtime.RemoveNetwork(ctx, name); err != nil {
			err = fmt.Errorf("remove network %s: %w", name, err)
			s.logger.Error("network removal failed", zap.Error(err))
			if s.cfg.Strict {
				errs = append(errs, err)
			}
			continue
		}
		s.logger.Info("removed custom network", zap.String("network", name))
		s.emit(events.NewEvent(events.NetworkRemoved, "").WithPayload(map[string]any{"network": name}))
	}
	return errs
}

// killGraceSeconds rounds the kill grace period to whole seconds, the
// resolution of the runtime's stop timeout.
func killGraceSeconds(grace time.Duration, log *zap.Logger) int {
	ms := grace.Milliseconds()
	seconds := int((ms + 500) / 1000)
	if ms != 0 && seconds == 0 {
		log.Warn("kill grace period rounds to zero seconds; use at least 500 ms",
			zap.Int64("kill_ms", ms))
	}
	return seconds
}
