package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/RevCBH/berth/internal/container"
	"github.com/RevCBH/berth/internal/events"
	"github.com/RevCBH/berth/internal/tracker"
	"github.com/RevCBH/berth/internal/workload"
	"go.uber.org/zap"
)

// containerConfig translates a workload into runtime create parameters,
// resolving link, volume and network references to container IDs.
func (s *Service) containerConfig(ctx context.Context, w workload.Workload, name string, batch tracker.BatchLabel) (container.ContainerConfig, error) {
	run := w.Run
	cfg := container.ContainerConfig{
		Image:      w.Name,
		Name:       name,
		Env:        maps.Clone(run.Env),
		Cmd:        slices.Clone(run.Cmd),
		Entrypoint: slices.Clone(run.Entrypoint),
		WorkDir:    run.WorkDir,
		Ports:      slices.Clone(run.Ports),
		Binds:      slices.Clone(run.Binds),
		Labels:     make(map[string]string, len(run.Labels)+3),
	}

	maps.Copy(cfg.Labels, run.Labels)
	cfg.Labels[LabelWorkload] = w.Key()
	if batch != "" {
		cfg.Labels[LabelBatch] = string(batch)
	}
	if s.cfg.Project != "" {
		cfg.Labels[LabelProject] = s.cfg.Project
	}

	links, err := s.resolveLinks(ctx, run.Links, run.Network.IsCustom())
	if err != nil {
		return cfg, err
	}
	cfg.Links = links

	for _, source := range run.VolumesFrom {
		id, err := s.findContainerID(ctx, source, true)
		if err != nil {
			return cfg, err
		}
		if id == "" {
			return cfg, fmt.Errorf("no container found for image/alias %q, unable to mount volumes", source)
		}
		cfg.VolumesFrom = append(cfg.VolumesFrom, id)
	}

	switch mode := run.Network.Mode; {
	case mode == "" || mode == workload.NetworkDefault:
	case run.Network.IsCustom():
		cfg.NetworkMode = mode
		cfg.NetworkAliases = slices.Clone(run.Network.Aliases)
		if w.Alias != "" && !slices.Contains(cfg.NetworkAliases, w.Alias) {
			cfg.NetworkAliases = append(cfg.NetworkAliases, w.Alias)
		}
	default:
		if target, ok := run.Network.ContainerTarget(); ok {
			id, err := s.findContainerID(ctx, target, false)
			if err != nil {
				return cfg, err
			}
			if id == "" {
				return cfg, fmt.Errorf("no container found for image/alias %q, unable to join its network", target)
			}
			cfg.NetworkMode = workload.ContainerNetworkMode(id)
		} else {
			cfg.NetworkMode = mode
		}
	}
	return cfg, nil
}

// resolveLinks maps "name[:alias]" links to "id:alias". On custom networks
// an unknown name is passed through since peers resolve by DNS there.
func (s *Service) resolveLinks(ctx context.Context, links []string, leaveUnresolved bool) ([]string, error) {
	var out []string
	for _, link := range links {
		name, alias := workload.LinkName(link), workload.LinkAlias(link)
		id, err := s.findContainerID(ctx, name, false)
		if err != nil {
			return nil, err
		}
		switch {
		case id != "":
			out = append(out, id+":"+alias)
		case leaveUnresolved:
			out = append(out, link)
		default:
			return nil, fmt.Errorf("no container found for image/alias %q, unable to link", name)
		}
	}
	return out, nil
}

// ensureNetwork creates a custom network unless one by that name exists.
func (s *Service) ensureNetwork(ctx context.Context, name string) error {
	networks, err := s.runtime.ListNetworks(ctx)
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == name {
			return nil
		}
	}

	id, err := s.runtime.CreateNetwork(ctx, name)
	if err != nil {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	s.logger.Info("created custom network", zap.String("network", name), zap.String("id", shortID(id)))
	s.emit(events.NewEvent(events.NetworkCreated, "").WithPayload(map[string]any{"network": name, "id": id}))
	return nil
}
