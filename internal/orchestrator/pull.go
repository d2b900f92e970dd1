package orchestrator

import (
	"context"
	"fmt"

	"github.com/RevCBH/berth/internal/events"
	"github.com/RevCBH/berth/internal/pullcache"
	"github.com/RevCBH/berth/internal/workload"
	"go.uber.org/zap"
)

// policyFor returns the workload's pull policy, or the service default.
func (s *Service) policyFor(w workload.Workload) (pullcache.Policy, error) {
	if w.Run.PullPolicy == "" {
		return s.cfg.PullPolicy, nil
	}
	return pullcache.ParsePolicy(w.Run.PullPolicy, "")
}

// ensureImage is the auto-pull gate. An image already pulled in this
// project is not pulled again while it is still present locally, even
// under Always.
func (s *Service) ensureImage(ctx context.Context, w workload.Workload) error {
	image := w.Name
	policy, err := s.policyFor(w)
	if err != nil {
		return fmt.Errorf("%s: %w", w.Description(), err)
	}

	present, err := s.runtime.ImageExists(ctx, image)
	if err != nil {
		return fmt.Errorf("%s: check image: %w", w.Description(), err)
	}

	if present && s.pulls != nil {
		pulled, err := s.pulls.HasPulled(ctx, image)
		if err != nil {
			return err
		}
		if pulled {
			return nil
		}
	}

	pull, err := pullcache.RequiresPull(policy, present, image)
	if err != nil {
		return fmt.Errorf("%s: %w", w.Description(), err)
	}
	if !pull {
		return nil
	}

	s.logger.Info("pulling image", zap.String("image", image), zap.String("policy", string(policy)))
	if err := s.runtime.Pull(ctx, image); err != nil {
		return fmt.Errorf("%s: pull %s: %w", w.Description(), image, err)
	}
	s.emit(events.NewEvent(events.WorkloadPulled, w.Key()).WithPayload(map[string]any{"image": image}))

	if s.pulls != nil {
		if err := s.pulls.MarkPulled(ctx, image); err != nil {
			return err
		}
	}
	return nil
}
