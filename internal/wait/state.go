package wait

import (
	"context"
	"fmt"
)

// HealthHealthy is the health status that satisfies a HealthChecker.
const HealthHealthy = "healthy"

// State is the slice of container state the state-based checkers need.
type State struct {
	Running        bool
	ExitCode       *int
	Health         string
	HasHealthCheck bool
}

// StateFunc fetches the current container state.
type StateFunc func(ctx context.Context) (State, error)

// HealthChecker is satisfied when the container reports healthy.
type HealthChecker struct {
	healthCheck string
	state       StateFunc
}

// NewHealthChecker builds a health probe. healthCheck is the configured
// HEALTHCHECK command, used only for the label.
func NewHealthChecker(healthCheck string, state StateFunc) *HealthChecker {
	return &HealthChecker{healthCheck: healthCheck, state: state}
}

// Check implements Checker. A container without a HEALTHCHECK can never
// become healthy, which is reported as a ConfigError.
func (c *HealthChecker) Check(ctx context.Context) (bool, error) {
	st, err := c.state(ctx)
	if err != nil {
		return false, fmt.Errorf("inspect health: %w", err)
	}
	if !st.HasHealthCheck {
		return false, &ConfigError{Message: "cannot wait for healthy: container has no HEALTHCHECK configured"}
	}
	return st.Health == HealthHealthy, nil
}

// Cleanup implements Checker.
func (c *HealthChecker) Cleanup() {}

// Label implements Checker.
func (c *HealthChecker) Label() string {
	return "on healthcheck '" + c.healthCheck + "'"
}

// ExitCodeChecker is satisfied once the container has stopped with the
// expected exit code.
type ExitCodeChecker struct {
	want  int
	state StateFunc
}

// NewExitCodeChecker builds an exit-code probe.
func NewExitCodeChecker(want int, state StateFunc) *ExitCodeChecker {
	return &ExitCodeChecker{want: want, state: state}
}

// Check implements Checker.
func (c *ExitCodeChecker) Check(ctx context.Context) (bool, error) {
	st, err := c.state(ctx)
	if err != nil {
		return false, fmt.Errorf("inspect exit code: %w", err)
	}
	if st.Running || st.ExitCode == nil {
		return false, nil
	}
	return *st.ExitCode == c.want, nil
}

// Cleanup implements Checker.
func (c *ExitCodeChecker) Cleanup() {}

// Label implements Checker.
func (c *ExitCodeChecker) Label() string {
	return fmt.Sprintf("on exit code %d", c.want)
}
