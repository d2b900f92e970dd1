package wait

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultInterval is the pause between polls.
	DefaultInterval = 500 * time.Millisecond

	// DefaultMaxWait applies when the caller passes a non-positive limit.
	DefaultMaxWait = 10 * time.Second
)

// Checker is one readiness probe. Check reports whether the probe is
// satisfied; a non-nil error is fatal and ends the wait immediately.
// Cleanup releases probe resources and is called exactly once.
type Checker interface {
	Check(ctx context.Context) (bool, error)
	Cleanup()
	Label() string
}

// Precondition must hold on every poll, typically "container is running".
// An error means the state could not be observed; it ends the wait and is
// returned unchanged.
type Precondition func(ctx context.Context) (bool, error)

// TimeoutError means no checker was satisfied before the deadline.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %d ms", e.Elapsed.Milliseconds())
}

// PreconditionError means the precondition failed before any checker was
// satisfied.
type PreconditionError struct {
	Elapsed time.Duration
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed after %d ms", e.Elapsed.Milliseconds())
}

// ConfigError is returned by checkers whose configuration can never
// succeed, such as an unsupported HTTP method.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Waiter drives checkers against a deadline.
type Waiter struct {
	Interval       time.Duration
	DefaultMaxWait time.Duration
	Logger         *zap.Logger
}

// New creates a Waiter with default timing.
func New(logger *zap.Logger) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waiter{
		Interval:       DefaultInterval,
		DefaultMaxWait: DefaultMaxWait,
		Logger:         logger,
	}
}

// Await polls until any checker is satisfied and returns the elapsed time.
//
// With no checkers and a positive maxWait it just sleeps for maxWait.
// Otherwise each poll evaluates the precondition, then the checkers in
// order; the first satisfied checker ends the wait. A precondition or
// checker error is returned as is. Every checker's Cleanup runs once, in
// order, however Await returns.
func (w *Waiter) Await(ctx context.Context, pre Precondition, maxWait time.Duration, checkers ...Checker) (time.Duration, error) {
	start := time.Now()
	defer func() {
		for _, c := range checkers {
			c.Cleanup()
		}
	}()

	if len(checkers) == 0 {
		if maxWait <= 0 {
			return 0, nil
		}
		w.logger().Debug("pausing", zap.Duration("duration", maxWait))
		err := Sleep(ctx, maxWait)
		return time.Since(start), err
	}

	limit := maxWait
	if limit <= 0 {
		limit = w.DefaultMaxWait
		if limit <= 0 {
			limit = DefaultMaxWait
		}
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	polls := 0
	for {
		polls++
		if pre != nil {
			ok, err := pre(ctx)
			if err != nil {
				return time.Since(start), err
			}
			if !ok {
				elapsed := time.Since(start)
				return elapsed, &PreconditionError{Elapsed: elapsed}
			}
		}

		for _, c := range checkers {
			ok, err := c.Check(ctx)
			if err != nil {
				return time.Since(start), err
			}
			if ok {
				elapsed := time.Since(start)
				w.logger().Debug("checker satisfied",
					zap.String("checker", c.Label()),
					zap.Int("polls", polls),
					zap.Duration("elapsed", elapsed))
				return elapsed, nil
			}
		}

		elapsed := time.Since(start)
		if elapsed >= limit {
			return elapsed, &TimeoutError{Elapsed: elapsed}
		}

		pause := min(interval, limit-elapsed)
		if err := Sleep(ctx, pause); err != nil {
			return time.Since(start), fmt.Errorf("wait interrupted after %d ms: %w", time.Since(start).Milliseconds(), err)
		}
	}
}

func (w *Waiter) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

var defaultWaiter = New(nil)

// Await runs the default Waiter.
func Await(ctx context.Context, pre Precondition, maxWait time.Duration, checkers ...Checker) (time.Duration, error) {
	return defaultWaiter.Await(ctx, pre, maxWait, checkers...)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Label joins checker labels for messages such as
// "on url http://x and on tcp port 'localhost:80'".
func Label(checkers []Checker) string {
	labels := make([]string, 0, len(checkers))
	for _, c := range checkers {
		labels = append(labels, c.Label())
	}
	return strings.Join(labels, " and ")
}
