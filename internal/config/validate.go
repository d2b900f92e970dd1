package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/RevCBH/berth/internal/pullcache"
	"github.com/RevCBH/berth/internal/wait"
	"github.com/RevCBH/berth/internal/workload"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// validateConfig checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func validateConfig(cfg *Config) error {
	var errs []error

	switch cfg.Runtime {
	case "", "docker", "podman":
	default:
		errs = append(errs, &ValidationError{
			Field:   "runtime",
			Value:   cfg.Runtime,
			Message: "must be docker, podman or empty to detect",
		})
	}

	// LogLevel must be one of: debug, info, warn, error (case-sensitive)
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, &ValidationError{
			Field:   "log_level",
			Value:   cfg.LogLevel,
			Message: "must be one of: debug, info, warn, error",
		})
	}

	if _, err := pullcache.ParsePolicy(cfg.ImagePullPolicy, cfg.AutoPull); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "image_pull_policy",
			Value:   cfg.ImagePullPolicy + cfg.AutoPull,
			Message: err.Error(),
		})
	}

	if cfg.ContainerNamePattern == "" {
		errs = append(errs, &ValidationError{
			Field:   "container_name_pattern",
			Value:   cfg.ContainerNamePattern,
			Message: "must not be empty",
		})
	}

	if d, err := time.ParseDuration(cfg.ShutdownTimeout); err != nil || d <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "shutdown_timeout",
			Value:   cfg.ShutdownTimeout,
			Message: "must be a positive duration",
		})
	}

	if _, err := time.ParseDuration(cfg.Watch.Interval); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "watch.interval",
			Value:   cfg.Watch.Interval,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if cfg.Watch.Burst < 1 {
		errs = append(errs, &ValidationError{
			Field:   "watch.burst",
			Value:   cfg.Watch.Burst,
			Message: "must be at least 1",
		})
	}

	errs = append(errs, validateWorkloads(cfg.Workloads)...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateWorkloads(ws []workload.Workload) []error {
	var errs []error
	names := make(map[string]int)

	for i, w := range ws {
		field := func(name string) string {
			return fmt.Sprintf("workloads[%d].%s", i, name)
		}

		if w.Name == "" {
			errs = append(errs, &ValidationError{Field: field("name"), Value: w.Name, Message: "must not be empty"})
		}
		for _, n := range w.Names() {
			if n == "" {
				continue
			}
			if prev, ok := names[n]; ok {
				errs = append(errs, &ValidationError{
					Field:   field("name"),
					Value:   n,
					Message: fmt.Sprintf("already used by workloads[%d]", prev),
				})
				continue
			}
			names[n] = i
		}

		switch w.Run.Naming {
		case "", workload.NamingAuto, workload.NamingNone:
		case workload.NamingAlias:
			if w.Alias == "" {
				errs = append(errs, &ValidationError{
					Field:   field("run.naming"),
					Value:   w.Run.Naming,
					Message: "alias naming requires an alias",
				})
			}
		default:
			errs = append(errs, &ValidationError{
				Field:   field("run.naming"),
				Value:   w.Run.Naming,
				Message: "must be one of: alias, auto, none",
			})
		}

		if w.Run.PullPolicy != "" {
			if _, err := pullcache.ParsePolicy(w.Run.PullPolicy, ""); err != nil {
				errs = append(errs, &ValidationError{Field: field("run.pull_policy"), Value: w.Run.PullPolicy, Message: err.Error()})
			}
		}

		if w.Run.Wait != nil {
			errs = append(errs, validateWait(field, w.Run.Wait)...)
		}
	}
	return errs
}

func validateWait(field func(string) string, ws *workload.WaitSpec) []error {
	var errs []error
	if ws.Time < 0 {
		errs = append(errs, &ValidationError{Field: field("run.wait.time"), Value: ws.Time, Message: "must be non-negative"})
	}
	if ws.Kill < 0 {
		errs = append(errs, &ValidationError{Field: field("run.wait.kill"), Value: ws.Kill, Message: "must be non-negative"})
	}
	if ws.Shutdown < 0 {
		errs = append(errs, &ValidationError{Field: field("run.wait.shutdown"), Value: ws.Shutdown, Message: "must be non-negative"})
	}
	if ws.HTTP.Status != "" {
		if _, _, err := wait.ParseStatusRange(ws.HTTP.Status); err != nil {
			errs = append(errs, &ValidationError{Field: field("run.wait.http.status"), Value: ws.HTTP.Status, Message: err.Error()})
		}
	}
	if ws.Log != "" {
		if _, err := regexp.Compile(ws.Log); err != nil {
			errs = append(errs, &ValidationError{Field: field("run.wait.log"), Value: ws.Log, Message: err.Error()})
		}
	}
	switch ws.TCP.Mode {
	case "", workload.TCPModeMapped, workload.TCPModeDirect:
	default:
		errs = append(errs, &ValidationError{
			Field:   field("run.wait.tcp.mode"),
			Value:   ws.TCP.Mode,
			Message: "must be mapped or direct",
		})
	}
	for _, p := range ws.TCP.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, &ValidationError{Field: field("run.wait.tcp.ports"), Value: p, Message: "must be a valid port"})
		}
	}
	return errs
}
