package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RevCBH/berth/internal/pullcache"
	"github.com/RevCBH/berth/internal/workload"
)

// FileName is the config file looked up in the project directory.
const FileName = "berth.yaml"

// Config holds all configuration for a berth project.
// It is immutable after creation via LoadConfig().
type Config struct {
	// Project scopes container names, labels and the pull cache.
	// Defaults to the project directory's base name.
	Project string `yaml:"project"`

	// Runtime is the container CLI to drive: "docker", "podman" or ""
	// to detect one on PATH.
	Runtime string `yaml:"runtime"`

	// StateDir holds the SQLite state database. Relative paths are
	// resolved from the project directory.
	StateDir string `yaml:"state_dir"`

	// LogLevel controls log verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// HostAddress is the address probes use for published ports.
	HostAddress string `yaml:"host_address"`

	// ImagePullPolicy is Always, IfNotPresent or Never. It wins over AutoPull.
	ImagePullPolicy string `yaml:"image_pull_policy"`

	// AutoPull is the legacy switch: on, once, off or always.
	AutoPull string `yaml:"auto_pull"`

	// ContainerNamePattern is applied to workloads using automatic naming.
	ContainerNamePattern string `yaml:"container_name_pattern"`

	Teardown TeardownConfig `yaml:"teardown"`

	// ShowLogsOnFailure dumps a container's output when it dies during
	// its readiness wait.
	ShowLogsOnFailure bool `yaml:"show_logs_on_failure"`

	// ShutdownTimeout bounds the teardown that follows an interrupt.
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// MetricsAddr enables the metrics endpoint when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`

	Watch WatchConfig `yaml:"watch"`

	Workloads []workload.Workload `yaml:"workloads"`

	// Dir is the project directory the file was loaded from.
	Dir string `yaml:"-"`
}

// TeardownConfig controls how a batch is stopped.
type TeardownConfig struct {
	// Keep stops containers without removing them
	Keep bool `yaml:"keep"`

	RemoveVolumes  bool `yaml:"remove_volumes"`
	RemoveNetworks bool `yaml:"remove_networks"`

	// Strict propagates teardown errors instead of logging them
	Strict bool `yaml:"strict"`
}

// WatchConfig throttles restarts triggered by file changes.
type WatchConfig struct {
	// Interval is the minimum time between restarts of one workload
	Interval string `yaml:"interval"`

	// Burst allows that many restarts before the interval applies
	Burst int `yaml:"burst"`
}

// ShutdownTimeoutDuration parses the shutdown timeout as a Duration.
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.ShutdownTimeout)
}

// WatchIntervalDuration parses the watch interval as a Duration.
func (c *Config) WatchIntervalDuration() (time.Duration, error) {
	return time.ParseDuration(c.Watch.Interval)
}

// PullPolicy resolves the effective project-wide pull policy.
func (c *Config) PullPolicy() (pullcache.Policy, error) {
	return pullcache.ParsePolicy(c.ImagePullPolicy, c.AutoPull)
}

// StatePath returns the absolute state directory.
func (c *Config) StatePath() string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(c.Dir, c.StateDir)
}

// LoadConfig loads configuration for the project in dir.
// It applies defaults, then file values, then environment overrides,
// then validates.
//
// Parameters:
//   - dir: the project directory
//   - file: explicit config path; when empty, dir/berth.yaml is used
//     and a missing file is not an error
//
// Returns the validated Config or an error if validation fails.
func LoadConfig(dir, file string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Dir = absDir

	path := file
	if path == "" {
		path = filepath.Join(absDir, FileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case file != "" || !os.IsNotExist(err):
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Project == "" {
		cfg.Project = filepath.Base(absDir)
	}

	// Resolve relative watch paths against the project directory
	for i := range cfg.Workloads {
		paths := cfg.Workloads[i].Run.Watch.Paths
		for j, p := range paths {
			if !filepath.IsAbs(p) {
				paths[j] = filepath.Join(absDir, p)
			}
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
