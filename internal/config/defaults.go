package config

const (
	DefaultStateDir             = ".berth"
	DefaultLogLevel             = "info"
	DefaultHostAddress          = "localhost"
	DefaultContainerNamePattern = "%p-%n-%i"
	DefaultShutdownTimeout      = "30s"
	DefaultWatchInterval        = "1s"
	DefaultWatchBurst           = 1
)

// DefaultConfig returns a Config with all default values applied.
func DefaultConfig() *Config {
	return &Config{
		StateDir:             DefaultStateDir,
		LogLevel:             DefaultLogLevel,
		HostAddress:          DefaultHostAddress,
		ContainerNamePattern: DefaultContainerNamePattern,
		ShowLogsOnFailure:    true,
		ShutdownTimeout:      DefaultShutdownTimeout,
		Watch: WatchConfig{
			Interval: DefaultWatchInterval,
			Burst:    DefaultWatchBurst,
		},
	}
}
