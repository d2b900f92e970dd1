package config

import "os"

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "BERTH_RUNTIME",
		apply: func(c *Config, v string) {
			c.Runtime = v
		},
	},
	{
		envVar: "BERTH_LOG_LEVEL",
		apply: func(c *Config, v string) {
			c.LogLevel = v
		},
	},
	{
		envVar: "BERTH_STATE_DIR",
		apply: func(c *Config, v string) {
			c.StateDir = v
		},
	},
	{
		envVar: "BERTH_AUTO_PULL",
		apply: func(c *Config, v string) {
			c.AutoPull = v
		},
	},
	{
		envVar: "BERTH_HOST_ADDRESS",
		apply: func(c *Config, v string) {
			c.HostAddress = v
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
