package container

import "time"

// ContainerID is a unique identifier for a container.
// This is the full container ID returned by `docker create`, not the short form.
type ContainerID string

// ContainerConfig specifies container creation parameters.
type ContainerConfig struct {
	// Image is the container image (e.g., "postgres:16")
	Image string

	// Name is the container name; empty lets the runtime pick one
	Name string

	// Env contains environment variables to set in the container
	Env map[string]string

	// Cmd is the command and arguments to run
	Cmd []string

	// Entrypoint overrides the image entrypoint
	Entrypoint []string

	// WorkDir is the working directory inside the container
	WorkDir string

	// Labels are attached to the container for later discovery
	Labels map[string]string

	// Ports are "[host:]container[/proto]" publish specs
	Ports []string

	// Links are "containerID:alias" pairs
	Links []string

	// VolumesFrom are container IDs whose volumes are mounted
	VolumesFrom []string

	// Binds are "host:container[:opts]" mounts
	Binds []string

	// NetworkMode is bridge, host, none, container:<id> or a network name
	NetworkMode string

	// NetworkAliases are DNS aliases on a custom network
	NetworkAliases []string
}

// HostPort is a published port on the host.
type HostPort struct {
	IP   string
	Port int
}

// Details is the subset of `inspect` output the orchestrator uses.
type Details struct {
	ID      string
	Name    string
	Image   string
	Created time.Time

	Running  bool
	Status   string
	ExitCode *int // nil while running

	IPAddress   string
	NetworkMode string
	// Networks maps network name to the container's IP on it
	Networks map[string]string
	// PortBindings maps "port/proto" to host bindings
	PortBindings map[string][]HostPort

	// Health is empty when the image has no HEALTHCHECK
	Health      string
	HealthCheck string

	Labels map[string]string
}

// HostPortFor returns the first host binding for a container TCP port.
func (d *Details) HostPortFor(port int) (HostPort, bool) {
	for _, key := range []string{portKey(port, "tcp"), portKey(port, "")} {
		if bindings := d.PortBindings[key]; len(bindings) > 0 {
			return bindings[0], true
		}
	}
	return HostPort{}, false
}

// Network is a runtime network.
type Network struct {
	ID     string
	Name   string
	Driver string
}

// Summary is one row of a container listing.
type Summary struct {
	ID   ContainerID
	Name string
}

// ListFilter narrows ListContainers.
type ListFilter struct {
	// Labels must all match ("key=value", or "key" for presence)
	Labels []string
	// Name matches container names by substring, as the runtime does
	Name string
	// All includes stopped containers
	All bool
}
