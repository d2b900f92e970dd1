package workload

import (
	"fmt"
	"strings"
)

// NamingStrategy selects how a workload's container name is derived.
type NamingStrategy string

const (
	// NamingAlias names the container after the workload alias.
	NamingAlias NamingStrategy = "alias"
	// NamingAuto applies the configured container name pattern.
	NamingAuto NamingStrategy = "auto"
	// NamingNone leaves naming to the runtime.
	NamingNone NamingStrategy = "none"
)

// Network modes with fixed meaning. Anything else is a custom network name,
// except the "container:<name>" form which joins another container's stack.
const (
	NetworkBridge  = "bridge"
	NetworkHost    = "host"
	NetworkNone    = "none"
	NetworkDefault = "default"

	containerNetworkPrefix = "container:"
)

// Workload is one container specification submitted for a batch.
// Name is the image reference and is unique within a batch.
type Workload struct {
	Name  string  `yaml:"name"`
	Alias string  `yaml:"alias,omitempty"`
	Run   RunSpec `yaml:"run,omitempty"`
}

// RunSpec holds everything needed to create and supervise the container.
type RunSpec struct {
	// Skip excludes the workload from startup while keeping it resolvable.
	Skip bool `yaml:"skip,omitempty"`

	Naming      NamingStrategy `yaml:"naming,omitempty"`
	NamePattern string         `yaml:"name_pattern,omitempty"`

	Cmd        []string          `yaml:"cmd,omitempty"`
	Entrypoint []string          `yaml:"entrypoint,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Labels     map[string]string `yaml:"labels,omitempty"`
	WorkDir    string            `yaml:"workdir,omitempty"`

	// Ports are "[host:]container" mappings.
	Ports []string `yaml:"ports,omitempty"`

	// Links are "name[:alias]" references to other workloads or containers.
	Links       []string `yaml:"links,omitempty"`
	VolumesFrom []string `yaml:"volumes_from,omitempty"`
	Binds       []string `yaml:"binds,omitempty"`

	Network   NetworkSpec `yaml:"network,omitempty"`
	DependsOn []string    `yaml:"depends_on,omitempty"`

	Wait       *WaitSpec `yaml:"wait,omitempty"`
	PullPolicy string    `yaml:"pull_policy,omitempty"`
	Watch      WatchSpec `yaml:"watch,omitempty"`
}

// NetworkSpec configures the container network.
type NetworkSpec struct {
	Mode    string   `yaml:"mode,omitempty"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// WatchSpec lists host paths whose changes restart the workload.
type WatchSpec struct {
	Paths []string `yaml:"paths,omitempty"`
}

// WaitSpec declares readiness and shutdown timing. All durations are in
// milliseconds.
type WaitSpec struct {
	// Time is the maximum wait, or a fixed delay when no probe is configured.
	Time int `yaml:"time,omitempty"`

	URL  string   `yaml:"url,omitempty"`
	HTTP HTTPWait `yaml:"http,omitempty"`

	// Log is a regular expression matched against container output.
	Log string `yaml:"log,omitempty"`

	TCP     TCPWait `yaml:"tcp,omitempty"`
	Healthy bool    `yaml:"healthy,omitempty"`
	Exit    *int    `yaml:"exit,omitempty"`

	Kill     int `yaml:"kill,omitempty"`
	Shutdown int `yaml:"shutdown,omitempty"`

	Exec ExecHooks `yaml:"exec,omitempty"`
}

// HTTPWait tunes the URL probe.
type HTTPWait struct {
	Method        string `yaml:"method,omitempty"`
	Status        string `yaml:"status,omitempty"`
	AllowAllHosts bool   `yaml:"allow_all_hosts,omitempty"`
}

// TCP probe modes.
const (
	TCPModeMapped = "mapped"
	TCPModeDirect = "direct"
)

// TCPWait tunes the TCP probe. In mapped mode Ports are container ports
// looked up in the published bindings; in direct mode they are dialed on
// the container IP.
type TCPWait struct {
	Host  string `yaml:"host,omitempty"`
	Ports []int  `yaml:"ports,omitempty"`
	Mode  string `yaml:"mode,omitempty"`
}

// ExecHooks are commands run inside the container around its lifetime.
type ExecHooks struct {
	PostStart []string `yaml:"post_start,omitempty"`
	PreStop   []string `yaml:"pre_stop,omitempty"`
}

// Description renders the workload for log and error messages.
func (w Workload) Description() string {
	if w.Alias == "" {
		return fmt.Sprintf("[%s]", w.Name)
	}
	return fmt.Sprintf("[%s] %q", w.Name, w.Alias)
}

// Names returns the identities other workloads may depend on.
func (w Workload) Names() []string {
	if w.Alias == "" || w.Alias == w.Name {
		return []string{w.Name}
	}
	return []string{w.Name, w.Alias}
}

// Key is the alias when set, otherwise the name.
func (w Workload) Key() string {
	if w.Alias != "" {
		return w.Alias
	}
	return w.Name
}

// Dependencies lists the names this workload needs running before it can
// start: volume sources, link targets, a container network target and any
// explicit depends_on entries. Duplicates are dropped, declaration order
// is kept.
func (w Workload) Dependencies() []string {
	var deps []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		deps = append(deps, name)
	}

	for _, v := range w.Run.VolumesFrom {
		add(v)
	}
	// Custom networks resolve peers by DNS, so links are not start edges.
	if !w.Run.Network.IsCustom() {
		for _, l := range w.Run.Links {
			add(LinkName(l))
		}
	}
	if target, ok := w.Run.Network.ContainerTarget(); ok {
		add(target)
	}
	for _, d := range w.Run.DependsOn {
		add(d)
	}
	return deps
}

// LinkName returns the container part of a "name[:alias]" link.
func LinkName(link string) string {
	if i := strings.LastIndex(link, ":"); i >= 0 {
		return link[:i]
	}
	return link
}

// LinkAlias returns the alias part of a link, or the name when absent.
func LinkAlias(link string) string {
	if i := strings.LastIndex(link, ":"); i >= 0 {
		return link[i+1:]
	}
	return link
}

// IsCustom reports whether the mode names a user-defined network.
func (n NetworkSpec) IsCustom() bool {
	switch n.Mode {
	case "", NetworkBridge, NetworkHost, NetworkNone, NetworkDefault:
		return false
	}
	return !strings.HasPrefix(n.Mode, containerNetworkPrefix)
}

// ContainerTarget returns the container named by a "container:<name>" mode.
func (n NetworkSpec) ContainerTarget() (string, bool) {
	if !strings.HasPrefix(n.Mode, containerNetworkPrefix) {
		return "", false
	}
	return strings.TrimPrefix(n.Mode, containerNetworkPrefix), true
}

// ContainerNetworkMode builds the "container:<id>" mode string.
func ContainerNetworkMode(id string) string {
	return containerNetworkPrefix + id
}
