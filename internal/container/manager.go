package container

import (
	"context"
	"io"
	"time"
)

// Manager provides container lifecycle management.
// Implementations must be safe for concurrent use.
type Manager interface {
	// Create creates a new container but does not start it.
	// Returns the container ID on success.
	Create(ctx context.Context, cfg ContainerConfig) (ContainerID, error)

	// Start starts a previously created container.
	Start(ctx context.Context, id ContainerID) error

	// Stop stops a running container. Sends SIGTERM, waits for timeout,
	// then sends SIGKILL if still running.
	Stop(ctx context.Context, id ContainerID, timeout time.Duration) error

	// Remove removes a stopped container, optionally with its anonymous volumes.
	Remove(ctx context.Context, id ContainerID, removeVolumes bool) error

	// Inspect returns current container state. Unknown IDs yield ErrNotFound.
	Inspect(ctx context.Context, id ContainerID) (*Details, error)

	// Exec runs a command inside a running container and returns its output.
	Exec(ctx context.Context, id ContainerID, cmd []string) (string, error)

	// Logs returns a stream of container logs (stdout and stderr combined).
	// With follow set the stream stays open until ctx ends or the container exits.
	// The caller must close the returned ReadCloser.
	Logs(ctx context.Context, id ContainerID, follow bool) (io.ReadCloser, error)

	// ListContainers returns containers matching the filter.
	ListContainers(ctx context.Context, filter ListFilter) ([]Summary, error)
}

// ImageManager covers the image operations used by the pull gate.
type ImageManager interface {
	// ImageExists reports whether the image is present locally.
	ImageExists(ctx context.Context, image string) (bool, error)

	// Pull fetches an image from its registry.
	Pull(ctx context.Context, image string) error

	// Tag adds a new reference to an existing image.
	Tag(ctx context.Context, source, target string) error
}

// NetworkManager covers user-defined networks.
type NetworkManager interface {
	CreateNetwork(ctx context.Context, name string) (string, error)
	RemoveNetwork(ctx context.Context, nameOrID string) error
	ListNetworks(ctx context.Context) ([]Network, error)
}

// Runtime is everything the orchestrator needs from a container engine.
type Runtime interface {
	Manager
	ImageManager
	NetworkManager
}
