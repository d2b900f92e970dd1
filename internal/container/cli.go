package container

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the runtime does not know the container,
// image or network.
var ErrNotFound = errors.New("not found")

// Runner executes the runtime binary and returns its stdout. A non-zero
// exit is reported as a *CommandError.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError is a runtime invocation that exited non-zero.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	output, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, &CommandError{Args: args, Stderr: strings.TrimSpace(string(exitErr.Stderr)), Err: err}
	}
	return output, err
}

// CLIManager implements Runtime using docker/podman CLI.
type CLIManager struct {
	runtime string // "docker" or "podman"
	runner  Runner
}

// NewCLIManager creates a Manager using the specified runtime.
// Use DetectRuntime() to find an available runtime first.
func NewCLIManager(runtime string) *CLIManager {
	return NewCLIManagerWithRunner(runtime, execRunner{})
}

// NewCLIManagerWithRunner creates a Manager that invokes the runtime
// through runner.
func NewCLIManagerWithRunner(runtime string, runner Runner) *CLIManager {
	return &CLIManager{runtime: runtime, runner: runner}
}

// Name returns the runtime binary in use.
func (m *CLIManager) Name() string {
	return m.runtime
}

// run executes the runtime and returns stdout. Failures carry stderr, and
// "no such" messages are mapped to ErrNotFound.
func (m *CLIManager) run(ctx context.Context, action string, args ...string) ([]byte, error) {
	output, err := m.runner.Output(ctx, m.runtime, args...)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			if isNotFound(cmdErr.Stderr) {
				return nil, fmt.Errorf("failed to %s: %w: %s", action, ErrNotFound, cmdErr.Stderr)
			}
			return nil, fmt.Errorf("failed to %s: %w", action, cmdErr)
		}
		return nil, fmt.Errorf("failed to %s: %w", action, err)
	}
	return output, nil
}

func isNotFound(stderr string) bool {
	s := strings.ToLower(stderr)
	// a missing binary inside a running container
	if strings.Contains(s, "executable file not found") {
		return false
	}
	return strings.Contains(s, "no such") || strings.Contains(s, "not found")
}

// Create creates a new container but does not start it.
func (m *CLIManager) Create(ctx context.Context, cfg ContainerConfig) (ContainerID, error) {
	output, err := m.run(ctx, "create container", createArgs(cfg)...)
	if err != nil {
		return "", err
	}
	return ContainerID(lastLine(output)), nil
}

// createArgs builds the `create` command line. Map-valued options are
// emitted in key order.
func createArgs(cfg ContainerConfig) []string {
	args := []string{"create"}
	if cfg.Name != "" {
		args = append(args, "--name", cfg.Name)
	}

	for _, k := range sortedKeys(cfg.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, cfg.Env[k]))
	}
	for _, k := range sortedKeys(cfg.Labels) {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, cfg.Labels[k]))
	}

	// Set working directory if specified
	if cfg.WorkDir != "" {
		args = append(args, "-w", cfg.WorkDir)
	}
	for _, p := range cfg.Ports {
		args = append(args, "-p", p)
	}
	for _, l := range cfg.Links {
		args = append(args, "--link", l)
	}
	for _, v := range cfg.VolumesFrom {
		args = append(args, "--volumes-from", v)
	}
	for _, b := range cfg.Binds {
		args = append(args, "-v", b)
	}
	if cfg.NetworkMode != "" {
		args = append(args, "--network", cfg.NetworkMode)
	}
	for _, a := range cfg.NetworkAliases {
		args = append(args, "--network-alias", a)
	}

	// The CLI takes a single entrypoint word; the rest leads the command.
	var extra []string
	if len(cfg.Entrypoint) > 0 {
		args = append(args, "--entrypoint", cfg.Entrypoint[0])
		extra = cfg.Entrypoint[1:]
	}

	// Image and command come last
	args = append(args, cfg.Image)
	args = append(args, extra...)
	args = append(args, cfg.Cmd...)
	return args
}

// Start starts a previously created container.
func (m *CLIManager) Start(ctx context.Context, id ContainerID) error {
	_, err := m.run(ctx, "start container", "start", string(id))
	return err
}

// Stop stops a running container with the specified timeout.
func (m *CLIManager) Stop(ctx context.Context, id ContainerID, timeout time.Duration) error {
	timeoutSecs := int(timeout.Seconds())
	_, err := m.run(ctx, "stop container", "stop", "-t", strconv.Itoa(timeoutSecs), string(id))
	return err
}

// Remove removes a stopped container.
func (m *CLIManager) Remove(ctx context.Context, id ContainerID, removeVolumes bool) error {
	args := []string{"rm"}
	if removeVolumes {
		args = append(args, "-v")
	}
	args = append(args, string(id))
	_, err := m.run(ctx, "remove container", args...)
	return err
}

// Inspect returns the container's current state.
func (m *CLIManager) Inspect(ctx context.Context, id ContainerID) (*Details, error) {
	output, err := m.run(ctx, "inspect container", "inspect", "--type", "container", string(id))
	if err != nil {
		return nil, err
	}
	return parseInspect(output)
}

// Exec runs cmd inside the container and returns combined output.
func (m *CLIManager) Exec(ctx context.Context, id ContainerID, cmd []string) (string, error) {
	if len(cmd) == 0 {
		return "", errors.New("exec: empty command")
	}
	args := append([]string{"exec", string(id)}, cmd...)
	output, err := m.run(ctx, fmt.Sprintf("exec %q", strings.Join(cmd, " ")), args...)
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// Logs returns a stream of container logs (stdout and stderr combined).
func (m *CLIManager) Logs(ctx context.Context, id ContainerID, follow bool) (io.ReadCloser, error) {
	args := []string{"logs"}
	if follow {
		// -f follows the log output until container exits
		args = append(args, "-f")
	}
	args = append(args, string(id))

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	cmd := exec.CommandContext(ctx, m.runtime, args...)
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		cancel()
		pw.Close()
		return nil, fmt.Errorf("failed to start log streaming: %w", err)
	}
	go func() {
		pw.CloseWithError(cmd.Wait())
	}()

	// When ctx is canceled, the command will be killed and pipe will close
	return &logStream{PipeReader: pr, cancel: cancel}, nil
}

type logStream struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (s *logStream) Close() error {
	s.cancel()
	return s.PipeReader.Close()
}

// ListContainers lists containers matching the filter.
func (m *CLIManager) ListContainers(ctx context.Context, filter ListFilter) ([]Summary, error) {
	args := []string{"ps", "--no-trunc", "--format", "{{.ID}}\t{{.Names}}"}
	if filter.All {
		args = append(args, "-a")
	}
	for _, l := range filter.Labels {
		args = append(args, "--filter", "label="+l)
	}
	if filter.Name != "" {
		args = append(args, "--filter", "name="+filter.Name)
	}

	output, err := m.run(ctx, "list containers", args...)
	if err != nil {
		return nil, err
	}

	var out []Summary
	for _, fields := range splitRows(output) {
		s := Summary{ID: ContainerID(fields[0])}
		if len(fields) > 1 {
			s.Name = fields[1]
		}
		out = append(out, s)
	}
	return out, nil
}

// ImageExists reports whether the image is available locally.
func (m *CLIManager) ImageExists(ctx context.Context, image string) (bool, error) {
	_, err := m.run(ctx, "inspect image", "image", "inspect", image)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Pull fetches an image.
func (m *CLIManager) Pull(ctx context.Context, image string) error {
	_, err := m.run(ctx, "pull image "+image, "pull", image)
	return err
}

// Tag adds target as a reference to source.
func (m *CLIManager) Tag(ctx context.Context, source, target string) error {
	_, err := m.run(ctx, "tag image", "tag", source, target)
	return err
}

// CreateNetwork creates a bridge network and returns its ID.
func (m *CLIManager) CreateNetwork(ctx context.Context, name string) (string, error) {
	output, err := m.run(ctx, "create network", "network", "create", name)
	if err != nil {
		return "", err
	}
	return lastLine(output), nil
}

// RemoveNetwork removes a network by name or ID.
func (m *CLIManager) RemoveNetwork(ctx context.Context, nameOrID string) error {
	_, err := m.run(ctx, "remove network", "network", "rm", nameOrID)
	return err
}

// ListNetworks lists all networks.
func (m *CLIManager) ListNetworks(ctx context.Context) ([]Network, error) {
	output, err := m.run(ctx, "list networks", "network", "ls", "--no-trunc", "--format", "{{.ID}}\t{{.Name}}\t{{.Driver}}")
	if err != nil {
		return nil, err
	}

	var out []Network
	for _, fields := range splitRows(output) {
		n := Network{ID: fields[0]}
		if len(fields) > 1 {
			n.Name = fields[1]
		}
		if len(fields) > 2 {
			n.Driver = fields[2]
		}
		out = append(out, n)
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lastLine returns the final non-empty output line. Podman may print pull
// progress before the ID.
func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func splitRows(output []byte) [][]string {
	var rows [][]string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

// Verify CLIManager implements Runtime interface
var _ Runtime = (*CLIManager)(nil)
