package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RevCBH/berth/internal/container"
)

// fakeRuntime is an in-memory container engine for command tests.
type fakeRuntime struct {
	mu         sync.Mutex
	seq        int
	containers map[string]*container.Details
	order      []string
	images     map[string]bool
	calls      []string
	startErr   error
}

var _ container.Runtime = (*fakeRuntime)(nil)

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]*container.Details),
		images:     make(map[string]bool),
	}
}

func (f *fakeRuntime) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, op+" ") {
			n++
		}
	}
	return n
}

func (f *fakeRuntime) running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.containers {
		if d.Running {
			n++
		}
	}
	return n
}

func (f *fakeRuntime) Create(ctx context.Context, cfg container.ContainerConfig) (container.ContainerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("%012d%s", f.seq, strings.Repeat("a", 52))
	f.containers[id] = &container.Details{
		ID:      id,
		Name:    cfg.Name,
		Image:   cfg.Image,
		Created: time.Date(2024, 1, 1, 0, 0, f.seq, 0, time.UTC),
		Labels:  maps.Clone(cfg.Labels),
	}
	f.order = append(f.order, id)
	f.calls = append(f.calls, "create "+cfg.Image)
	return container.ContainerID(id), nil
}

func (f *fakeRuntime) Start(ctx context.Context, id container.ContainerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	d, ok := f.containers[string(id)]
	if !ok {
		return container.ErrNotFound
	}
	d.Running = true
	f.calls = append(f.calls, "start "+d.Image)
	return nil
}

func (f *fakeRuntime) Stop(ctx context.Context, id container.ContainerID, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.containers[string(id)]
	if !ok {
		return container.ErrNotFound
	}
	d.Running = false
	f.calls = append(f.calls, "stop "+d.Image)
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, id container.ContainerID, removeVolumes bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.containers[string(id)]
	if !ok {
		return container.ErrNotFound
	}
	delete(f.containers, string(id))
	f.calls = append(f.calls, "remove "+d.Image)
	return nil
}

func (f *fakeRuntime) Inspect(ctx context.Context, id container.ContainerID) (*container.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.containers[string(id)]
	if !ok {
		return nil, container.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRuntime) Exec(ctx context.Context, id container.ContainerID, cmd []string) (string, error) {
	return "", nil
}

func (f *fakeRuntime) Logs(ctx context.Context, id container.ContainerID, follow bool) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeRuntime) ListContainers(ctx context.Context, filter container.ListFilter) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []container.Summary
	for _, id := range f.order {
		d, ok := f.containers[id]
		if !ok || (!filter.All && !d.Running) {
			continue
		}
		if filter.Name != "" && !strings.Contains(d.Name, filter.Name) {
			continue
		}
		match := true
		for _, l := range filter.Labels {
			k, v, _ := strings.Cut(l, "=")
			if d.Labels[k] != v {
				match = false
			}
		}
		if match {
			out = append(out, container.Summary{ID: container.ContainerID(id), Name: d.Name})
		}
	}
	return out, nil
}

func (f *fakeRuntime) ImageExists(ctx context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], nil
}

func (f *fakeRuntime) Pull(ctx context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[image] = true
	f.calls = append(f.calls, "pull "+image)
	return nil
}

func (f *fakeRuntime) Tag(ctx context.Context, source, target string) error { return nil }

func (f *fakeRuntime) CreateNetwork(ctx context.Context, name string) (string, error) {
	return "net-" + name, nil
}

func (f *fakeRuntime) RemoveNetwork(ctx context.Context, nameOrID string) error { return nil }

func (f *fakeRuntime) ListNetworks(ctx context.Context) ([]container.Network, error) {
	return nil, nil
}

// syncBuffer is a bytes.Buffer safe for the event goroutine and the
// command to write concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const testConfig = `project: demo
state_dir: state
shutdown_timeout: 5s
workloads:
  - name: postgres:16
    alias: db
  - name: example/api:latest
    alias: api
    run:
      depends_on: [db]
`

// newTestApp returns an App wired to rt with a project directory holding
// the given berth.yaml.
func newTestApp(t *testing.T, rt *fakeRuntime, configYAML string) (*App, *syncBuffer) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "berth.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	logs := &syncBuffer{}
	app := &App{
		newRuntime: func(string) (container.Runtime, error) { return rt, nil },
		logSink:    logs,
	}
	app.setupRootCmd()
	app.projectDir = dir
	return app, logs
}

// execute runs the root command with args and returns its stdout.
func execute(ctx context.Context, app *App, args ...string) (string, error) {
	out := &syncBuffer{}
	app.rootCmd.SetOut(out)
	app.rootCmd.SetErr(out)
	app.rootCmd.SetArgs(append(args, "--dir", app.projectDir))
	err := app.rootCmd.ExecuteContext(ctx)
	return out.String(), err
}
