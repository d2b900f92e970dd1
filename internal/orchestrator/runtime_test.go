package orchestrator

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RevCBH/berth/internal/container"
	"github.com/RevCBH/berth/internal/events"
	"github.com/RevCBH/berth/internal/pullcache"
	"github.com/RevCBH/berth/internal/tracker"
	"github.com/RevCBH/berth/internal/wait"
	"go.uber.org/zap"
)

// mockContainerRuntime keeps containers in memory and records every call
// as "<op> <image or name>".
type mockContainerRuntime struct {
	mu         sync.Mutex
	seq        int
	containers map[string]*container.Details
	order      []string
	images     map[string]bool
	networks   []container.Network
	logs       map[string]string
	configs    map[string]container.ContainerConfig
	calls      []string

	// onStart mutates a container's state once it is started
	onStart  func(d *container.Details)
	stopFunc func(id string) error
	execFunc func(id string, cmd []string) (string, error)
	// inspectFunc fails an Inspect when it returns an error
	inspectFunc func(id string) error
}

var _ container.Runtime = (*mockContainerRuntime)(nil)

func newMockRuntime() *mockContainerRuntime {
	return &mockContainerRuntime{
		containers: make(map[string]*container.Details),
		images:     make(map[string]bool),
		logs:       make(map[string]string),
		configs:    make(map[string]container.ContainerConfig),
	}
}

func (m *mockContainerRuntime) record(op, subject string) {
	m.calls = append(m.calls, op+" "+subject)
}

// Calls returns the recorded subjects of op, in call order.
func (m *mockContainerRuntime) Calls(op string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if rest, ok := strings.CutPrefix(c, op+" "); ok {
			out = append(out, rest)
		}
	}
	return out
}

func (m *mockContainerRuntime) config(id string) container.ContainerConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configs[id]
}

func (m *mockContainerRuntime) Create(ctx context.Context, cfg container.ContainerConfig) (container.ContainerID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%012d%s", m.seq, strings.Repeat("f", 52))
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("anon_%d", m.seq)
	}
	m.containers[id] = &container.Details{
		ID:           id,
		Name:         name,
		Image:        cfg.Image,
		Created:      time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC),
		Status:       "created",
		NetworkMode:  cfg.NetworkMode,
		Networks:     map[string]string{},
		PortBindings: map[string][]container.HostPort{},
		Labels:       maps.Clone(cfg.Labels),
	}
	m.order = append(m.order, id)
	m.configs[id] = cfg
	m.record("create", cfg.Image)
	return container.ContainerID(id), nil
}

func (m *mockContainerRuntime) Start(ctx context.Context, id container.ContainerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.containers[string(id)]
	if !ok {
		return container.ErrNotFound
	}
	d.Running = true
	d.Status = "running"
	d.IPAddress = "172.17.0.2"
	if m.onStart != nil {
		m.onStart(d)
	}
	m.record("start", d.Image)
	return nil
}

func (m *mockContainerRuntime) Stop(ctx context.Context, id container.ContainerID, timeout time.Duration) error {
	if m.stopFunc != nil {
		if err := m.stopFunc(string(id)); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.containers[string(id)]
	if !ok {
		return container.ErrNotFound
	}
	d.Running = false
	code := 0
	d.ExitCode = &code
	m.record("stop", d.Image)
	m.record("stop-timeout", fmt.Sprintf("%s %s", d.Image, timeout))
	return nil
}

func (m *mockContainerRuntime) Remove(ctx context.Context, id container.ContainerID, removeVolumes bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.containers[string(id)]
	if !ok {
		return container.ErrNotFound
	}
	delete(m.containers, string(id))
	m.record("remove", d.Image)
	return nil
}

func (m *mockContainerRuntime) Inspect(ctx context.Context, id container.ContainerID) (*container.Details, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inspectFunc != nil {
		if err := m.inspectFunc(string(id)); err != nil {
			return nil, err
		}
	}
	d, ok := m.containers[string(id)]
	if !ok {
		return nil, container.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockContainerRuntime) Exec(ctx context.Context, id container.ContainerID, cmd []string) (string, error) {
	m.mu.Lock()
	image := ""
	if d, ok := m.containers[string(id)]; ok {
		image = d.Image
	}
	m.record("exec", image+" "+strings.Join(cmd, " "))
	m.mu.Unlock()
	if m.execFunc != nil {
		return m.execFunc(string(id), cmd)
	}
	return "", nil
}

func (m *mockContainerRuntime) Logs(ctx context.Context, id container.ContainerID, follow bool) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return io.NopCloser(strings.NewReader(m.logs[string(id)])), nil
}

func (m *mockContainerRuntime) ListContainers(ctx context.Context, filter container.ListFilter) ([]container.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []container.Summary
	for _, id := range m.order {
		d, ok := m.containers[id]
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

func (m *mockContainerRuntime) ImageExists(ctx context.Context, image string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images[image], nil
}

func (m *mockContainerRuntime) Pull(ctx context.Context, image string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[image] = true
	m.record("pull", image)
	return nil
}

func (m *mockContainerRuntime) Tag(ctx context.Context, source, target string) error {
	return nil
}

func (m *mockContainerRuntime) CreateNetwork(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networks = append(m.networks, container.Network{ID: "net-" + name, Name: name, Driver: "bridge"})
	m.record("network-create", name)
	return "net-" + name, nil
}

func (m *mockContainerRuntime) RemoveNetwork(ctx context.Context, nameOrID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("network-remove", nameOrID)
	return nil
}

func (m *mockContainerRuntime) ListNetworks(ctx context.Context) ([]container.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]container.Network(nil), m.networks...), nil
}

// addRunning places a container the service did not create.
func (m *mockContainerRuntime) addRunning(name, image string, labels map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("ext%09d%s", m.seq, strings.Repeat("e", 52))
	m.containers[id] = &container.Details{
		ID:      id,
		Name:    name,
		Image:   image,
		Running: true,
		Created: time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC),
		Labels:  labels,
	}
	m.order = append(m.order, id)
	return id
}

type testService struct {
	*Service
	runtime *mockContainerRuntime
	cache   *pullcache.Cache
	bus     *events.Bus
	events  *eventRecorder
}

type eventRecorder struct {
	mu  sync.Mutex
	all []events.Event
}

func (r *eventRecorder) handle(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, e)
}

func (r *eventRecorder) types(workload string) []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventType
	for _, e := range r.all {
		if e.Workload == workload {
			out = append(out, e.Type)
		}
	}
	return out
}

func newTestService(t *testing.T, cfg Config, logger *zap.Logger) *testService {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := newMockRuntime()
	cache := pullcache.New(pullcache.NewMemoryStore(), "test")
	bus := events.NewBus(256)
	rec := &eventRecorder{}
	bus.Subscribe(rec.handle)
	t.Cleanup(func() { bus.Close() })

	svc := New(cfg, Dependencies{
		Runtime:   rt,
		Tracker:   tracker.New(),
		PullCache: cache,
		Bus:       bus,
		Logger:    logger,
		Waiter:    &wait.Waiter{Interval: 5 * time.Millisecond, DefaultMaxWait: time.Second, Logger: logger},
	})
	return &testService{Service: svc, runtime: rt, cache: cache, bus: bus, events: rec}
}
