package tracker

import (
	"slices"
	"sync"
	"time"

	"github.com/RevCBH/berth/internal/workload"
	"github.com/oklog/ulid/v2"
)

// BatchLabel groups the containers started by one invocation.
// The zero value means "no batch".
type BatchLabel string

// NewBatchLabel mints a fresh, time-ordered label.
func NewBatchLabel() BatchLabel {
	return BatchLabel(ulid.Make().String())
}

// Descriptor holds what teardown needs to know about a tracked container.
type Descriptor struct {
	ContainerID string
	Workload    workload.Workload
	Batch       BatchLabel

	// KillGrace is the wait between stop and kill.
	KillGrace time.Duration
	// ShutdownGrace is the wait between stop and removal.
	ShutdownGrace time.Duration
	PreStop       []string

	RegisteredAt time.Time
}

func newDescriptor(id string, w workload.Workload, batch BatchLabel) Descriptor {
	d := Descriptor{
		ContainerID:  id,
		Workload:     w,
		Batch:        batch,
		RegisteredAt: time.Now(),
	}
	if ws := w.Run.Wait; ws != nil {
		d.KillGrace = time.Duration(ws.Kill) * time.Millisecond
		d.ShutdownGrace = time.Duration(ws.Shutdown) * time.Millisecond
		d.PreStop = slices.Clone(ws.Exec.PreStop)
	}
	return d
}

// Tracker is a concurrency-safe registry of started containers.
// All operations share a single lock.
type Tracker struct {
	mu sync.Mutex

	byID    map[string]Descriptor
	order   []string // container IDs in registration order
	byName  map[string]string
	byAlias map[string]string
	batches map[BatchLabel][]string
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		byID:    make(map[string]Descriptor),
		byName:  make(map[string]string),
		byAlias: make(map[string]string),
		batches: make(map[BatchLabel][]string),
	}
}

// Register records a started container. Registering an ID twice replaces
// the earlier descriptor and moves it to the tail of the order.
func (t *Tracker) Register(id string, w workload.Workload, batch BatchLabel) Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[id]; ok {
		t.removeLocked(id)
	}

	d := newDescriptor(id, w, batch)
	t.byID[id] = d
	t.order = append(t.order, id)
	t.byName[w.Name] = id
	if w.Alias != "" {
		t.byAlias[w.Alias] = id
	}
	if batch != "" {
		t.batches[batch] = append(t.batches[batch], id)
	}
	return d
}

// Remove deletes a descriptor and scrubs it from every index.
func (t *Tracker) Remove(id string) (Descriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(id)
}

// Lookup resolves a name or alias to a container ID. Aliases win.
func (t *Tracker) Lookup(nameOrAlias string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byAlias[nameOrAlias]; ok {
		return id, true
	}
	id, ok := t.byName[nameOrAlias]
	return id, ok
}

// Get returns the descriptor for a container ID.
func (t *Tracker) Get(id string) (Descriptor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.byID[id]
	return d, ok
}

// Drain removes and returns the batch's descriptors, newest first.
// An empty batch drains everything.
func (t *Tracker) Drain(batch BatchLabel) []Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	if batch == "" {
		ids = slices.Clone(t.order)
	} else {
		ids = slices.Clone(t.batches[batch])
	}

	out := make([]Descriptor, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if d, ok := t.removeLocked(ids[i]); ok {
			out = append(out, d)
		}
	}
	return out
}

// Snapshot returns the batch's descriptors in registration order without
// removing them. An empty batch returns everything.
func (t *Tracker) Snapshot(batch BatchLabel) []Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Descriptor, 0, len(t.order))
	for _, id := range t.order {
		d := t.byID[id]
		if batch == "" || d.Batch == batch {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of tracked containers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

func (t *Tracker) removeLocked(id string) (Descriptor, bool) {
	d, ok := t.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	delete(t.byID, id)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == id })

	if t.byName[d.Workload.Name] == id {
		t.repoint(t.byName, d.Workload.Name, func(o Descriptor) string { return o.Workload.Name })
	}
	if d.Workload.Alias != "" && t.byAlias[d.Workload.Alias] == id {
		t.repoint(t.byAlias, d.Workload.Alias, func(o Descriptor) string { return o.Workload.Alias })
	}

	if d.Batch != "" {
		rest := slices.DeleteFunc(t.batches[d.Batch], func(s string) bool { return s == id })
		if len(rest) == 0 {
			delete(t.batches, d.Batch)
		} else {
			t.batches[d.Batch] = rest
		}
	}
	return d, true
}

// repoint moves an index entry to the newest remaining container with the
// same key, or deletes it when there is none.
func (t *Tracker) repoint(index map[string]string, key string, keyOf func(Descriptor) string) {
	for i := len(t.order) - 1; i >= 0; i-- {
		if keyOf(t.byID[t.order[i]]) == key {
			index[key] = t.order[i]
			return
		}
	}
	delete(index, key)
}
