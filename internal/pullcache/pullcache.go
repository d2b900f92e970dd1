// Package pullcache remembers which images were auto-pulled in a project
// so repeated runs do not pull them again, and decides when a pull is due.
package pullcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// KeyPrefix namespaces cache keys in the backing store.
const KeyPrefix = "previously-pulled"

// Store is the persistence the cache reads and writes through.
// Get returns ok=false when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
}

// Policy says when an image is pulled.
type Policy string

const (
	Always       Policy = "Always"
	IfNotPresent Policy = "IfNotPresent"
	Never        Policy = "Never"
)

// ParsePolicy resolves the effective policy. An explicit pull policy
// wins; otherwise the legacy auto-pull switch is mapped: "on", "once" and
// "true" mean IfNotPresent, "off" and "false" mean Never, "always" means
// Always. Both empty yields IfNotPresent.
func ParsePolicy(pullPolicy, autoPull string) (Policy, error) {
	if pullPolicy != "" {
		for _, p := range []Policy{Always, IfNotPresent, Never} {
			if strings.EqualFold(pullPolicy, string(p)) {
				return p, nil
			}
		}
		return "", fmt.Errorf("invalid image pull policy %q (want Always, IfNotPresent or Never)", pullPolicy)
	}

	switch strings.ToLower(autoPull) {
	case "", "on", "once", "true":
		return IfNotPresent, nil
	case "off", "false":
		return Never, nil
	case "always":
		return Always, nil
	}
	return "", fmt.Errorf("invalid auto pull mode %q (want on, once, off or always)", autoPull)
}

// RequiresPull decides whether to pull given local presence. Never with a
// missing image is an error since the container cannot be created.
func RequiresPull(policy Policy, hasImage bool, image string) (bool, error) {
	if !hasImage {
		if policy == Never {
			return false, fmt.Errorf("image %s not present locally and pull policy is %s", image, Never)
		}
		return true, nil
	}
	return policy == Always, nil
}

// Cache is the set of images already pulled in one project context. It is
// loaded lazily and written back on every change; concurrent writers from
// other processes are not detected.
type Cache struct {
	store Store
	key   string

	mu     sync.Mutex
	loaded bool
	images map[string]bool
}

// New creates a cache for the given project.
func New(store Store, project string) *Cache {
	key := KeyPrefix
	if project != "" {
		key = KeyPrefix + ":" + project
	}
	return &Cache{store: store, key: key}
}

// HasPulled reports whether the image was pulled before.
func (c *Cache) HasPulled(ctx context.Context, image string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return false, err
	}
	return c.images[image], nil
}

// MarkPulled records the image and persists the set.
func (c *Cache) MarkPulled(ctx context.Context, image string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return err
	}
	if c.images[image] {
		return nil
	}
	c.images[image] = true

	data, err := json.Marshal(c.images)
	if err != nil {
		return fmt.Errorf("encode pull cache: %w", err)
	}
	if err := c.store.Put(ctx, c.key, string(data)); err != nil {
		return fmt.Errorf("save pull cache: %w", err)
	}
	return nil
}

// Images returns the cached image names, sorted.
func (c *Cache) Images(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(c.images))
	for img := range c.images {
		out = append(out, img)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Cache) loadLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	c.images = make(map[string]bool)

	value, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		return fmt.Errorf("load pull cache: %w", err)
	}
	if ok && value != "" {
		if err := json.Unmarshal([]byte(value), &c.images); err != nil {
			return fmt.Errorf("decode pull cache: %w", err)
		}
	}
	c.loaded = true
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}
