// Package watch restarts workloads when files they depend on change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RevCBH/berth/internal/workload"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultInterval is the minimum spacing between restarts of one workload.
	DefaultInterval = time.Second

	// DefaultDebounce collapses bursts of file events into one restart.
	DefaultDebounce = 100 * time.Millisecond
)

// ErrNothingToWatch is returned when no workload declares watch paths.
var ErrNothingToWatch = errors.New("no workload declares watch paths")

// RestartFunc restarts one workload. It is invoked from a single goroutine,
// so restarts never overlap.
type RestartFunc func(ctx context.Context, w workload.Workload) error

// Config tunes the watcher.
type Config struct {
	Interval time.Duration
	Burst    int
	Debounce time.Duration
}

type target struct {
	path     string
	workload workload.Workload
}

// Watcher turns file-system events into rate-limited restarts.
type Watcher struct {
	cfg     Config
	restart RestartFunc
	logger  *zap.Logger

	fs       *fsnotify.Watcher
	targets  []target
	order    []string // workload keys in declaration order
	limiters map[string]*rate.Limiter

	mu      sync.Mutex
	pending map[string]workload.Workload
}

// New watches every path in the workloads' watch specs. Relative paths are
// resolved against the working directory.
func New(cfg Config, workloads []workload.Workload, restart RestartFunc, logger *zap.Logger) (*Watcher, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		cfg:      cfg,
		restart:  restart,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		pending:  make(map[string]workload.Workload),
	}
	for _, wl := range workloads {
		if wl.Run.Skip || len(wl.Run.Watch.Paths) == 0 {
			continue
		}
		for _, p := range wl.Run.Watch.Paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, fmt.Errorf("%s: watch path %q: %w", wl.Description(), p, err)
			}
			w.targets = append(w.targets, target{path: abs, workload: wl})
		}
		w.order = append(w.order, wl.Key())
		w.limiters[wl.Key()] = rate.NewLimiter(rate.Every(cfg.Interval), cfg.Burst)
	}
	if len(w.targets) == 0 {
		return nil, ErrNothingToWatch
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	added := make(map[string]bool)
	for _, t := range w.targets {
		if added[t.path] {
			continue
		}
		if err := addRecursive(fsw, t.path); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("%s: %w", t.workload.Description(), err)
		}
		added[t.path] = true
	}
	w.fs = fsw
	return w, nil
}

// addRecursive watches path and, for directories, every directory below it.
func addRecursive(fsw *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return fsw.Add(path)
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fsw.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", p, err)
			}
		}
		return nil
	})
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	timer := time.NewTimer(w.cfg.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addRecursive(w.fs, ev.Name)
				}
			}
			if w.mark(ev.Name) {
				timer.Reset(w.cfg.Debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))

		case <-timer.C:
			w.fire(ctx)
		}
	}
}

// mark queues every workload watching name. It reports whether any did.
func (w *Watcher) mark(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	matched := false
	for _, t := range w.targets {
		if covers(t.path, name) {
			w.pending[t.workload.Key()] = t.workload
			matched = true
		}
	}
	return matched
}

// fire restarts the queued workloads in declaration order. Restarts over
// the rate limit are dropped.
func (w *Watcher) fire(ctx context.Context) {
	w.mu.Lock()
	due := make([]workload.Workload, 0, len(w.pending))
	for _, key := range w.order {
		if wl, ok := w.pending[key]; ok {
			due = append(due, wl)
		}
	}
	clear(w.pending)
	w.mu.Unlock()

	for _, wl := range due {
		log := w.logger.With(zap.String("workload", wl.Description()))
		if !w.limiters[wl.Key()].Allow() {
			log.Info("restart skipped, rate limited")
			continue
		}
		log.Info("files changed, restarting")
		if err := w.restart(ctx, wl); err != nil {
			log.Error("restart failed", zap.Error(err))
		}
	}
}

// covers reports whether name is root or lies below it.
func covers(root, name string) bool {
	name = filepath.Clean(name)
	if name == root {
		return true
	}
	return strings.HasPrefix(name, root+string(filepath.Separator))
}
