package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// SignalHandler turns SIGINT and SIGTERM into a batch shutdown. The first
// signal cancels the batch context. Any later signal aborts the teardown
// started through TeardownContext.
type SignalHandler struct {
	signals     chan os.Signal
	interrupted chan struct{} // closed on the first signal
	stopCh      chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	cancel      context.CancelFunc
	logger      *zap.Logger

	mu       sync.Mutex
	received int
	abort    context.CancelFunc
}

// NewSignalHandler creates a signal handler that calls cancel on the
// first signal
func NewSignalHandler(cancel context.CancelFunc, logger *zap.Logger) *SignalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalHandler{
		signals:     make(chan os.Signal, 2),
		interrupted: make(chan struct{}),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		cancel:      cancel,
		logger:      logger,
	}
}

// Start begins listening for signals
func (h *SignalHandler) Start() {
	h.StartWithNotify(true)
}

// StartWithNotify begins listening for signals, optionally registering with OS signal handling.
// Pass false for notify in unit tests to avoid global signal state interactions.
func (h *SignalHandler) StartWithNotify(notify bool) {
	if notify {
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}

	started := make(chan struct{})
	go func() {
		defer close(h.done)
		close(started)

		for {
			select {
			case sig := <-h.signals:
				h.handle(sig)
			case <-h.stopCh:
				return
			}
		}
	}()

	<-started
}

func (h *SignalHandler) handle(sig os.Signal) {
	h.mu.Lock()
	h.received++
	first := h.received == 1
	abort := h.abort
	h.mu.Unlock()

	if first {
		h.logger.Info("received signal, stopping batch", zap.String("signal", sig.String()))
		if h.cancel != nil {
			h.cancel()
		}
		close(h.interrupted)
		return
	}

	h.logger.Warn("received signal again, aborting teardown", zap.String("signal", sig.String()))
	if abort != nil {
		abort()
	}
}

// Interrupted is closed once the first signal arrived
func (h *SignalHandler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Received returns how many signals were handled
func (h *SignalHandler) Received() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.received
}

// TeardownContext returns a fresh context bounded by timeout that a
// further signal cancels. It is already cancelled when a second signal
// arrived before teardown began.
func (h *SignalHandler) TeardownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.abort = cancel
	if h.received > 1 {
		cancel()
	}
	return ctx, cancel
}

// Stop stops the signal handler and cleans up
func (h *SignalHandler) Stop() {
	signal.Stop(h.signals)
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	// Bounded wait; the goroutine may be busy in a cancel callback
	select {
	case <-h.done:
	case <-time.After(100 * time.Millisecond):
	}
}
