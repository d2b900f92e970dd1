package events

import (
	"sync"
	"time"
)

// Handler receives events. Handlers run on the bus goroutine, one event
// at a time, in subscription order.
type Handler func(Event)

// Bus provides event distribution across components
type Bus struct {
	hmu      sync.Mutex
	handlers []Handler

	// mu guards closed against concurrent Emit and Close
	mu     sync.RWMutex
	closed bool

	events chan Event
	done   chan struct{}
}

// NewBus creates a new event bus with the specified capacity
func NewBus(capacity int) *Bus {
	b := &Bus{
		events: make(chan Event, capacity),
		done:   make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for all subsequent events
func (b *Bus) Subscribe(h Handler) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Emit queues an event. It blocks when the buffer is full and drops the
// event after Close.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.events <- e
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for e := range b.events {
		b.hmu.Lock()
		handlers := make([]Handler, len(b.handlers))
		copy(handlers, b.handlers)
		b.hmu.Unlock()

		for _, h := range handlers {
			h(e)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return nil
	}
	b.closed = true
	close(b.events)
	b.mu.Unlock()

	<-b.done
	return nil
}
