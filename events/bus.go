// Package events provides a lightweight pub/sub event bus for session observability.
//
// Sessions emit lifecycle and call-processing events through an Emitter; metrics
// and telemetry listeners subscribe without the session loop knowing about them.
// Publishing never blocks the caller: events queue into a bounded buffer served
// by a worker pool, and are dropped when the buffer is full.
package events

import "sync"

// Listener is a function that handles events.
type Listener func(*Event)

const (
	defaultWorkerPoolSize  = 4
	defaultEventBufferSize = 256
)

// Option configures an EventBus.
type Option func(*EventBus)

// WithWorkerPoolSize sets the number of dispatch workers. Values < 1 are ignored.
func WithWorkerPoolSize(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.poolSize = n
		}
	}
}

// WithEventBufferSize sets the publish queue capacity. Values < 1 are ignored.
func WithEventBufferSize(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.bufferSize = n
		}
	}
}

// EventBus manages event distribution to listeners through a worker pool.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType]map[int]Listener
	globalListeners map[int]Listener
	nextID          int

	poolSize   int
	bufferSize int
	queue      chan *Event
	workers    sync.WaitGroup

	stateMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewEventBus creates a new event bus and starts its worker pool.
func NewEventBus(opts ...Option) *EventBus {
	eb := &EventBus{
		listeners:       make(map[EventType]map[int]Listener),
		globalListeners: make(map[int]Listener),
		poolSize:        defaultWorkerPoolSize,
		bufferSize:      defaultEventBufferSize,
	}
	for _, opt := range opts {
		opt(eb)
	}

	eb.queue = make(chan *Event, eb.bufferSize)
	eb.workers.Add(eb.poolSize)
	for i := 0; i < eb.poolSize; i++ {
		go eb.worker()
	}
	return eb
}

func (eb *EventBus) worker() {
	defer eb.workers.Done()
	for event := range eb.queue {
		eb.dispatch(event)
	}
}

func (eb *EventBus) dispatch(event *Event) {
	eb.mu.RLock()
	specific := make([]Listener, 0, len(eb.listeners[event.Type]))
	for _, listener := range eb.listeners[event.Type] {
		specific = append(specific, listener)
	}
	global := make([]Listener, 0, len(eb.globalListeners))
	for _, listener := range eb.globalListeners {
		global = append(global, listener)
	}
	eb.mu.RUnlock()

	for _, listener := range specific {
		safeInvoke(listener, event)
	}
	for _, listener := range global {
		safeInvoke(listener, event)
	}
}

// Subscribe registers a listener for a specific event type.
// The returned function removes the listener.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.nextID
	eb.nextID++
	if eb.listeners[eventType] == nil {
		eb.listeners[eventType] = make(map[int]Listener)
	}
	eb.listeners[eventType][id] = listener

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.listeners[eventType], id)
	}
}

// SubscribeAll registers a listener for all event types.
// The returned function removes the listener.
func (eb *EventBus) SubscribeAll(listener Listener) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.nextID
	eb.nextID++
	eb.globalListeners[id] = listener

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.globalListeners, id)
	}
}

// Publish queues an event for delivery and reports whether it was accepted.
// It returns false when the bus is closed or the queue is full; a full queue
// drops the event rather than blocking the caller.
func (eb *EventBus) Publish(event *Event) bool {
	eb.stateMu.RLock()
	defer eb.stateMu.RUnlock()

	if eb.closed {
		return false
	}

	select {
	case eb.queue <- event:
		return true
	default:
		return false
	}
}

// Close stops accepting new events and waits for queued events to drain.
// It is safe to call multiple times.
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		eb.stateMu.Lock()
		eb.closed = true
		eb.stateMu.Unlock()

		close(eb.queue)
		eb.workers.Wait()
	})
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType]map[int]Listener)
	eb.globalListeners = make(map[int]Listener)
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
