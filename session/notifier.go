package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AltairaLabs/RelayKit/events"
	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/types"
)

// Notifier fans client envelopes out to zero or more subscribers. Publishing
// never blocks: each listener gets a buffered channel, and a listener that
// falls behind loses events rather than stalling the session loop. Within one
// listener's channel, events arrive in publish order.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[int]chan types.ClientEvent
	nextID    int
	buffer    int
	closed    bool

	sessionID string
	emitter   *events.Emitter
	dropped   atomic.Int64
}

// NewNotifier creates a notifier whose subscribers buffer up to buffer
// events each. The emitter may be nil.
func NewNotifier(sessionID string, buffer int, emitter *events.Emitter) *Notifier {
	if buffer <= 0 {
		buffer = DefaultNotifierBuffer
	}
	return &Notifier{
		listeners: make(map[int]chan types.ClientEvent),
		buffer:    buffer,
		sessionID: sessionID,
		emitter:   emitter,
	}
}

// Subscribe registers a listener and returns its channel plus a cancel
// function. Cancel is idempotent. Subscribing to a closed notifier returns
// an already-closed channel.
func (n *Notifier) Subscribe() (<-chan types.ClientEvent, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		ch := make(chan types.ClientEvent)
		close(ch)
		return ch, func() {}
	}

	id := n.nextID
	n.nextID++
	ch := make(chan types.ClientEvent, n.buffer)
	n.listeners[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if ch, ok := n.listeners[id]; ok {
				delete(n.listeners, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers evt to every current subscriber without blocking. Full
// channels drop the event for that listener only.
func (n *Notifier) Publish(evt types.ClientEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return
	}
	for id, ch := range n.listeners {
		select {
		case ch <- evt:
		default:
			n.dropped.Add(1)
			logger.Warn("session: listener behind, event dropped",
				"session_id", n.sessionID,
				"listener", id,
				"event_type", string(evt.Type))
			n.emitter.NotifyDropped(fmt.Sprintf("listener_%d", id), string(evt.Type))
		}
	}
}

// Status publishes a status envelope.
func (n *Notifier) Status(status string) {
	n.Publish(types.ClientEvent{
		Type: types.ClientStatus,
		Data: types.ClientStatusData{Status: status},
	})
}

// Dropped reports how many events were lost to slow listeners.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Len reports the current subscriber count.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Close terminates every subscriber channel. Publishes after Close are
// discarded.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.listeners {
		delete(n.listeners, id)
		close(ch)
	}
}
