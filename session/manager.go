package session

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/RelayKit/events"
	"github.com/AltairaLabs/RelayKit/gateway"
	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/store"
	"github.com/AltairaLabs/RelayKit/telemetry"
	"github.com/AltairaLabs/RelayKit/tools"
)

// ErrSessionNotFound is returned when a session id is unknown to the manager.
var ErrSessionNotFound = errors.New("session not found")

// ManagerConfig carries the collaborators shared by every session a manager
// opens. All fields are optional.
type ManagerConfig struct {
	// Bus receives lifecycle and call events from every session.
	Bus *events.EventBus

	// Store persists transcripts for every session.
	Store store.Store

	// Tracing opens a root span per session and child spans per call.
	Tracing *telemetry.OTelEventListener
}

// Manager tracks the open sessions of one process. Sessions remove
// themselves when they end, however they end.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Open builds, starts, and registers a new session. The transport is dialed
// with gwCfg; cfg shapes the session itself. On failure nothing is
// registered and the error is returned.
func (m *Manager) Open(ctx context.Context, cfg Config, gwCfg gateway.Config, registry *tools.Registry) (*Session, error) {
	opts := make([]Option, 0, 2)
	if m.cfg.Bus != nil {
		opts = append(opts, WithEventBus(m.cfg.Bus))
	}
	if m.cfg.Store != nil {
		opts = append(opts, WithStore(m.cfg.Store))
	}
	s := New(cfg, gateway.NewTransport(gwCfg), registry, opts...)

	// The root span must exist before the session emits its first event.
	if m.cfg.Tracing != nil {
		m.cfg.Tracing.StartSession(ctx, s.ID())
	}

	if err := s.Start(ctx); err != nil {
		if m.cfg.Tracing != nil {
			m.cfg.Tracing.EndSession(s.ID())
		}
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	count := len(m.sessions)
	m.mu.Unlock()

	go m.reap(s)
	logger.Info("session opened", "session_id", s.ID(), "active_sessions", count)
	return s, nil
}

// reap waits for a session to end and forgets it.
func (m *Manager) reap(s *Session) {
	<-s.Done()
	if m.cfg.Tracing != nil {
		m.cfg.Tracing.EndSession(s.ID())
	}
	m.mu.Lock()
	delete(m.sessions, s.ID())
	count := len(m.sessions)
	m.mu.Unlock()
	logger.Info("session removed", "session_id", s.ID(), "active_sessions", count)
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends one session and blocks until its teardown completes.
func (m *Manager) Close(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Close()
}

// Shutdown closes every open session concurrently and waits for all of them
// or for the context, whichever ends first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, s := range open {
		g.Go(s.Close)
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
