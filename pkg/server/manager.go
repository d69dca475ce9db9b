package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vango-dev/chatsync/pkg/metrics"
)

// Manager tracks the live sessions of a server.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// NewManager creates a Manager. maxSessions <= 0 means unlimited.
func NewManager(maxSessions int, m *metrics.Collector, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		metrics:     m,
		logger:      logger.With("component", "session_manager"),
	}
}

// Full reports whether the session limit is reached.
func (m *Manager) Full() bool {
	if m.maxSessions <= 0 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions) >= m.maxSessions
}

// Add registers s and removes it again when it closes.
func (m *Manager) Add(s *Session) error {
	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return ErrMaxSessionsReached
	}
	if _, exists := m.sessions[s.ID]; exists {
		m.mu.Unlock()
		return ErrDuplicateSession
	}
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	s.onClose = func(closed *Session) { m.Remove(closed.ID) }
	m.metrics.SessionOpened()
	m.logger.Info("session opened", "session_id", s.ID, "client_id", s.ClientID, "sessions", count)
	return nil
}

// Remove unregisters a session without closing it.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.metrics.SessionClosed()
	}
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ForEach calls fn for every session live at the time of the call.
func (m *Manager) ForEach(fn func(*Session)) {
	for _, s := range m.snapshot() {
		fn(s)
	}
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Shutdown closes every session concurrently and waits for them, or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	sessions := m.snapshot()
	m.logger.Info("closing sessions", "count", len(sessions))

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
