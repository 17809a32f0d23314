package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ThomasChan/Farm-Land/internal/auth"
	"github.com/ThomasChan/Farm-Land/internal/config"
	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/metrics"
	"github.com/ThomasChan/Farm-Land/internal/upstream"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Manager is the registry of open sessions.
type Manager struct {
	cfg      *config.Config
	client   *upstream.Client
	log      *logger.Logger
	sessions map[string]*Session
	now      func() time.Time
	mu       sync.RWMutex
}

// NewManager creates an empty registry.
func NewManager(cfg *config.Config, client *upstream.Client, log *logger.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		client:   client,
		log:      log.WithComponent("session"),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Login checks password against the auth endpoint and opens a new, empty
// session. The caller performs the initial load.
func (m *Manager) Login(ctx context.Context, password string) (*Session, error) {
	gate := auth.NewGate(m.client, m.cfg.Upstream.AuthAPI, m.log)
	if err := gate.Login(ctx, password); err != nil {
		return nil, err
	}

	s, err := newSession(uuid.New().String(), gate, m.cfg, m.client, m.log)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	m.log.Info("Session opened", map[string]interface{}{
		"session_id": s.ID,
		"backend":    s.Surface.Backend(),
		"open":       count,
	})

	return s, nil
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.Closed() {
		return nil, ErrNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Remove logs the session out and closes it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.Close()
	metrics.ActiveSessions.Dec()
	m.log.Info("Session closed", map[string]interface{}{"session_id": id})
	return nil
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the configured timeout and
// returns how many were closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.Session.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		metrics.ActiveSessions.Dec()
		m.log.Info("Session expired", map[string]interface{}{"session_id": s.ID})
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.Session.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		metrics.ActiveSessions.Dec()
	}
}
