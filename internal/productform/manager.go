package productform

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type session struct {
	form     *Controller
	lastSeen time.Time
}

// Manager keeps open forms keyed by session id.
type Manager struct {
	deps   Deps
	idle   time.Duration
	logger *zap.SugaredLogger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewManager creates a session registry. Forms unused for longer than idle are swept.
func NewManager(deps Deps, idle time.Duration) *Manager {
	return &Manager{
		deps:     deps,
		idle:     idle,
		logger:   deps.Logger,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Open starts a form for a new product (productID empty) or an existing one.
func (m *Manager) Open(ctx context.Context, productID string) (*Controller, error) {
	form, err := Open(ctx, m.deps, productID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[form.ID()] = &session{form: form, lastSeen: m.now()}
	m.mu.Unlock()

	m.logger.Infow("form session opened", "form_id", form.ID(), "product_id", productID)
	return form, nil
}

// Get returns the form and marks it as used.
func (m *Manager) Get(id uuid.UUID) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastSeen = m.now()
	return s.form, nil
}

// Discard closes and forgets the form. It reports whether the session existed.
func (m *Manager) Discard(id uuid.UUID) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.form.Close()
		m.logger.Debugw("form session discarded", "form_id", id)
	}
	return ok
}

// SweepIdle discards forms idle for longer than the configured timeout. Forms with
// uploads still running are kept.
func (m *Manager) SweepIdle() int {
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var stale []*session
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) && !s.form.Uploading() {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.form.Close()
	}
	if len(stale) > 0 {
		m.logger.Infow("idle form sessions swept", "count", len(stale))
	}
	return len(stale)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
