package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-attempt-engine/internal/checkpoint"
	"github.com/gokatarajesh/quiz-attempt-engine/internal/quiz"
)

// ManagerOptions configures session defaults.
type ManagerOptions struct {
	TickInterval time.Duration
	Clock        func() time.Time
	OnEvent      func(Event)
}

// OpenRequest describes the attempt to restore or start.
type OpenRequest struct {
	Quiz      quiz.Quiz
	Questions []quiz.Question
	Owner     Owner
	AccessKey string
}

// Manager keeps at most one live session per quiz and owner in the process.
type Manager struct {
	store   checkpoint.Store
	backend Backend
	opts    ManagerOptions
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session *Session
	ready   chan struct{}
	err     error
}

// NewManager creates a session manager.
func NewManager(store checkpoint.Store, backend Backend, opts ManagerOptions, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		backend:  backend,
		opts:     opts,
		logger:   logger.With().Str("component", "session_manager").Logger(),
		sessions: make(map[string]*entry),
	}
}

// Open returns the live session for the quiz and owner, entering a new one
// when none exists. Concurrent opens for the same key share one Enter call.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	key := checkpoint.Key(req.Quiz.ID, req.Owner.Key)

	m.mu.Lock()
	if e, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		s, err := m.await(ctx, e)
		if err != nil || s.Live() {
			return s, err
		}
		m.mu.Lock()
		if m.sessions[key] == e {
			delete(m.sessions, key)
		}
	}
	if e, ok := m.sessions[key]; ok {
		// another caller replaced the finished session meanwhile
		m.mu.Unlock()
		return m.await(ctx, e)
	}

	e := &entry{ready: make(chan struct{})}
	s := New(Config{
		Quiz:         req.Quiz,
		Questions:    req.Questions,
		Owner:        req.Owner,
		AccessKey:    req.AccessKey,
		TickInterval: m.opts.TickInterval,
	}, Options{
		Store:   m.store,
		Backend: m.backend,
		Logger:  m.logger,
		Clock:   m.opts.Clock,
		OnEvent: m.observe(key, e),
	})
	e.session = s
	m.sessions[key] = e
	m.mu.Unlock()

	e.err = s.Enter(ctx)
	if e.err != nil {
		m.mu.Lock()
		if m.sessions[key] == e {
			delete(m.sessions, key)
		}
		m.mu.Unlock()
		s.Close()
	}
	close(e.ready)
	if e.err != nil {
		return nil, e.err
	}
	return s, nil
}

// observe forwards session events and drops the entry once its attempt is
// settled, so finished sessions do not accumulate.
func (m *Manager) observe(key string, e *entry) func(Event) {
	return func(ev Event) {
		if m.opts.OnEvent != nil {
			m.opts.OnEvent(ev)
		}
		if !settled(ev) {
			return
		}
		m.mu.Lock()
		owned := m.sessions[key] == e
		if owned {
			delete(m.sessions, key)
		}
		m.mu.Unlock()
		if owned {
			e.session.Close()
		}
	}
}

func settled(ev Event) bool {
	switch ev.Type {
	case EventSubmitted, EventAbandoned:
		return true
	case EventExpired:
		return ev.Result != nil
	}
	return false
}

func (m *Manager) await(ctx context.Context, e *entry) (*Session, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.session, nil
}

// Get returns the entered session for the quiz and owner, if any.
func (m *Manager) Get(quizID, ownerKey string) (*Session, bool) {
	m.mu.Lock()
	e, ok := m.sessions[checkpoint.Key(quizID, ownerKey)]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	return e.session, true
}

// Release tears down the session for the quiz and owner. Its checkpoint is
// kept so a later Open restores it.
func (m *Manager) Release(quizID, ownerKey string) {
	key := checkpoint.Key(quizID, ownerKey)
	m.mu.Lock()
	e, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if ok {
		e.session.Close()
	}
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
	m.logger.Info().Int("sessions", len(entries)).Msg("session manager stopped")
}
