package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session is the identity behind an opaque cookie token.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	ChatCount      int       `json:"chat_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	onPurge           func(sessionID string)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetPurgeHook is called when an ended session is finally forgotten, one
// inactivity timeout after it ended. Late writers that raced the expire hook
// get a second cleanup here.
func (m *Manager) SetPurgeHook(hook func(sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPurge = hook
}

// Create issues a new token bound to a fresh demo user.
func (m *Manager) Create() *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         newDemoUserID(),
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

// Resolve returns the active session for token, creating one when the token
// is empty, unknown or ended. created reports whether a new token was issued.
func (m *Manager) Resolve(token string) (s *Session, created bool) {
	token = strings.TrimSpace(token)
	if token != "" {
		m.mu.Lock()
		existing, ok := m.sessions[token]
		if ok && existing.Status == StatusActive {
			existing.LastActivityAt = time.Now().UTC()
			out := clone(existing)
			m.mu.Unlock()
			return out, false
		}
		m.mu.Unlock()
	}
	return m.Create(), true
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// RecordChat bumps the chat counter of a session.
func (m *Manager) RecordChat(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.ChatCount++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	out := clone(s)
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		hook(out)
	}
	return out, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var (
		expired []*Session
		purged  []string
	)

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Status == StatusEnded {
			// Ended sessions are kept for one more timeout so late requests
			// still see a consistent identity, then forgotten.
			if now.Sub(s.LastActivityAt) >= m.inactivityTimeout {
				delete(m.sessions, id)
				purged = append(purged, id)
			}
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
	}
	hook, purge := m.onExpire, m.onPurge
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
	if purge != nil {
		for _, id := range purged {
			purge(id)
		}
	}
}

func newDemoUserID() string {
	return "demo-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
