package bsky

import (
	"sync"
)

// SessionEvent names a change to the session slot. Persist handlers receive
// one per transition.
type SessionEvent string

const (
	SessionCreate       SessionEvent = "create"
	SessionCreateFailed SessionEvent = "create-failed"
	SessionUpdate       SessionEvent = "update"
	SessionExpired      SessionEvent = "expired"
	SessionNetworkError SessionEvent = "network-error"
)

type Session struct {
	AccessJwt       string `json:"accessJwt"`
	RefreshJwt      string `json:"refreshJwt"`
	Handle          string `json:"handle"`
	DID             string `json:"did"`
	Email           string `json:"email,omitempty"`
	EmailConfirmed  bool   `json:"emailConfirmed,omitempty"`
	EmailAuthFactor bool   `json:"emailAuthFactor,omitempty"`
	Active          bool   `json:"active"`
	Status          string `json:"status,omitempty"`
}

// PersistHandler is notified after every session transition. sess is nil
// for transitions that leave the slot empty.
type PersistHandler func(evt SessionEvent, sess *Session)

// SessionManager owns the session slot of one agent.
type SessionManager struct {
	mu      sync.RWMutex
	session *Session
	pdsURL  string
	persist PersistHandler
	// binding changes whenever the slot is bound, cleared or expired.
	// Refresh results for an older binding are dropped.
	binding uint64

	// refreshMu collapses concurrent refreshes into one.
	refreshMu sync.Mutex
}

func (m *SessionManager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

func (m *SessionManager) DID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.DID
}

func (m *SessionManager) PDSURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pdsURL
}

// current returns a copy of the session with its binding.
func (m *SessionManager) current() (*Session, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, m.binding
	}
	s := *m.session
	return &s, m.binding
}

// Resume binds an existing session without contacting the server.
func (m *SessionManager) Resume(sess Session, pdsURL string) {
	m.mu.Lock()
	m.session = &sess
	m.pdsURL = pdsURL
	m.binding++
	m.mu.Unlock()
}

func (m *SessionManager) SetPersistHandler(fn PersistHandler) {
	m.mu.Lock()
	m.persist = fn
	m.mu.Unlock()
}

// Clear drops the session, PDS URL and persist handler.
func (m *SessionManager) Clear() {
	m.mu.Lock()
	m.session = nil
	m.pdsURL = ""
	m.persist = nil
	m.binding++
	m.mu.Unlock()
}

// emit updates the slot for evt and notifies the handler outside the lock.
// It does nothing and reports false when binding is no longer current.
func (m *SessionManager) emit(binding uint64, evt SessionEvent, sess *Session) bool {
	m.mu.Lock()
	if binding != m.binding {
		m.mu.Unlock()
		return false
	}
	switch evt {
	case SessionCreate, SessionUpdate:
		if sess != nil {
			s := *sess
			m.session = &s
		}
	case SessionExpired, SessionCreateFailed:
		m.session = nil
		m.binding++
	}
	handler := m.persist
	m.mu.Unlock()

	if handler != nil {
		var out *Session
		if sess != nil {
			s := *sess
			out = &s
		}
		handler(evt, out)
	}
	return true
}
