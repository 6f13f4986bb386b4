package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionManager grants the bridge to one WebSocket client at a time.
//
// The card field belongs to whoever holds the session, so a second client is
// rejected until the first one disconnects.
type SessionManager struct {
	id        string
	origin    string // Bound origin for the session
	ip        string // Bound IP address for the session
	since     time.Time
	apiSecret string // Optional API secret checked on connect
	mu        sync.RWMutex
}

// SessionInfo describes the client holding the session.
type SessionInfo struct {
	ID         string
	Origin     string
	RemoteAddr string
	Since      time.Time
}

// NewSessionManager creates a new session manager
func NewSessionManager(apiSecret string) *SessionManager {
	return &SessionManager{
		apiSecret: apiSecret,
	}
}

// Acquire claims the session and returns its id.
// Returns an empty string if the session is already claimed or the secret is wrong.
func (m *SessionManager) Acquire(secret string, origin string, remoteAddr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.apiSecret != "" && secret != m.apiSecret {
		return ""
	}

	if m.id != "" {
		return ""
	}

	m.id = uuid.NewString()
	m.origin = origin
	m.ip = remoteAddr
	m.since = time.Now()

	log.Printf("Session acquired: %s (origin: %s, ip: %s)", m.id, origin, remoteAddr)
	return m.id
}

// Validate reports whether id is the active session.
func (m *SessionManager) Validate(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.id != "" && m.id == id
}

// Info returns the client bound to the active session. ok is false when the
// bridge is free.
func (m *SessionManager) Info() (info SessionInfo, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.id == "" {
		return SessionInfo{}, false
	}
	return SessionInfo{ID: m.id, Origin: m.origin, RemoteAddr: m.ip, Since: m.since}, true
}

// Active returns the active session id, or "" when the bridge is free.
func (m *SessionManager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// Release frees the session if id is the active one.
func (m *SessionManager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id == "" || m.id != id {
		return
	}

	log.Printf("Session released: %s (origin: %s, ip: %s, held %v)", m.id, m.origin, m.ip, time.Since(m.since).Round(time.Millisecond))
	m.id = ""
	m.origin = ""
	m.ip = ""
	m.since = time.Time{}
}
