// Package session implements server-side session tracking: opaque
// session IDs handed to clients via a Set-Cookie, small per-session
// key/value scratch data, and TTL-based expiration. The Store is
// constructed explicitly in cmd/webserv and passed down, never a
// package-level singleton.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webserv/goserv/pkg/constants"
)

// Session holds one client's server-side state: small string scratch
// data plus the bookkeeping needed to decide expiration.
type Session struct {
	ID           string
	data         map[string]string
	createdAt    time.Time
	lastAccessed time.Time
}

// Get returns the value stored under key, or "" if absent.
func (s *Session) Get(key string) string {
	return s.data[key]
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	s.data[key] = value
}

// Store tracks live sessions keyed by ID, expiring any session whose
// last access is older than TTL. Safe for concurrent use by the
// single-threaded event loop's handler goroutine and any background
// cleanup caller.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewStore returns a Store using the default 30-minute TTL.
func NewStore() *Store {
	return NewStoreWithTTL(constants.SessionTTL)
}

// NewStoreWithTTL returns a Store with a caller-chosen TTL, used by
// tests that need expiration to happen on a shorter clock.
func NewStoreWithTTL(ttl time.Duration) *Store {
	return &Store{sessions: make(map[string]*Session), ttl: ttl}
}

// Create allocates a new session with a fresh, unguessable ID and
// stores it.
func (st *Store) Create() *Session {
	id := newSessionID()
	sess := &Session{
		ID:           id,
		data:         make(map[string]string),
		createdAt:    time.Now(),
		lastAccessed: time.Now(),
	}
	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()
	return sess
}

// Get returns the session for id and touches its last-accessed time,
// or returns (nil, false) if id is unknown or expired. An expired
// session found here is evicted immediately.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	if st.expired(sess) {
		delete(st.sessions, id)
		return nil, false
	}
	sess.lastAccessed = time.Now()
	return sess, true
}

// Touch refreshes id's last-accessed time without returning the
// session. It is a no-op if id is unknown.
func (st *Store) Touch(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok := st.sessions[id]; ok {
		sess.lastAccessed = time.Now()
	}
}

// CleanupExpired evicts every session past its TTL and returns how
// many were removed.
func (st *Store) CleanupExpired() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, sess := range st.sessions {
		if st.expired(sess) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports how many sessions are currently tracked, expired or not.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) expired(sess *Session) bool {
	return time.Since(sess.lastAccessed) > st.ttl
}

// newSessionID returns a 32-character alphanumeric ID: a UUIDv4
// stripped of its dashes.
func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
