package spclient

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-cas-server/principals"
)

// LocalSession is the SP's own login context, created once a ticket has
// been validated. It lives and dies independently of the central session:
// a central logout does not revoke it.
type LocalSession struct {
	ID        string
	User      principals.Profile
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s LocalSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// LocalSessionStore holds the SP's sessions in memory, keyed by session ID.
type LocalSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]LocalSession
	ttl      time.Duration
	nowTime  func() time.Time
}

func NewLocalSessionStore(ttl time.Duration) *LocalSessionStore {
	return &LocalSessionStore{
		sessions: make(map[string]LocalSession),
		ttl:      ttl,
		nowTime:  time.Now,
	}
}

// Create mints a session for a freshly validated principal.
func (st *LocalSessionStore) Create(user principals.Profile) LocalSession {
	now := st.nowTime()
	session := LocalSession{
		ID:        uuid.NewString(),
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(st.ttl),
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[session.ID] = session
	return session
}

// Get returns the session if it exists and has not expired. Expired
// entries are removed lazily.
func (st *LocalSessionStore) Get(id string) (LocalSession, bool) {
	st.mu.RLock()
	session, found := st.sessions[id]
	st.mu.RUnlock()
	if !found {
		return LocalSession{}, false
	}
	if session.Expired(st.nowTime()) {
		st.Delete(id)
		return LocalSession{}, false
	}
	return session, true
}

func (st *LocalSessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}
