package session

import "time"

// Repo is the central session store. Unlike service tickets, sessions are
// shared across concurrent requests from different service providers and
// must survive process restarts, so production deployments back this with
// Postgres rather than process memory.
type Repo interface {
	// Upsert creates or refreshes a session
	Upsert(sessionID string, session *Session) error

	// Get retrieves a session by ID
	Get(sessionID string) (*Session, error)

	// Delete removes a session by ID
	Delete(sessionID string) error

	// DeleteExpired removes sessions that expired before the given time
	DeleteExpired(before time.Time) error
}
