package session

import "time"

// Session is the browser-cookie-bound central authenticated state. Every
// request carrying the same cookie observes the same principal, no matter
// which service provider triggered it.
type Session struct {
	ID          string    // Unique session identifier (UUID), carried in the cookie
	PrincipalID string    // Authenticated principal
	Username    string    // Denormalized for check-session responses
	Email       string    //
	CreatedAt   time.Time // When the session was established
	ExpiresAt   time.Time // When the session stops being honored
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
