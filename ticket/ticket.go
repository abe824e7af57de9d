package ticket

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

// TokenPrefix makes service tickets recognizable on the wire.
const TokenPrefix = "ST-"

const tokenRandomLength = 24

// ErrTicketInvalid is the uniform failure for every way a ticket can be
// unusable: unknown, expired, already consumed, or bound to a different
// service. Callers must not learn which one happened.
var ErrTicketInvalid = errors.New("invalid service ticket")

// Ticket is a one-time-use credential-exchange token bound to a single
// principal and the service URL it was issued for.
type Ticket struct {
	Token       string
	PrincipalID string
	Service     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

func (t *Ticket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Store guarantees at-most-once, time-bounded use of service tickets.
//
// ValidateAndConsume must be linearizable per token: of any number of
// concurrent calls with the same token, exactly one may succeed.
type Store interface {
	// Issue creates a ticket for the principal, scoped to the given
	// service URL, and returns the opaque token.
	Issue(principalID, service string) (string, error)

	// ValidateAndConsume atomically looks up, deletes and returns the
	// principal id bound to the token. Any failure is ErrTicketInvalid.
	ValidateAndConsume(token, service string) (string, error)

	// Invalidate removes a ticket without consuming it, reporting whether
	// a record existed.
	Invalidate(token string) (bool, error)
}

// newToken builds an unguessable token: prefix, crypto/rand entropy, and a
// time disambiguator so tokens never collide even under a broken rand.
func newToken(now time.Time) (string, error) {
	b := make([]byte, tokenRandomLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b) + strconv.FormatInt(now.UnixNano(), 36), nil
}
