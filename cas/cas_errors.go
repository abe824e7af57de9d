package cas

import "errors"

var (
	// AuthenticationFailedErr deliberately covers unknown user, wrong
	// password and locked principal alike.
	AuthenticationFailedErr = errors.New("authentication failed")

	// TicketInvalidErr deliberately covers unknown, expired, consumed and
	// wrong-service tickets alike.
	TicketInvalidErr = errors.New("invalid ticket")

	MalformedServiceErr = errors.New("malformed service url")
	NotLoggedInErr      = errors.New("not logged in")
)
