package config

import "time"

type SSOConfig interface {
	GetTicketTTL() time.Duration
	GetTicketSweepPeriod() time.Duration
	GetSessionTTL() time.Duration
	GetSessionSigningSecret() string
	GetSessionCookieName() string
	GetCookieDomain() string
	GetCookieSecure() bool
	GetMaxLoginFailCount() int
}

type SSO struct{}

var _ SSOConfig = SSO{}

// GetTicketTTL is the fixed service ticket lifetime. Tickets are a
// one-shot credential exchange, so this is deliberately short and not
// configurable per call.
func (SSO) GetTicketTTL() time.Duration {
	return 30 * time.Second
}

func (SSO) GetTicketSweepPeriod() time.Duration {
	return 1 * time.Minute
}

func (SSO) GetSessionTTL() time.Duration {
	return 8 * time.Hour
}

func (SSO) GetSessionSigningSecret() string {
	return GetEnv("SESSION_SECRET", "dev-only-session-secret")
}

func (SSO) GetSessionCookieName() string {
	return GetEnv("SESSION_COOKIE", "cas_session")
}

func (SSO) GetCookieDomain() string {
	return GetEnv("COOKIE_DOMAIN", "")
}

func (SSO) GetCookieSecure() bool {
	return GetEnv("COOKIE_SECURE", "false") == "true"
}

func (SSO) GetMaxLoginFailCount() int {
	return 3
}
