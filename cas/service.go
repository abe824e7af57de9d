package cas

import (
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/jrsteele09/go-cas-server/session"
	"github.com/jrsteele09/go-cas-server/ticket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultSessionTTL        = 8 * time.Hour
	defaultMaxLoginFailCount = 3
)

// Repos holds all repository dependencies for the Service
type Repos struct {
	Principals principals.Repo // Repository for principal profiles
	Sessions   session.Repo    // Central session store
}

// Service implements the central authentication protocol: login issues
// one-time service tickets against a shared central session; validate
// consumes them exactly once on behalf of a service provider.
type Service struct {
	repos             Repos
	verifier          principals.Verifier // Credential verifier (opaque collaborator)
	tickets           ticket.Store
	failCounter       FailCounter
	maxLoginFailCount int
	sessionTTL        time.Duration
	nowTime           func() time.Time // nowTime function (injectable for testing)
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithSessionTTL sets how long central sessions stay valid.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.sessionTTL = ttl
	}
}

// WithMaxLoginFailCount sets how many consecutive bad passwords lock a principal.
func WithMaxLoginFailCount(count int) ServiceOption {
	return func(s *Service) {
		s.maxLoginFailCount = count
	}
}

// NewService initializes a new Service with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewService(repos Repos, verifier principals.Verifier, tickets ticket.Store, options ...ServiceOption) (*Service, error) {
	if repos.Principals == nil {
		return nil, errors.New("[NewService] Principals repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions repo is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewService] verifier is required")
	}
	if tickets == nil {
		return nil, errors.New("[NewService] ticket store is required")
	}

	service := &Service{
		repos:             repos,
		verifier:          verifier,
		tickets:           tickets,
		failCounter:       NewFailCounter(),
		maxLoginFailCount: defaultMaxLoginFailCount,
		sessionTTL:        defaultSessionTTL,
		nowTime:           time.Now,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// LoginResult carries everything the transport layer needs after a
// successful login: the session to bind to the cookie and the URL the
// browser should navigate to.
type LoginResult struct {
	SessionID   string
	RedirectURL string
	Principal   principals.Profile
}

// Login verifies the credentials, establishes or refreshes the central
// session, and issues a ticket bound to the service URL. The returned
// redirect URL is the service URL with a ticket query parameter appended;
// navigation is left to the caller.
//
// sessionID may carry an existing central session to refresh; pass ""
// for a fresh browser.
func (s *Service) Login(sessionID, username, password, serviceURL string) (*LoginResult, error) {
	target, err := parseServiceURL(serviceURL)
	if err != nil {
		return nil, MalformedServiceErr
	}

	principal, err := s.verifier.Verify(username, password)
	if err != nil {
		s.recordLoginFailure(username, err)
		// Collapse every verifier failure into one generic answer.
		return nil, AuthenticationFailedErr
	}
	s.failCounter.Zero(principal.Username)

	if err := s.repos.Principals.SetLastLogin(principal.Username); err != nil {
		log.Err(err).Str("username", principal.Username).Msg("failed to record last login")
	}

	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	now := s.nowTime()
	if err := s.repos.Sessions.Upsert(sessionID, &session.Session{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		Email:       principal.Email,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.sessionTTL),
	}); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] failed to create session")
	}

	token, err := s.tickets.Issue(principal.ID, target.String())
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] failed to issue ticket")
	}

	return &LoginResult{
		SessionID:   sessionID,
		RedirectURL: appendTicket(target, token),
		Principal:   principal.Profile(),
	}, nil
}

// IssueTicket issues a ticket for an already established central session,
// the path a second service provider takes when the browser is logged in.
func (s *Service) IssueTicket(sessionID, serviceURL string) (string, error) {
	target, err := parseServiceURL(serviceURL)
	if err != nil {
		return "", MalformedServiceErr
	}

	sess, err := s.CheckSession(sessionID)
	if err != nil {
		return "", err
	}

	token, err := s.tickets.Issue(sess.PrincipalID, target.String())
	if err != nil {
		return "", errors.Wrap(err, "[Service.IssueTicket] failed to issue ticket")
	}
	return appendTicket(target, token), nil
}

// Validate consumes the ticket exactly once and returns the public profile
// of the bound principal. Any ticket failure comes back as TicketInvalidErr
// with no further detail.
func (s *Service) Validate(token, serviceURL string) (*principals.Profile, error) {
	// Tickets are stored against the normalized service URL.
	if target, err := parseServiceURL(serviceURL); err == nil {
		serviceURL = target.String()
	}

	principalID, err := s.tickets.ValidateAndConsume(token, serviceURL)
	if err != nil {
		if errors.Is(err, ticket.ErrTicketInvalid) {
			return nil, TicketInvalidErr
		}
		return nil, errors.Wrap(err, "[Service.Validate] ticket store")
	}

	principal, err := s.repos.Principals.GetByID(principalID)
	if err != nil || principal == nil {
		// The ticket is already consumed; a vanished principal still must
		// not leak detail to the service provider.
		log.Err(err).Str("principal_id", principalID).Msg("principal lookup failed after ticket consumption")
		return nil, TicketInvalidErr
	}

	profile := principal.Profile()
	return &profile, nil
}

// CheckSession resolves the central session cookie to its principal,
// enabling silent SSO on a second service provider. Expired sessions are
// removed lazily here.
func (s *Service) CheckSession(sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, NotLoggedInErr
	}

	sess, err := s.repos.Sessions.Get(sessionID)
	if err != nil || sess == nil {
		return nil, NotLoggedInErr
	}

	if sess.Expired(s.nowTime()) {
		if err := s.repos.Sessions.Delete(sessionID); err != nil {
			log.Err(err).Str("session_id", sessionID).Msg("failed to delete expired session")
		}
		return nil, NotLoggedInErr
	}

	return sess, nil
}

// Logout destroys the central session. Service-provider local contexts
// established from earlier ticket validations are left untouched; they
// expire on their own schedule.
func (s *Service) Logout(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.repos.Sessions.Delete(sessionID); err != nil {
		return errors.Wrap(err, "[Service.Logout] failed to delete session")
	}
	return nil
}

// CleanupExpiredSessions removes central sessions past their expiry.
func (s *Service) CleanupExpiredSessions() error {
	return s.repos.Sessions.DeleteExpired(s.nowTime())
}

func (s *Service) recordLoginFailure(username string, verifyErr error) {
	if !errors.Is(verifyErr, principals.ErrPasswordMismatch) {
		return
	}
	failCount := s.failCounter.Fail(username)
	if failCount <= s.maxLoginFailCount {
		return
	}
	if err := s.repos.Principals.SetLocked(username, true); err != nil {
		log.Err(err).Str("username", username).Msg("failed to lock principal")
	}
}

// parseServiceURL accepts only well-formed absolute http(s) URLs; anything
// else is rejected before a session or ticket is created.
func parseServiceURL(serviceURL string) (*url.URL, error) {
	if serviceURL == "" {
		return nil, MalformedServiceErr
	}
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, MalformedServiceErr
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, MalformedServiceErr
	}
	return u, nil
}

func appendTicket(target *url.URL, token string) string {
	redirect := *target
	queryParams := redirect.Query()
	queryParams.Set("ticket", token)
	redirect.RawQuery = queryParams.Encode()
	return redirect.String()
}
