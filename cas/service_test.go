package cas_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-cas-server/cas"
	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/jrsteele09/go-cas-server/principals/repofake"
	"github.com/jrsteele09/go-cas-server/session"
	"github.com/jrsteele09/go-cas-server/ticket"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "u1"
	testPassword = "p1"
	testEmail    = "u1@example.com"
	testService  = "https://sp.example/callback"
	testTTL      = 30 * time.Second
)

// testFixture holds all test dependencies
type testFixture struct {
	principalRepo *repofake.FakePrincipalRepo
	sessionRepo   session.Repo
	ticketStore   *ticket.MemoryStore
	service       *cas.Service
	now           time.Time
}

func setupTestFixture(t *testing.T, options ...cas.ServiceOption) *testFixture {
	t.Helper()

	f := &testFixture{
		principalRepo: repofake.NewFakePrincipalRepo(),
		sessionRepo:   session.NewInMemoryRepo(),
		now:           time.Now(),
	}
	f.ticketStore = ticket.NewMemoryStore(testTTL, ticket.WithNowTime(func() time.Time { return f.now }))

	options = append([]cas.ServiceOption{cas.WithNowTime(func() time.Time { return f.now })}, options...)

	service, err := cas.NewService(
		cas.Repos{Principals: f.principalRepo, Sessions: f.sessionRepo},
		principals.NewRepoVerifier(f.principalRepo),
		f.ticketStore,
		options...,
	)
	require.NoError(t, err)
	f.service = service

	return f
}

func (f *testFixture) createTestPrincipal(t *testing.T, username, password string) {
	t.Helper()

	passwordHash, err := principals.HashPassword(password)
	require.NoError(t, err)

	require.NoError(t, f.principalRepo.Upsert(&principals.Principal{
		Username:     username,
		Email:        testEmail,
		PasswordHash: passwordHash,
		DateJoined:   f.now,
	}))
}

func ticketFromRedirect(t *testing.T, redirectURL string) string {
	t.Helper()

	u, err := url.Parse(redirectURL)
	require.NoError(t, err)
	return u.Query().Get("ticket")
}

func TestLoginIssuesTicketRedirect(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionID)
	require.Equal(t, testUsername, result.Principal.Username)

	require.True(t, strings.HasPrefix(result.RedirectURL, testService+"?ticket="+ticket.TokenPrefix))
	require.NotEmpty(t, ticketFromRedirect(t, result.RedirectURL))
}

func TestLoginWithWrongPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	_, err := f.service.Login("", testUsername, "wrong", testService)
	require.ErrorIs(t, err, cas.AuthenticationFailedErr)
}

func TestLoginWithUnknownUserSameError(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	_, wrongPassword := f.service.Login("", testUsername, "wrong", testService)
	_, unknownUser := f.service.Login("", "nobody", testPassword, testService)

	// Unknown user and wrong password must be indistinguishable.
	require.Equal(t, wrongPassword, unknownUser)
}

func TestLoginWithMalformedService(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	for _, serviceURL := range []string{"", "not a url", "ftp://sp.example/callback", "/relative/path"} {
		_, err := f.service.Login("", testUsername, testPassword, serviceURL)
		require.ErrorIs(t, err, cas.MalformedServiceErr, "service=%q", serviceURL)
	}
}

func TestLoginLocksAfterTooManyFailures(t *testing.T) {
	f := setupTestFixture(t, cas.WithMaxLoginFailCount(3))
	f.createTestPrincipal(t, testUsername, testPassword)

	for i := 0; i < 4; i++ {
		_, err := f.service.Login("", testUsername, "wrong", testService)
		require.ErrorIs(t, err, cas.AuthenticationFailedErr)
	}

	principal, err := f.principalRepo.GetByUsername(testUsername)
	require.NoError(t, err)
	require.True(t, principal.Locked)

	// Correct password no longer helps, and the error stays generic.
	_, err = f.service.Login("", testUsername, testPassword, testService)
	require.ErrorIs(t, err, cas.AuthenticationFailedErr)
}

func TestValidateConsumesTicketExactlyOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)

	token := ticketFromRedirect(t, result.RedirectURL)

	profile, err := f.service.Validate(token, testService)
	require.NoError(t, err)
	require.Equal(t, testUsername, profile.Username)
	require.Equal(t, testEmail, profile.Email)

	_, err = f.service.Validate(token, testService)
	require.ErrorIs(t, err, cas.TicketInvalidErr)
}

func TestValidateExpiredTicket(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)

	f.now = f.now.Add(testTTL + time.Second)

	_, err = f.service.Validate(ticketFromRedirect(t, result.RedirectURL), testService)
	require.ErrorIs(t, err, cas.TicketInvalidErr)
}

func TestValidateServiceMismatch(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)

	_, err = f.service.Validate(ticketFromRedirect(t, result.RedirectURL), "https://evil.example/callback")
	require.ErrorIs(t, err, cas.TicketInvalidErr)
}

func TestCheckSessionLifecycle(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	_, err := f.service.CheckSession("no-such-session")
	require.ErrorIs(t, err, cas.NotLoggedInErr)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)

	sess, err := f.service.CheckSession(result.SessionID)
	require.NoError(t, err)
	require.Equal(t, result.Principal.ID, sess.PrincipalID)
	require.Equal(t, testUsername, sess.Username)
}

func TestCheckSessionExpires(t *testing.T) {
	f := setupTestFixture(t, cas.WithSessionTTL(time.Hour))
	f.createTestPrincipal(t, testUsername, testPassword)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)

	_, err = f.service.CheckSession(result.SessionID)
	require.ErrorIs(t, err, cas.NotLoggedInErr)
}

func TestIssueTicketForExistingSession(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)

	secondService := "https://sp2.example/callback"
	redirectURL, err := f.service.IssueTicket(result.SessionID, secondService)
	require.NoError(t, err)

	profile, err := f.service.Validate(ticketFromRedirect(t, redirectURL), secondService)
	require.NoError(t, err)
	require.Equal(t, testUsername, profile.Username)
}

func TestIssueTicketWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.IssueTicket("no-such-session", testService)
	require.ErrorIs(t, err, cas.NotLoggedInErr)
}

func TestLogoutDoesNotInvalidateIssuedTickets(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestPrincipal(t, testUsername, testPassword)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)

	token := ticketFromRedirect(t, result.RedirectURL)

	// Logout completes before the service provider validates. Ticket
	// validity is independent of central-session state once issued.
	require.NoError(t, f.service.Logout(result.SessionID))

	_, err = f.service.CheckSession(result.SessionID)
	require.ErrorIs(t, err, cas.NotLoggedInErr)

	profile, err := f.service.Validate(token, testService)
	require.NoError(t, err)
	require.Equal(t, testUsername, profile.Username)
}

func TestCleanupExpiredSessions(t *testing.T) {
	f := setupTestFixture(t, cas.WithSessionTTL(time.Hour))
	f.createTestPrincipal(t, testUsername, testPassword)

	result, err := f.service.Login("", testUsername, testPassword, testService)
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	require.NoError(t, f.service.CleanupExpiredSessions())

	_, err = f.sessionRepo.Get(result.SessionID)
	require.Error(t, err)
}
