package spclient_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-cas-server/cas"
	"github.com/jrsteele09/go-cas-server/internal/config"
	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/jrsteele09/go-cas-server/principals/repofake"
	"github.com/jrsteele09/go-cas-server/server"
	"github.com/jrsteele09/go-cas-server/session"
	"github.com/jrsteele09/go-cas-server/spclient"
	"github.com/jrsteele09/go-cas-server/ticket"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "u1"
	testPassword = "p1"
	testEmail    = "u1@example.com"
)

// serviceProvider is a minimal app protected by the adapter: a public
// home, a guarded private page, the ticket callback, and local logout.
type serviceProvider struct {
	hsrv    *httptest.Server
	adapter *spclient.Adapter
}

func startCAS(t *testing.T) *httptest.Server {
	t.Helper()

	principalRepo := repofake.NewFakePrincipalRepo()
	passwordHash, err := principals.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, principalRepo.Upsert(&principals.Principal{
		Username:     testUsername,
		Email:        testEmail,
		PasswordHash: passwordHash,
	}))

	cfg := config.New()
	casService, err := cas.NewService(
		cas.Repos{Principals: principalRepo, Sessions: session.NewInMemoryRepo()},
		principals.NewRepoVerifier(principalRepo),
		ticket.NewMemoryStore(cfg.GetTicketTTL()),
	)
	require.NoError(t, err)

	srv, err := server.New(cfg, casService)
	require.NoError(t, err)

	hsrv := httptest.NewServer(srv)
	t.Cleanup(hsrv.Close)
	return hsrv
}

func startSP(t *testing.T, casURL, cookieName string, silentHome bool) *serviceProvider {
	t.Helper()

	client, err := spclient.NewClient(casURL)
	require.NoError(t, err)

	mux := http.NewServeMux()
	hsrv := httptest.NewServer(mux)
	t.Cleanup(hsrv.Close)

	adapter := spclient.NewAdapter(client, hsrv.URL, "/auth/callback", time.Hour,
		spclient.WithCookieName(cookieName))

	home := func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "home")
	}
	if silentHome {
		home = adapter.SilentLogin(home)
	}
	mux.HandleFunc("GET /{$}", home)
	mux.HandleFunc("GET /private", adapter.RequireLogin(func(w http.ResponseWriter, r *http.Request) {
		user, ok := spclient.UserFromContext(r.Context())
		require.True(t, ok)
		io.WriteString(w, "private:"+user.Email)
	}))
	mux.HandleFunc("GET /auth/callback", adapter.CallbackHandler("/", "/private"))
	mux.HandleFunc("GET /logout", adapter.LogoutHandler("/"))

	return &serviceProvider{hsrv: hsrv, adapter: adapter}
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

// centralLogin authenticates the browser against the central service for
// the given SP and walks the ticket redirect back through its callback.
func centralLogin(t *testing.T, browser *http.Client, casURL string, sp *serviceProvider) {
	t.Helper()

	payload, err := json.Marshal(map[string]string{
		"username": testUsername,
		"password": testPassword,
		"service":  sp.hsrv.URL + "/auth/callback",
	})
	require.NoError(t, err)

	resp, err := browser.Post(casURL+server.RouteAuthLogin, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Success     bool   `json:"success"`
		RedirectURL string `json:"redirectUrl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)

	final := get(t, browser, body.RedirectURL)
	require.Equal(t, "private:"+testEmail, final)
}

func get(t *testing.T, browser *http.Client, rawURL string) string {
	t.Helper()

	resp, err := browser.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return string(body)
}

func TestGuardRedirectsAnonymousToLoginPage(t *testing.T) {
	casSrv := startCAS(t)
	sp := startSP(t, casSrv.URL, "sp_a", false)
	browser := newBrowser(t)

	resp, err := browser.Get(sp.hsrv.URL + "/private")
	require.NoError(t, err)
	defer resp.Body.Close()

	// The browser follows the guard's redirect and lands on the central
	// login form, since it holds no session anywhere.
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Request.URL.String(), casSrv.URL+server.RouteAuthLogin),
		"expected to land on the login page, got %s", resp.Request.URL)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "<form")
}

func TestFullLoginFlow(t *testing.T) {
	casSrv := startCAS(t)
	sp := startSP(t, casSrv.URL, "sp_a", false)
	browser := newBrowser(t)

	centralLogin(t, browser, casSrv.URL, sp)

	// The local session now carries the SP on its own.
	require.Equal(t, "private:"+testEmail, get(t, browser, sp.hsrv.URL+"/private"))
}

func TestCallbackWithoutTicketRedirectsHome(t *testing.T) {
	casSrv := startCAS(t)
	sp := startSP(t, casSrv.URL, "sp_a", false)
	browser := newBrowser(t)

	resp, err := browser.Get(sp.hsrv.URL + "/auth/callback")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, sp.hsrv.URL+"/", resp.Request.URL.String())
}

func TestCallbackWithBadTicketFailsWithoutRetry(t *testing.T) {
	casSrv := startCAS(t)
	sp := startSP(t, casSrv.URL, "sp_a", false)
	browser := newBrowser(t)

	resp, err := browser.Get(sp.hsrv.URL + "/auth/callback?ticket=ST-bogus")
	require.NoError(t, err)
	defer resp.Body.Close()

	// One failed exchange, then straight home unauthenticated.
	u := resp.Request.URL
	require.Equal(t, "/", u.Path)
	require.Equal(t, "failed", u.Query().Get("login"))

	guarded, err := browser.Get(sp.hsrv.URL + "/private")
	require.NoError(t, err)
	defer guarded.Body.Close()
	require.NotEqual(t, sp.hsrv.URL+"/private", guarded.Request.URL.String())
}

func TestSilentLoginAcrossProviders(t *testing.T) {
	casSrv := startCAS(t)
	spA := startSP(t, casSrv.URL, "sp_a", false)
	spB := startSP(t, casSrv.URL, "sp_b", true)
	browser := newBrowser(t)

	// Log in through provider A, then visit provider B's home page. The
	// silent probe finds the central session and provider B authenticates
	// without ever showing a form.
	centralLogin(t, browser, casSrv.URL, spA)

	require.Equal(t, "private:"+testEmail, get(t, browser, spB.hsrv.URL+"/"))
}

func TestSilentLoginLeavesAnonymousVisitorsAlone(t *testing.T) {
	casSrv := startCAS(t)
	sp := startSP(t, casSrv.URL, "sp_b", true)
	browser := newBrowser(t)

	require.Equal(t, "home", get(t, browser, sp.hsrv.URL+"/"))
}

func TestCentralLogoutKeepsLocalSession(t *testing.T) {
	casSrv := startCAS(t)
	sp := startSP(t, casSrv.URL, "sp_a", false)
	browser := newBrowser(t)

	centralLogin(t, browser, casSrv.URL, sp)

	resp, err := browser.Post(sp.adapter.CentralLogoutURL(), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The SP's own session outlives the central one.
	require.Equal(t, "private:"+testEmail, get(t, browser, sp.hsrv.URL+"/private"))
}

func TestReloginAfterLocalLogout(t *testing.T) {
	casSrv := startCAS(t)
	sp := startSP(t, casSrv.URL, "sp_a", false)
	browser := newBrowser(t)

	centralLogin(t, browser, casSrv.URL, sp)

	require.Equal(t, "home", get(t, browser, sp.hsrv.URL+"/logout"))

	// The central session is still alive, so the guard's redirect comes
	// straight back with a fresh ticket and no login form.
	require.Equal(t, "private:"+testEmail, get(t, browser, sp.hsrv.URL+"/private"))
}

func TestLocalSessionStoreExpiry(t *testing.T) {
	store := spclient.NewLocalSessionStore(time.Hour)
	session := store.Create(principals.Profile{ID: "p1", Email: testEmail})

	got, found := store.Get(session.ID)
	require.True(t, found)
	require.Equal(t, testEmail, got.User.Email)

	store.Delete(session.ID)
	_, found = store.Get(session.ID)
	require.False(t, found)
}
