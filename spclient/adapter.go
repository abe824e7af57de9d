package spclient

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/rs/zerolog/log"
)

type contextKey string

const userContextKey contextKey = "spclient.user"

const defaultCookieName = "sp_session"

// Adapter wires a service provider into the central authentication
// service: a route guard that bounces unauthenticated browsers to the
// login page, and a callback that turns the returned ticket into a local
// session.
type Adapter struct {
	client       *Client
	sessions     *LocalSessionStore
	publicURL    string // this SP's external base URL, e.g. "https://app.example.com"
	callbackPath string
	cookieName   string
	cookieSecure bool
}

type AdapterOption func(*Adapter)

func WithCookieName(name string) AdapterOption {
	return func(a *Adapter) {
		a.cookieName = name
	}
}

func WithSecureCookie(secure bool) AdapterOption {
	return func(a *Adapter) {
		a.cookieSecure = secure
	}
}

// NewAdapter builds the SP-side integration. callbackPath is the route the
// CallbackHandler is mounted on; publicURL+callbackPath is the service URL
// tickets are bound to.
func NewAdapter(client *Client, publicURL, callbackPath string, localTTL time.Duration, options ...AdapterOption) *Adapter {
	a := &Adapter{
		client:       client,
		sessions:     NewLocalSessionStore(localTTL),
		publicURL:    publicURL,
		callbackPath: callbackPath,
		cookieName:   defaultCookieName,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

func (a *Adapter) serviceURL() string {
	return a.publicURL + a.callbackPath
}

// UserFromContext returns the logged-in principal placed by RequireLogin.
func UserFromContext(ctx context.Context) (principals.Profile, bool) {
	user, ok := ctx.Value(userContextKey).(principals.Profile)
	return user, ok
}

func (a *Adapter) sessionFromRequest(r *http.Request) (LocalSession, bool) {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil {
		return LocalSession{}, false
	}
	return a.sessions.Get(cookie.Value)
}

// RequireLogin guards a route: requests without a live local session are
// redirected to the central login page and come back through the callback.
func (a *Adapter) RequireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := a.sessionFromRequest(r)
		if !ok {
			http.Redirect(w, r, a.client.LoginURL(a.serviceURL()), http.StatusFound)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, session.User)))
	}
}

// SilentLogin upgrades anonymous visitors who already hold a central
// session: it probes check-session with the browser's cookies and, if the
// user is logged in centrally, sends them through the login redirect,
// which returns a ticket without showing a form. Visitors with no central
// session fall through to the public page.
func (a *Adapter) SilentLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.sessionFromRequest(r); ok {
			next(w, r)
			return
		}
		if _, err := a.client.CheckSession(r.Cookies()); err == nil {
			http.Redirect(w, r, a.client.LoginURL(a.serviceURL()), http.StatusFound)
			return
		}
		next(w, r)
	}
}

// CallbackHandler receives the browser back from the central login page.
// The ticket is exchanged exactly once: on failure the browser lands on
// homePath unauthenticated, never in a validation retry loop.
func (a *Adapter) CallbackHandler(homePath, landingPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			http.Redirect(w, r, homePath, http.StatusFound)
			return
		}

		user, err := a.client.Validate(ticket, a.serviceURL())
		if err != nil {
			log.Err(err).Msg("ticket validation failed")
			http.Redirect(w, r, homePath+"?login=failed", http.StatusFound)
			return
		}

		session := a.sessions.Create(*user)
		http.SetCookie(w, &http.Cookie{
			Name:     a.cookieName,
			Value:    session.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   a.cookieSecure,
			SameSite: http.SameSiteLaxMode,
			Expires:  session.ExpiresAt,
		})
		http.Redirect(w, r, landingPath, http.StatusFound)
	}
}

// LogoutHandler ends the SP's local session only. The central session is
// untouched; other service providers keep their own contexts.
func (a *Adapter) LogoutHandler(homePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(a.cookieName); err == nil {
			a.sessions.Delete(cookie.Value)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     a.cookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
		http.Redirect(w, r, homePath, http.StatusFound)
	}
}

// CentralLogoutURL points at the central logout endpoint, which destroys
// the shared session so no further silent logins occur.
func (a *Adapter) CentralLogoutURL() string {
	return a.client.baseURL + "/auth/logout"
}
