package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-cas-server/cas"
	"github.com/jrsteele09/go-cas-server/principals"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	maxRequestBody = 1 << 16
)

// Request schemas. Every endpoint takes named, validated fields; nothing
// dynamic reaches the protocol core.

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Service  string `json:"service"`
}

type loginResponse struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Message     string `json:"message,omitempty"`
}

type validateRequest struct {
	Ticket  string `json:"ticket"`
	Service string `json:"service"`
}

type validateResponse struct {
	Success bool                `json:"success"`
	User    *principals.Profile `json:"user,omitempty"`
}

type checkSessionResponse struct {
	LoggedIn bool                `json:"loggedIn"`
	User     *principals.Profile `json:"user,omitempty"`
}

type logoutResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, into any) bool {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{Success: false, Message: "malformed request body"})
		return false
	}
	return true
}

// LoginPageHandler serves the login form. A browser that already holds a
// valid central session skips the form entirely and is redirected back to
// the service with a fresh ticket.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("login.html")
	if err != nil {
		panic("Failed to parse login template: " + err.Error())
	}

	type loginPageData struct {
		AppName string
		Service string
		Error   string
	}

	return func(w http.ResponseWriter, r *http.Request) {
		service := r.URL.Query().Get("service")

		if sessionID := s.sessionIDFromRequest(r); sessionID != "" && service != "" {
			redirectURL, err := s.cas.IssueTicket(sessionID, service)
			switch {
			case err == nil:
				http.Redirect(w, r, redirectURL, http.StatusSeeOther)
				return
			case errors.Is(err, cas.MalformedServiceErr):
				http.Error(w, "malformed service url", http.StatusBadRequest)
				return
			case errors.Is(err, cas.NotLoggedInErr):
				// Stale cookie; fall through to the form.
			default:
				log.Err(err).Msg("failed to issue ticket for existing session")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}

		data := loginPageData{
			AppName: s.config.GetAppName(),
			Service: service,
			Error:   r.URL.Query().Get("error"),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("failed to render login template")
		}
	}
}

// LoginHandler processes credentials and answers with the redirect URL the
// browser should navigate to. Navigation is the client's job.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if req.Username == "" || req.Password == "" || req.Service == "" {
			writeJSON(w, http.StatusBadRequest, loginResponse{Success: false, Message: "username, password and service are required"})
			return
		}

		result, err := s.cas.Login(s.sessionIDFromRequest(r), req.Username, req.Password, req.Service)
		switch {
		case err == nil:
		case errors.Is(err, cas.MalformedServiceErr):
			writeJSON(w, http.StatusBadRequest, loginResponse{Success: false, Message: "malformed service url"})
			return
		case errors.Is(err, cas.AuthenticationFailedErr):
			// One generic answer for unknown user, wrong password and
			// locked principal alike.
			writeJSON(w, http.StatusOK, loginResponse{Success: false, Message: "invalid username or password"})
			return
		default:
			log.Err(err).Msg("login failed")
			writeJSON(w, http.StatusInternalServerError, loginResponse{Success: false, Message: "internal server error"})
			return
		}

		s.SetSessionCookie(w, r, result.SessionID)
		writeJSON(w, http.StatusOK, loginResponse{Success: true, RedirectURL: result.RedirectURL})
	}
}

// ValidateHandler is the server-to-server ticket exchange. Whatever went
// wrong with the ticket, the caller only ever sees success:false.
func (s *Server) ValidateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if req.Ticket == "" || req.Service == "" {
			writeJSON(w, http.StatusBadRequest, validateResponse{Success: false})
			return
		}

		profile, err := s.cas.Validate(req.Ticket, req.Service)
		switch {
		case err == nil:
		case errors.Is(err, cas.TicketInvalidErr):
			writeJSON(w, http.StatusOK, validateResponse{Success: false})
			return
		default:
			log.Err(err).Msg("ticket validation failed")
			writeJSON(w, http.StatusInternalServerError, validateResponse{Success: false})
			return
		}

		writeJSON(w, http.StatusOK, validateResponse{Success: true, User: profile})
	}
}

// CheckSessionHandler reports whether the browser holds a valid central
// session, the probe behind silent SSO on a second service provider.
func (s *Server) CheckSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.cas.CheckSession(s.sessionIDFromRequest(r))
		if err != nil {
			if !errors.Is(err, cas.NotLoggedInErr) {
				log.Err(err).Msg("check-session failed")
			}
			writeJSON(w, http.StatusOK, checkSessionResponse{LoggedIn: false})
			return
		}

		writeJSON(w, http.StatusOK, checkSessionResponse{
			LoggedIn: true,
			User: &principals.Profile{
				ID:       sess.PrincipalID,
				Username: sess.Username,
				Email:    sess.Email,
			},
		})
	}
}

// LogoutHandler destroys the central session and clears its cookie. Local
// contexts at service providers are deliberately left alone.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.cas.Logout(s.sessionIDFromRequest(r)); err != nil {
			log.Err(err).Msg("logout failed")
			writeJSON(w, http.StatusInternalServerError, logoutResponse{Success: false})
			return
		}

		s.ClearSessionCookie(w)
		writeJSON(w, http.StatusOK, logoutResponse{Success: true})
	}
}
