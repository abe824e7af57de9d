package server

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// The cookie value is not the bare session id but a compact HS256 JWT over
// it. A forged or tampered cookie fails signature verification before it
// ever reaches the session store.

func (s *Server) signSessionID(sessionID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  sessionID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.GetSessionSigningSecret()))
}

func (s *Server) verifySessionCookie(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.GetSessionSigningSecret()), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Server) SetSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	signed, err := s.signSessionID(sessionID)
	if err != nil {
		log.Err(err).Msg("failed to sign session cookie")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    signed,
		Domain:   s.config.GetCookieDomain(),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetCookieSecure() && getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    "",
		Domain:   s.config.GetCookieDomain(),
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// sessionIDFromRequest resolves the signed cookie to a session id, or ""
// when the cookie is absent or fails verification.
func (s *Server) sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(s.config.GetSessionCookieName())
	if err != nil || cookie.Value == "" {
		return ""
	}

	sessionID, err := s.verifySessionCookie(cookie.Value)
	if err != nil {
		log.Debug().Err(err).Msg("rejected session cookie")
		return ""
	}
	return sessionID
}
