// Package auth manages cookie sessions and per-client rate limiting for
// the HTTP surface.
package auth

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
	"greenstorm/pkg/store"
)

// DefaultCookieName carries the session token.
const DefaultCookieName = "greenstorm_session"

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Sessions issues and revokes cookie-backed sessions.
type Sessions struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// NewSessions builds a session manager; empty cookie name and zero TTL
// select the defaults.
func NewSessions(cookieName string, ttl time.Duration, secure bool) *Sessions {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{CookieName: cookieName, TTL: ttl, Secure: secure}
}

// Issue creates a session for the user, persists it and sets the cookie.
func (s *Sessions) Issue(w http.ResponseWriter, firstName, threadID string) (models.Session, error) {
	sess := models.Session{
		Token:     uuid.NewString(),
		FirstName: firstName,
		ThreadID:  threadID,
		ExpiresTS: time.Now().Add(s.TTL).UTC().Unix(),
	}
	if err := store.SaveSession(sess); err != nil {
		return models.Session{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(s.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	logger.Info("session_issued", "user", firstName)
	return sess, nil
}

// Revoke deletes the session named by the request cookie, if any, and
// clears the cookie.
func (s *Sessions) Revoke(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.CookieName); err == nil && c.Value != "" {
		if err := store.DeleteSession(c.Value); err != nil {
			logger.Warn("session_delete_failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Lookup resolves the request's session cookie; expired or unknown tokens
// yield store.ErrNotFound.
func (s *Sessions) Lookup(r *http.Request) (models.Session, error) {
	c, err := r.Cookie(s.CookieName)
	if err != nil || c.Value == "" {
		return models.Session{}, store.ErrNotFound
	}
	return store.GetSession(c.Value)
}
