package auth

import (
	"context"
	"net/http"

	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
)

type ctxSessionKey struct{}

// RequireSession rejects requests without a valid session cookie and
// injects the resolved session into the request context.
func (s *Sessions) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Lookup(r)
		if err != nil {
			logger.Warn("unauthenticated_request", "path", r.URL.Path, "remote", r.RemoteAddr)
			http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxSessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext returns the session injected by RequireSession.
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	v, ok := ctx.Value(ctxSessionKey{}).(models.Session)
	return v, ok
}
