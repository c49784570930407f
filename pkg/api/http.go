// Package api assembles the HTTP router for the chat server.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"greenstorm/pkg/api/handlers"
	"greenstorm/pkg/auth"
	"greenstorm/pkg/config"
	"greenstorm/pkg/logger"
	"greenstorm/pkg/store"
)

// Handler builds the full route tree: liveness/readiness probes, the
// public login endpoint, and the session-scoped chat surface behind rate
// limiting.
func Handler(d *handlers.Deps, sec config.SecurityConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !store.Ready() {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	limited := r.NewRoute().Subrouter()
	limited.Use(requestLog)
	limited.Use(auth.RateLimit(sec.RateLimit, d.Sessions))

	handlers.RegisterLogin(limited, d)

	private := limited.NewRoute().Subrouter()
	private.Use(d.Sessions.RequireSession)
	handlers.RegisterAccount(private, d)
	handlers.RegisterChat(private, d)

	return r
}

// requestLog emits one debug line per request.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LogRequest(r)
		next.ServeHTTP(w, r)
	})
}
