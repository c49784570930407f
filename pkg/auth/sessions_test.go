package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greenstorm/pkg/config"
	"greenstorm/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

// TestIssueLookupRevoke walks a session through its lifecycle.
func TestIssueLookupRevoke(t *testing.T) {
	openTestStore(t)
	s := NewSessions("", time.Hour, false)

	rec := httptest.NewRecorder()
	sess, err := s.Issue(rec, "ana", "thread_1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DefaultCookieName {
		t.Fatalf("cookies %+v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie attributes %+v", cookies[0])
	}

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.AddCookie(cookies[0])
	got, err := s.Lookup(req)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.FirstName != "ana" || got.ThreadID != "thread_1" || got.Token != sess.Token {
		t.Fatalf("session %+v", got)
	}

	rec2 := httptest.NewRecorder()
	s.Revoke(rec2, req)
	if _, err := s.Lookup(req); err == nil {
		t.Fatalf("revoked session still resolves")
	}
	cleared := rec2.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge != -1 {
		t.Fatalf("clearing cookie %+v", cleared)
	}
}

// TestRequireSession verifies the middleware's reject and inject paths.
func TestRequireSession(t *testing.T) {
	openTestStore(t)
	s := NewSessions("", time.Hour, false)

	var gotName string
	handler := s.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			t.Errorf("session missing from context")
		}
		gotName = sess.FirstName
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no-cookie status %d", rec.Code)
	}

	issueRec := httptest.NewRecorder()
	if _, err := s.Issue(issueRec, "ana", "t1"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.AddCookie(issueRec.Result().Cookies()[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotName != "ana" {
		t.Fatalf("authorized status %d name %q", rec.Code, gotName)
	}
}

// TestRateLimitBurst verifies requests beyond the burst are rejected and
// keyed separately per client.
func TestRateLimitBurst(t *testing.T) {
	mw := RateLimit(config.RateLimitConfig{RPS: 0.001, Burst: 2}, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if send("10.0.0.1:1111") != http.StatusOK || send("10.0.0.1:2222") != http.StatusOK {
		t.Fatalf("burst rejected early")
	}
	if send("10.0.0.1:3333") != http.StatusTooManyRequests {
		t.Fatalf("third request admitted")
	}
	// A different client has its own bucket.
	if send("10.0.0.2:1111") != http.StatusOK {
		t.Fatalf("other client limited")
	}
}
