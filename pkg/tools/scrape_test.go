package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const scrapeFixture = `<!DOCTYPE html>
<html>
<head>
<title>Campus News</title>
<meta name="description" content="News for students">
<script>var ignored = 1;</script>
</head>
<body>
<article>
<h2>Midterms moved</h2>
<p>Midterms now start Monday.</p>
<p>Rooms are unchanged.</p>
<img src="/hall.jpg" alt="the hall">
</article>
<style>.x{}</style>
</body>
</html>`

// TestScrapeExtraction verifies title, meta description, collapsed body
// text, and article structure extraction.
func TestScrapeExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, scrapeFixture)
	}))
	defer srv.Close()

	s := NewScraper(0)
	got, err := s.Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !strings.HasPrefix(got, "Title: Campus News\n") {
		t.Fatalf("title: %q", got)
	}
	if !strings.Contains(got, "Description: News for students\n") {
		t.Fatalf("description: %q", got)
	}
	if strings.Contains(got, "ignored") {
		t.Fatalf("script text leaked into body: %q", got)
	}
	if !strings.Contains(got, "Midterms now start Monday. Rooms are unchanged.") {
		t.Fatalf("body not collapsed: %q", got)
	}
	if !strings.Contains(got, `"heading": "Midterms moved"`) {
		t.Fatalf("article heading: %q", got)
	}
	if !strings.Contains(got, `"src": "/hall.jpg"`) || !strings.Contains(got, `"alt": "the hall"`) {
		t.Fatalf("article image: %q", got)
	}
}

// TestScrapeNonOKStatus verifies non-200 responses surface as errors.
func TestScrapeNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewScraper(0).Scrape(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 403")
	}
}

// TestSearchRequestShape verifies the query parameter and the
// subscription token header, and that results flow through formatting.
func TestSearchRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "tide charts" {
			t.Errorf("query %q", got)
		}
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("token header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"query":{"original":"tide charts"},"web":{"results":[{"title":"Tides","url":"https://example.com"}]}}`)
	}))
	defer srv.Close()

	c := NewSearchClient(srv.URL, "brave-key")
	got, err := c.Search(context.Background(), "tide charts")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(got, "Title: Tides") {
		t.Fatalf("result missing: %q", got)
	}
}

// TestSearchNonOKStatus verifies API failures surface as errors with the
// status code.
func TestSearchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewSearchClient(srv.URL, "brave-key")
	if _, err := c.Search(context.Background(), "q"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
