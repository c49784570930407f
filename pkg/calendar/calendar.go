// Package calendar fetches ICS feeds and turns them into per-day schedule
// and assignment listings. Parsed feeds are cached in the store for a
// configurable TTL so repeated tool calls do not hammer the feed host.
package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"greenstorm/pkg/logger"
	"greenstorm/pkg/store"
)

// DefaultCacheTTL is how long a fetched feed stays usable.
const DefaultCacheTTL = 24 * time.Hour

var webcalPrefix = regexp.MustCompile(`(?i)^webcal://`)

// NormalizeFeedURL rewrites webcal:// to https:// and strips any query
// string. Feed hosts hand out webcal links that plain HTTP clients cannot
// dial.
func NormalizeFeedURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("feed url is empty")
	}
	fixed := webcalPrefix.ReplaceAllString(raw, "https://")
	if i := strings.Index(fixed, "?"); i != -1 {
		fixed = fixed[:i]
	}
	return fixed, nil
}

// EventDetails is one schedule entry for a day.
type EventDetails struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Summary     string `json:"summary"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// AssignmentDetails is one assignment entry for a day. Times are omitted
// when the feed does not carry them.
type AssignmentDetails struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
}

// Service fetches and caches calendar feeds.
type Service struct {
	client *http.Client
	ttl    time.Duration
}

// NewService builds a Service with the given cache TTL; zero selects
// DefaultCacheTTL.
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		client: &http.Client{Timeout: 30 * time.Second},
		ttl:    ttl,
	}
}

// Schedule returns class periods per day (keyed YYYY-MM-DD) between start
// and end inclusive.
func (s *Service) Schedule(ctx context.Context, feedURL string, start, end time.Time) (map[string][]EventDetails, error) {
	fixed, err := NormalizeFeedURL(feedURL)
	if err != nil {
		return nil, err
	}
	var full map[string][]EventDetails
	if err := s.cached(ctx, "schedule", fixed, &full, func(events []vevent) any { return buildSchedule(events) }); err != nil {
		return nil, err
	}
	return filterWindow(full, start, end), nil
}

// Assignments returns assignments per day (keyed YYYY-MM-DD) between start
// and end inclusive.
func (s *Service) Assignments(ctx context.Context, feedURL string, start, end time.Time) (map[string][]AssignmentDetails, error) {
	fixed, err := NormalizeFeedURL(feedURL)
	if err != nil {
		return nil, err
	}
	var full map[string][]AssignmentDetails
	if err := s.cached(ctx, "assignments", fixed, &full, func(events []vevent) any { return buildAssignments(events) }); err != nil {
		return nil, err
	}
	return filterWindow(full, start, end), nil
}

// cached loads the full parsed feed from the store when fresh, otherwise
// fetches, rebuilds and re-caches it. out must be a pointer to the grouped
// map; build produces the same shape from the raw events.
func (s *Service) cached(ctx context.Context, kind, fixedURL string, out any, build func([]vevent) any) error {
	hash := feedKey(kind, fixedURL)
	if entry, err := store.GetFeedCache(hash); err == nil {
		age := time.Since(time.Unix(0, entry.FetchedTS))
		if age < s.ttl {
			if err := json.Unmarshal(entry.Payload, out); err == nil {
				logger.Debug("feed_cache_hit", "kind", kind, "age", age.String())
				return nil
			}
		}
	}

	events, err := s.fetchEvents(ctx, fixedURL)
	if err != nil {
		return err
	}
	built := build(events)
	payload, err := json.Marshal(built)
	if err != nil {
		return err
	}
	if err := store.SaveFeedCache(hash, store.FeedCacheEntry{
		FetchedTS: time.Now().UTC().UnixNano(),
		Payload:   payload,
	}); err != nil {
		logger.Warn("feed_cache_save_failed", "kind", kind, "error", err)
	}
	logger.Info("feed_fetched", "kind", kind, "events", len(events))
	return json.Unmarshal(payload, out)
}

func (s *Service) fetchEvents(ctx context.Context, feedURL string) ([]vevent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed fetch failed: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseICS(string(body)), nil
}

func buildSchedule(events []vevent) map[string][]EventDetails {
	grouped := make(map[string][]vevent)
	for _, ev := range events {
		if ev.Start.IsZero() {
			continue
		}
		day := ev.Start.UTC().Format("2006-01-02")
		grouped[day] = append(grouped[day], ev)
	}
	out := make(map[string][]EventDetails, len(grouped))
	for day, evs := range grouped {
		sort.Slice(evs, func(i, j int) bool { return evs[i].Start.Before(evs[j].Start) })
		details := make([]EventDetails, 0, len(evs))
		for _, ev := range evs {
			details = append(details, EventDetails{
				StartTime:   formatClock(ev.Start),
				EndTime:     formatClock(ev.End),
				Summary:     orDefault(ev.Summary, "No summary provided"),
				Location:    orDefault(ev.Location, "No location provided"),
				Description: rewriteDescription(ev.Description),
			})
		}
		out[day] = details
	}
	return out
}

func buildAssignments(events []vevent) map[string][]AssignmentDetails {
	out := make(map[string][]AssignmentDetails)
	for _, ev := range events {
		if ev.Start.IsZero() {
			continue
		}
		day := ev.Start.UTC().Format("2006-01-02")
		d := AssignmentDetails{
			Summary:     orDefault(ev.Summary, "No summary provided"),
			Description: orDefault(ev.Description, "No description provided."),
		}
		d.StartTime = formatClock(ev.Start)
		if !ev.End.IsZero() {
			d.EndTime = formatClock(ev.End)
		}
		out[day] = append(out[day], d)
	}
	return out
}

// rewriteDescription maps the feed's "Block:" vocabulary to "Period:" and
// drops everything after the first semicolon.
func rewriteDescription(desc string) string {
	if desc == "" {
		return "No description provided"
	}
	if strings.HasPrefix(desc, "Block:") {
		desc = "Period:" + desc[len("Block:"):]
	}
	if i := strings.Index(desc, ";"); i != -1 {
		desc = strings.TrimSpace(desc[:i])
	}
	return desc
}

// WindowEnd advances from start by the given number of weekdays, skipping
// Saturdays and Sundays.
func WindowEnd(start time.Time, weekdays int) time.Time {
	d := start
	added := 0
	for added < weekdays {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return d
}

func filterWindow[T any](full map[string][]T, start, end time.Time) map[string][]T {
	startDay := start.Format("2006-01-02")
	endDay := end.Format("2006-01-02")
	out := make(map[string][]T)
	for day, items := range full {
		if day >= startDay && day <= endDay {
			out[day] = items
		}
	}
	return out
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("3:04 PM")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func feedKey(kind, fixedURL string) string {
	sum := sha256.Sum256([]byte(kind + "|" + fixedURL))
	return hex.EncodeToString(sum[:])
}
