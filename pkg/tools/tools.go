// Package tools implements the capability handlers the assistant can
// invoke mid-run: current time, schedule lookup, web search, and page
// scraping. Handlers never fail the batch; errors are encoded as JSON
// {"error": ...} payloads so sibling calls still produce outputs.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"greenstorm/pkg/calendar"
	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
	"greenstorm/pkg/store"
	"greenstorm/pkg/telemetry"
)

// scheduleWindowDays is how many weekdays ahead get_schedule looks.
const scheduleWindowDays = 30

// Registry routes tool calls by function name.
type Registry struct {
	search   *SearchClient
	scraper  *Scraper
	calendar *calendar.Service
	now      func() time.Time
}

// NewRegistry builds a Registry over the given clients.
func NewRegistry(search *SearchClient, scraper *Scraper, cal *calendar.Service) *Registry {
	return &Registry{search: search, scraper: scraper, calendar: cal, now: time.Now}
}

// Dispatch resolves one tool call into exactly one output. Unknown
// function names and handler failures produce {"error": ...} payloads
// rather than errors.
func (r *Registry) Dispatch(ctx context.Context, userID string, call models.ToolCall) models.ToolOutput {
	var output string
	outcome := "ok"
	switch call.Name {
	case "get_current_time":
		output = r.currentTime()
	case "get_schedule":
		output, outcome = r.schedule(ctx, userID)
	case "search_web":
		output, outcome = r.searchWeb(ctx, call.Arguments)
	case "scrape_web":
		output, outcome = r.scrapeWeb(ctx, call.Arguments)
	default:
		logger.Warn("unknown_tool_function", "function", call.Name)
		output = errPayload("Unknown tool function.")
		outcome = "unknown"
	}
	telemetry.ToolCalls.WithLabelValues(call.Name, outcome).Inc()
	return models.ToolOutput{ToolCallID: call.ID, Output: output}
}

// currentTime formats local time as e.g. "3:07 pm".
func (r *Registry) currentTime() string {
	return r.now().Format("3:04 pm")
}

func (r *Registry) schedule(ctx context.Context, userID string) (string, string) {
	user, err := store.GetUser(userID)
	if err != nil || user.Settings.ClassSchedulesURL == "" || user.Settings.AllAssignmentsURL == "" {
		return errPayload("User settings not found or ICS URL missing. Recommend that the user investigates the settings icon next to the logout button"), "missing_settings"
	}

	today := r.now()
	end := calendar.WindowEnd(today, scheduleWindowDays)

	assignments, err := r.calendar.Assignments(ctx, user.Settings.AllAssignmentsURL, today, end)
	if err != nil {
		logger.Error("assignments_lookup_failed", "user", userID, "error", err)
		return errPayload("Schedule lookup failed."), "error"
	}
	schedule, err := r.calendar.Schedule(ctx, user.Settings.ClassSchedulesURL, today, end)
	if err != nil {
		logger.Error("schedule_lookup_failed", "user", userID, "error", err)
		return errPayload("Schedule lookup failed."), "error"
	}

	payload, err := json.Marshal(map[string]any{
		"assignments": assignments,
		"schedule":    schedule,
	})
	if err != nil {
		return errPayload("Schedule lookup failed."), "error"
	}
	return fmt.Sprintf("The current date is %s. Here is the schedule and assignments: %s",
		today.Format("1/2/2006"), payload), "ok"
}

func (r *Registry) searchWeb(ctx context.Context, arguments string) (string, string) {
	var args struct {
		SearchTerm string `json:"search_term"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.SearchTerm == "" {
		return errPayload("Search failed."), "bad_args"
	}
	results, err := r.search.Search(ctx, args.SearchTerm)
	if err != nil {
		logger.Error("search_failed", "term", args.SearchTerm, "error", err)
		return errPayload("Search failed."), "error"
	}
	logger.Info("search_performed", "term", args.SearchTerm)
	if results == "" {
		return errPayload("No results found."), "empty"
	}
	return results, "ok"
}

func (r *Registry) scrapeWeb(ctx context.Context, arguments string) (string, string) {
	var args struct {
		CrawlURL string `json:"crawl_url"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.CrawlURL == "" {
		return errPayload("Scrape failed."), "bad_args"
	}
	results, err := r.scraper.Scrape(ctx, args.CrawlURL)
	if err != nil {
		logger.Error("scrape_failed", "url", args.CrawlURL, "error", err)
		return errPayload("Scrape failed."), "error"
	}
	logger.Info("scrape_performed", "url", args.CrawlURL)
	if results == "" {
		return errPayload("No results found."), "empty"
	}
	return results, "ok"
}

func errPayload(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
