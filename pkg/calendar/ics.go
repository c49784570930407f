package calendar

import (
	"strings"
	"time"
)

// vevent is one VEVENT block from an ICS feed.
type vevent struct {
	Start       time.Time
	End         time.Time
	Summary     string
	Location    string
	Description string
}

// parseICS extracts VEVENT blocks from raw ICS data. Only the properties
// the schedule and assignment feeds actually carry are parsed; unknown
// properties and nested components are skipped.
func parseICS(data string) []vevent {
	lines := unfold(data)
	var events []vevent
	var cur *vevent
	for _, line := range lines {
		name, params, value := splitProperty(line)
		switch name {
		case "BEGIN":
			if value == "VEVENT" {
				cur = &vevent{}
			}
		case "END":
			if value == "VEVENT" && cur != nil {
				if !cur.Start.IsZero() {
					events = append(events, *cur)
				}
				cur = nil
			}
		case "DTSTART":
			if cur != nil {
				cur.Start = parseICSTime(value, params)
			}
		case "DTEND":
			if cur != nil {
				cur.End = parseICSTime(value, params)
			}
		case "SUMMARY":
			if cur != nil {
				cur.Summary = unescapeText(value)
			}
		case "LOCATION":
			if cur != nil {
				cur.Location = unescapeText(value)
			}
		case "DESCRIPTION":
			if cur != nil {
				cur.Description = unescapeText(value)
			}
		}
	}
	return events
}

// unfold joins folded lines: a line starting with a space or tab continues
// the previous one (RFC 5545 section 3.1).
func unfold(data string) []string {
	raw := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")
	var lines []string
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// splitProperty breaks "NAME;PARAM=V;PARAM=V:value" into its parts. Params
// are returned as a flat map; the property name is upper-cased.
func splitProperty(line string) (string, map[string]string, string) {
	colon := strings.Index(line, ":")
	if colon == -1 {
		return strings.ToUpper(line), nil, ""
	}
	head, value := line[:colon], line[colon+1:]
	parts := strings.Split(head, ";")
	name := strings.ToUpper(parts[0])
	var params map[string]string
	for _, p := range parts[1:] {
		if eq := strings.Index(p, "="); eq != -1 {
			if params == nil {
				params = make(map[string]string)
			}
			params[strings.ToUpper(p[:eq])] = p[eq+1:]
		}
	}
	return name, params, value
}

// parseICSTime handles the three DTSTART/DTEND shapes feeds use: UTC
// ("...Z"), date-only (VALUE=DATE), and local/TZID-qualified timestamps.
// Unparseable values yield the zero time.
func parseICSTime(value string, params map[string]string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if params["VALUE"] == "DATE" || len(value) == 8 {
		t, err := time.ParseInLocation("20060102", value, time.UTC)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	loc := time.Local
	if tzid := params["TZID"]; tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// unescapeText reverses ICS text escaping for the sequences feeds emit.
func unescapeText(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(s)
}
