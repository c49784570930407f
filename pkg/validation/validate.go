// Package validation checks request fields before they reach the store or
// the provider.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// maxNameLen bounds login names; they double as store keys.
const maxNameLen = 64

// ValidateFirstName checks a login name.
func ValidateFirstName(name string) error {
	if name == "" {
		return fmt.Errorf("first name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("first name must be valid UTF-8")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("first name too long")
	}
	if strings.ContainsAny(name, ":\n\r\t") {
		return fmt.Errorf("first name contains invalid characters")
	}
	return nil
}

// ValidateFeedURL checks a calendar feed URL. webcal is accepted; it gets
// rewritten to https at fetch time.
func ValidateFeedURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("feed url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid feed url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "webcal":
	default:
		return fmt.Errorf("feed url scheme must be http, https or webcal")
	}
	if u.Host == "" {
		return fmt.Errorf("feed url host missing")
	}
	return nil
}
