package validation

import (
	"strings"
	"testing"
)

func TestValidateFirstName(t *testing.T) {
	valid := []string{"Ana", "jean-luc", "O'Brien", "李雷"}
	for _, name := range valid {
		if err := ValidateFirstName(name); err != nil {
			t.Fatalf("%q rejected: %v", name, err)
		}
	}

	invalid := []string{
		"",
		strings.Repeat("a", 65),
		"with:colon",
		"with\nnewline",
		"with\ttab",
		string([]byte{0xff, 0xfe}),
	}
	for _, name := range invalid {
		if err := ValidateFirstName(name); err == nil {
			t.Fatalf("%q accepted", name)
		}
	}
}

func TestValidateFeedURL(t *testing.T) {
	valid := []string{
		"https://school.example/feed.ics",
		"http://school.example/feed.ics",
		"webcal://school.example/feed.ics",
	}
	for _, u := range valid {
		if err := ValidateFeedURL(u); err != nil {
			t.Fatalf("%q rejected: %v", u, err)
		}
	}

	invalid := []string{
		"",
		"ftp://school.example/feed.ics",
		"https://",
		"not a url at all://",
	}
	for _, u := range invalid {
		if err := ValidateFeedURL(u); err == nil {
			t.Fatalf("%q accepted", u)
		}
	}
}
