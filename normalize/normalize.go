// Package normalize maps the loosely-shaped upstream payloads into the
// canonical field set. Everything here is a pure function; the ambiguity of
// the upstream shapes must not leak past this package.
package normalize

import (
	"encoding/json"
	"strings"
)

// Year extracts a publication year from a free-text date string such as
// "March 3, 2005" or "2005-03-01". The year is the first four digits of the
// first run of at least four consecutive digits; shorter runs like the day
// in "March 3" never contribute. No such run yields nil.
func Year(date string) *int {
	run := 0
	for i := 0; i < len(date); i++ {
		if date[i] < '0' || date[i] > '9' {
			run = 0
			continue
		}
		run++
		if run == 4 {
			year := 0
			for _, d := range []byte(date[i-3 : i+1]) {
				year = year*10 + int(d-'0')
			}
			return &year
		}
	}
	return nil
}

// Authors joins author names with ", ", skipping empty entries and
// preserving source order.
func Authors(names []string) string {
	kept := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			kept = append(kept, name)
		}
	}
	return strings.Join(kept, ", ")
}

// Publisher takes the first listed publisher name, trimmed.
func Publisher(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimSpace(names[0])
}

// Subjects joins subject names with ", ", skipping empties.
func Subjects(names []string) string {
	return Authors(names)
}

// Language reduces an upstream language reference to its code. The primary
// source reports languages as keys like "/languages/eng"; the tail segment
// is the code.
func Language(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	key := strings.TrimSpace(keys[0])
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		key = key[idx+1:]
	}
	return key
}

// Description accepts the two shapes the description endpoint returns, a
// plain string or {"value": "..."}, and yields a plain string. Anything
// unparseable yields "".
func Description(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Value
	}
	return ""
}

// CoverURL picks the best cover candidate: large, then medium, then small.
func CoverURL(large, medium, small string) string {
	for _, u := range []string{large, medium, small} {
		if strings.TrimSpace(u) != "" {
			return u
		}
	}
	return ""
}
