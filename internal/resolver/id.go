package resolver

import (
	"fmt"
	"regexp"
	"strings"
)

var statusPath = regexp.MustCompile(`/status(?:es)?/(\d+)`)

// NormalizeID extracts the numeric tweet ID from a bare ID or a status URL
// such as https://x.com/i/web/status/12345.
func NormalizeID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if m := statusPath.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if s != "" && isDigits(s) {
		return s, nil
	}
	return "", fmt.Errorf("%q: %w", raw, ErrInvalidIdentifier)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
