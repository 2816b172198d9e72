package util

import (
	"html"
	"strings"
)

// SanitizeInput trims whitespace and escapes HTML/script-like characters.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious reports whether s carries markup or injection markers.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
