package http

import (
	"net/http"
	"strings"
)

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// userIDFromRequest returns the authenticated user id set by the upstream
// gateway, or "" when the header is absent.
func userIDFromRequest(r *http.Request, header string) string {
	return sanitizeInput(r.Header.Get(header))
}

// isReadOnly reports whether a request cannot change state.
func isReadOnly(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions
}
