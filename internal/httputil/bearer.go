package httputil

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerToken returns the token from "Authorization: Bearer <token>", or ""
// when the header is absent or uses another scheme.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// TokenMatches compares a presented token against the expected one in
// constant time. An empty expected token matches anything.
func TokenMatches(presented, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
