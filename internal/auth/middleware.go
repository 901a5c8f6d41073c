// Package auth guards the mutating ops endpoints with a static API key.
package auth

import (
	"net/http"
	"strings"
)

// KeyFromRequest reads the key from X-API-Key, falling back to a bearer token.
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// Middleware returns an HTTP middleware that requires the configured key.
// An empty key disables the check.
func Middleware(apiKey string, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := KeyFromRequest(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}
			if !Equal(key, apiKey) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
