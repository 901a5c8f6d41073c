package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware returns HTTP middleware for request metrics.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			duration := time.Since(start).Seconds()

			// Normalize path to avoid high cardinality from IDs
			path := normalizePath(r.URL.Path)

			httpRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(rw.status),
			).Inc()

			httpDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		}()

		next.ServeHTTP(rw, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures status code.
func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// normalizePath replaces contract addresses and other identifiers with
// placeholders to keep label cardinality bounded. For example:
//
//	/api/v1/contracts/0xdac1.../detect -> /api/v1/contracts/{address}/detect
//	/api/v1/networks/ethereum/test     -> /api/v1/networks/ethereum/test
func normalizePath(path string) string {
	switch path {
	case "/health", "/healthz", "/readyz", "/metrics":
		return path
	}

	if !strings.HasPrefix(path, "/api/v1/") {
		return path
	}

	parts := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	normalized := []string{"/api/v1"}
	for _, part := range parts {
		if part == "" {
			continue
		}
		switch {
		case isAddress(part):
			normalized = append(normalized, "{address}")
		case isLikelyID(part):
			normalized = append(normalized, "{id}")
		default:
			normalized = append(normalized, part)
		}
	}
	return strings.Join(normalized, "/")
}

// isAddress reports whether segment looks like an EVM address
func isAddress(segment string) bool {
	return len(segment) == 42 && (strings.HasPrefix(segment, "0x") || strings.HasPrefix(segment, "0X")) && isHex(segment[2:])
}

// isLikelyID returns true if segment looks like an identifier
func isLikelyID(segment string) bool {
	// Transaction hashes
	if len(segment) >= 64 && isHex(strings.TrimPrefix(segment, "0x")) {
		return true
	}
	// UUIDs with dashes
	if strings.Count(segment, "-") >= 4 {
		return true
	}
	// Pure numbers (chain IDs)
	return isNumeric(segment)
}

// isHex returns true if string is hexadecimal (supports both upper and lowercase)
func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return len(s) > 0
}

// isNumeric returns true if string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
