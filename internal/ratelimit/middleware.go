package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the configuration for per-client rate limiting
type Config struct {
	// Enabled enables rate limiting
	Enabled bool
	// RequestsPerMin is the number of requests allowed per minute per client IP
	RequestsPerMin int
	// BurstSize is the maximum burst size
	BurstSize int
	// CleanupMinutes is how often to clean up stale entries
	CleanupMinutes int
}

// clientBucket tracks a rate limiter and its last access time
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter manages per-IP rate limiters for inbound API requests
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rate    rate.Limit
	burst   int
	cleanup time.Duration
	stopCh  chan struct{}
}

// NewClientLimiter creates a ClientLimiter and starts its cleanup loop
func NewClientLimiter(cfg Config) *ClientLimiter {
	// Convert requests per minute to rate.Limit (requests per second)
	r := rate.Limit(float64(cfg.RequestsPerMin) / 60.0)

	cleanupDuration := time.Duration(cfg.CleanupMinutes) * time.Minute
	if cleanupDuration <= 0 {
		cleanupDuration = 10 * time.Minute
	}

	cl := &ClientLimiter{
		clients: make(map[string]*clientBucket),
		rate:    r,
		burst:   cfg.BurstSize,
		cleanup: cleanupDuration,
		stopCh:  make(chan struct{}),
	}

	go cl.cleanupLoop()

	return cl
}

// Stop stops the cleanup goroutine
func (cl *ClientLimiter) Stop() {
	close(cl.stopCh)
}

func (cl *ClientLimiter) cleanupLoop() {
	ticker := time.NewTicker(cl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cl.cleanupStale(time.Now())
		case <-cl.stopCh:
			return
		}
	}
}

// cleanupStale removes clients not seen within the cleanup interval
func (cl *ClientLimiter) cleanupStale(now time.Time) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := now.Add(-cl.cleanup)
	for ip, b := range cl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(cl.clients, ip)
		}
	}
}

func (cl *ClientLimiter) bucket(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if b, ok := cl.clients[ip]; ok {
		b.lastSeen = time.Now()
		return b.limiter
	}

	limiter := rate.NewLimiter(cl.rate, cl.burst)
	cl.clients[ip] = &clientBucket{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// exemptPaths are never rate limited
var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware returns an HTTP middleware that rate limits requests per client IP.
// It expects RemoteAddr to already hold the real client address (chi's RealIP).
func (cl *ClientLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if !cl.bucket(ClientIP(r)).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.Header().Set("X-Rate-Limit-Exceeded", "true")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "RATE_LIMIT_EXCEEDED",
						"message": "Too many requests. Please try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware returns a per-client rate limiting middleware, or a pass-through when disabled.
// The limiter's cleanup goroutine runs for the lifetime of the process.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return NewClientLimiter(cfg).Middleware()
}
