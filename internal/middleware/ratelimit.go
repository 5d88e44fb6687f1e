package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-client rate limiting for the public discovery
// endpoints.
type RateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	r        rate.Limit // requests per second
	b        int        // burst size
}

// NewRateLimiter creates a new rate limiter.
// Example: NewRateLimiter(10, 20) = 10 req/sec with burst of 20.
func NewRateLimiter(rps rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*rate.Limiter),
		r:        rps,
		b:        burst,
	}
}

// getVisitor returns the rate limiter for the given client key.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.visitors[key]
	if !exists {
		limiter = rate.NewLimiter(rl.r, rl.b)
		rl.visitors[key] = limiter

		// Cleanup old visitors periodically
		go func() {
			time.Sleep(3 * time.Minute)
			rl.mu.Lock()
			delete(rl.visitors, key)
			rl.mu.Unlock()
		}()
	}

	return limiter
}

// clientKey identifies the caller for limiting. Behind a proxy the first
// X-Forwarded-For hop is the client; otherwise the connection address,
// stripped of its port so one browser does not get a fresh budget per
// connection.
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Limit is a middleware that rate limits requests per client.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.getVisitor(clientKey(r))
		if !limiter.Allow() {
			http.Error(w, "Rate limit exceeded. Try again later.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
