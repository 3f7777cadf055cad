package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-IP token-bucket rate limiting. Client IPs come
// from RemoteAddr, which middleware.RealIP has already rewritten from the
// forwarding headers.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitorLimiter
	rate     rate.Limit
	burst    int
	stop     chan struct{}
	once     sync.Once

	// OnReject is called for each throttled request (optional).
	OnReject func()
}

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter. A non-positive rate disables limiting.
func NewRateLimiter(requestsPerSec float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*visitorLimiter),
		stop:     make(chan struct{}),
	}
	rl.UpdateLimits(requestsPerSec, burst)

	// Background cleanup of stale entries every 3 minutes
	go func() {
		ticker := time.NewTicker(3 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup(10 * time.Minute)
			case <-rl.stop:
				return
			}
		}
	}()

	return rl
}

// Close stops the background cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// UpdateLimits changes the rate and burst. Existing visitors are reset so
// the new limits apply immediately.
func (rl *RateLimiter) UpdateLimits(requestsPerSec float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if requestsPerSec <= 0 {
		rl.rate = rate.Inf
	} else {
		rl.rate = rate.Limit(requestsPerSec)
	}
	if burst < 1 {
		burst = 1
	}
	rl.burst = burst
	rl.limiters = make(map[string]*visitorLimiter)
}

// Allow checks whether a request from the given IP is allowed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	if rl.rate == rate.Inf {
		rl.mu.Unlock()
		return true
	}
	v, ok := rl.limiters[ip]
	if !ok {
		v = &visitorLimiter{
			limiter: rate.NewLimiter(rl.rate, rl.burst),
		}
		rl.limiters[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// cleanup removes entries not seen within the given duration.
func (rl *RateLimiter) cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for ip, v := range rl.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// Middleware wraps an http.Handler with per-IP rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(stripPort(r.RemoteAddr)) {
			if rl.OnReject != nil {
				rl.OnReject()
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"ok": false, "error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// stripPort removes the port from a host:port address.
func stripPort(addr string) string {
	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ip
}
