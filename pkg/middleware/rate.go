// Package middleware holds the HTTP middleware chain: auth, CORS, request
// logging, panic recovery and per-client rate limiting.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

// window is a fixed-window counter for one client.
type window struct {
	count   int
	resetAt time.Time
}

// limiter owns its windows; two RateLimit middlewares never share counts.
type limiter struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*window
	swept   time.Time
}

// take records one request for key and reports whether it is allowed, how
// many requests remain and when the window resets.
func (l *limiter) take(key string) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.period {
		for k, w := range l.clients {
			if now.After(w.resetAt) {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}

	w, ok := l.clients[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.clients[key] = w
	}
	w.count++
	remaining := l.max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return w.count <= l.max, remaining, w.resetAt
}

// clientIP prefers the first X-Forwarded-For hop and strips the port from
// RemoteAddr so one client maps to one window.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit allows each client IP max requests per period and answers the
// rest with 429 and Retry-After.
func RateLimit(max int, period time.Duration) func(http.Handler) http.Handler {
	l := &limiter{max: max, period: period, now: time.Now, clients: map[string]*window{}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, reset := l.take(clientIP(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				secs := int(time.Until(reset).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(secs))
				response.Error(w, http.StatusTooManyRequests, "Too many requests, retry in "+strconv.Itoa(secs)+"s")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
