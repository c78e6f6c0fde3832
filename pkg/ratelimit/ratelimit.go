// Package ratelimit enforces a per-client sliding-window request quota.
// A token bucket would admit bursts right after a quiet period; the mobile
// clients this fronts are better served by a hard requests-per-window cap,
// so the limiter keeps actual request timestamps and prunes them.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/pocketdev/pkg/errors"
)

// Window is the sliding window length.
const Window = time.Minute

// exemptPrefixes are paths that never count against the quota: liveness
// probes and the realtime socket, which is one long-lived request.
var exemptPrefixes = []string{"/health", "/ws"}

// Limiter tracks request timestamps per client key.
type Limiter struct {
	mu      sync.Mutex
	quota   int
	history map[string][]time.Time
	now     func() time.Time
}

// New creates a Limiter admitting quota requests per Window per client.
// A quota of zero or less disables limiting.
func New(quota int) *Limiter {
	return &Limiter{
		quota:   quota,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records a request for key and reports whether it fits the quota.
func (l *Limiter) Allow(key string) bool {
	if l.quota <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-Window)

	recent := l.history[key]
	keep := recent[:0]
	for _, ts := range recent {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}

	if len(keep) >= l.quota {
		l.history[key] = keep
		return false
	}

	l.history[key] = append(keep, now)
	return true
}

// Prune drops clients whose entire history has aged out. Called periodically
// so idle clients do not accumulate.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-Window)
	for key, recent := range l.history {
		if len(recent) == 0 || !recent[len(recent)-1].After(cutoff) {
			delete(l.history, key)
		}
	}
}

// Middleware rejects over-quota requests with 429. Exempt paths pass
// through uncounted.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range exemptPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		if !l.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"status":"error","message":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by remote IP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Exceeded is the error surfaced when a non-HTTP caller hits the quota.
func Exceeded() error {
	return errors.New(errors.ErrCodeTooManyRequests, "rate limit exceeded").WithRetryable(true)
}
