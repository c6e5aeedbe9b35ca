package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/metrics"
)

const (
	defaultRateLimitRequests = 10
	defaultRateLimitWindow   = time.Minute
	// sweepEvery is how many allow calls pass between stale-window sweeps.
	sweepEvery = 256
)

type rateWindow struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// rateLimiter is a fixed-window counter keyed by scope and client IP.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	limit   int
	period  time.Duration
	calls   int
	now     func() time.Time
}

func newRateLimiter(limit int, period time.Duration) *rateLimiter {
	if limit <= 0 {
		limit = defaultRateLimitRequests
	}
	if period <= 0 {
		period = defaultRateLimitWindow
	}
	return &rateLimiter{
		windows: make(map[string]rateWindow),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

func (l *rateLimiter) limitByIP(scope string) func(http.Handler) http.Handler {
	scope = strings.TrimSpace(scope)
	if l == nil || scope == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := l.allow(scope + ":" + normalizedClientIP(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			metrics.RateLimited.WithLabelValues(scope).Inc()
			tooManyRequests(w, r, retryAfter)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeErrorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
}

// allow counts one request against key. When the window is full it reports
// how long until the window rolls over.
func (l *rateLimiter) allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweepLocked(now)
	}

	win, ok := l.windows[key]
	if !ok || now.Sub(win.start) >= l.period {
		l.windows[key] = rateWindow{start: now, count: 1, lastSeen: now}
		return true, 0
	}
	win.lastSeen = now
	if win.count >= l.limit {
		l.windows[key] = win
		return false, max(l.period-now.Sub(win.start), 0)
	}
	win.count++
	l.windows[key] = win
	return true, 0
}

func (l *rateLimiter) sweepLocked(now time.Time) {
	for key, win := range l.windows {
		if now.Sub(win.lastSeen) >= 2*l.period {
			delete(l.windows, key)
		}
	}
}
