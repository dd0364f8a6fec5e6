package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window. Zero disables
	// limiting.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

// Limiter is a per-key sliding window counter. The previous window is
// weighted by how much of it still overlaps the sliding window.
type Limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow records a request for key. It reports whether the request fits in
// the limit, how many requests remain and when the current window ends.
func (l *Limiter) Allow(key string) (allowed bool, remaining int, reset time.Time) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{currStart: now.Truncate(l.cfg.Window)}
		l.windows[key] = w
	}
	if elapsed := now.Sub(w.currStart); elapsed >= l.cfg.Window {
		w.prev = w.curr
		if elapsed >= 2*l.cfg.Window {
			w.prev = 0
		}
		w.curr = 0
		w.currStart = now.Truncate(l.cfg.Window)
	}

	overlap := 1 - now.Sub(w.currStart).Seconds()/l.cfg.Window.Seconds()
	count := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.currStart.Add(l.cfg.Window)
	if count >= float64(l.cfg.Max) {
		return false, 0, reset
	}

	w.curr++
	return true, max(int(float64(l.cfg.Max)-count-1), 0), reset
}

// Sweep drops keys that have been idle for two windows.
func (l *Limiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.currStart) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// Run sweeps idle keys until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Middleware rejects requests over the limit with 429. Every response
// carries the X-RateLimit-* headers.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if l.cfg.Max <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, reset := l.Allow(l.cfg.KeyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				retry := max(reset.Sub(l.now()), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit returns a limiting middleware without background sweeping.
func RateLimit(cfg RateLimitConfig) Middleware {
	return NewLimiter(cfg).Middleware()
}

// RateLimitWithCleanup is RateLimit with idle keys swept until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg)
	go l.Run(ctx)
	return l.Middleware()
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
