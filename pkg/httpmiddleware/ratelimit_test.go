package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// hit sends one request from remote, optionally with extra headers.
func hit(h http.Handler, remote string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/menu", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Budget(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for want := 2; want >= 0; want-- {
		w := hit(h, "192.0.2.10:4100")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, atoi(t, w.Header().Get("X-RateLimit-Remaining")))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(h, "192.0.2.10:4101")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var (
		code    int
		message string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			v, err := d.Int()
			code = v
			return err
		case "message":
			v, err := d.Str()
			message = v
			return err
		default:
			return d.Skip()
		}
	}))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", message)
}

func TestRateLimit_Keys(t *testing.T) {
	byToken := func(r *http.Request) string { return r.Header.Get("Authorization") }

	for _, tt := range []struct {
		name    string
		cfg     RateLimitConfig
		first   []string // remote, then header pairs
		second  []string
		limited bool
	}{
		{
			name:    "SameIPDifferentPort",
			first:   []string{"198.51.100.7:1000"},
			second:  []string{"198.51.100.7:2000"},
			limited: true,
		},
		{
			name:   "DifferentIPs",
			first:  []string{"198.51.100.7:1000"},
			second: []string{"198.51.100.8:1000"},
		},
		{
			name:    "ForwardedForWins",
			first:   []string{"10.0.0.1:1000", "X-Forwarded-For", "203.0.113.50, 70.41.3.18"},
			second:  []string{"10.0.0.2:1000", "X-Forwarded-For", "203.0.113.50"},
			limited: true,
		},
		{
			name:    "CustomKeySameToken",
			cfg:     RateLimitConfig{KeyFunc: byToken},
			first:   []string{"10.0.0.1:1000", "Authorization", "Bearer a"},
			second:  []string{"10.0.0.2:1000", "Authorization", "Bearer a"},
			limited: true,
		},
		{
			name:   "CustomKeyOtherToken",
			cfg:    RateLimitConfig{KeyFunc: byToken},
			first:  []string{"10.0.0.1:1000", "Authorization", "Bearer a"},
			second: []string{"10.0.0.1:1000", "Authorization", "Bearer b"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Max, cfg.Window = 1, time.Minute
			h := RateLimit(cfg)(okHandler())

			require.Equal(t, http.StatusOK, hit(h, tt.first[0], tt.first[1:]...).Code)
			want := http.StatusOK
			if tt.limited {
				want = http.StatusTooManyRequests
			}
			assert.Equal(t, want, hit(h, tt.second[0], tt.second[1:]...).Code)
		})
	}
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

func TestLimiter_SlidingWindow(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	now := start
	l := NewLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	l.now = func() time.Time { return now }

	for range 2 {
		allowed, _, _ := l.Allow("client")
		require.True(t, allowed)
	}
	allowed, remaining, reset := l.Allow("client")
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	assert.Equal(t, start.Add(time.Minute), reset)

	// Halfway into the next window the previous one still counts for half.
	now = start.Add(90 * time.Second)
	allowed, remaining, _ = l.Allow("client")
	assert.True(t, allowed)
	assert.Zero(t, remaining)
	allowed, _, _ = l.Allow("client")
	assert.False(t, allowed)

	// Two idle windows forget the history.
	now = start.Add(3 * time.Minute)
	allowed, remaining, _ = l.Allow("client")
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l := NewLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(90 * time.Second)
	l.Allow("b")

	now = now.Add(60 * time.Second)
	l.Sweep()

	assert.NotContains(t, l.windows, "a")
	assert.Contains(t, l.windows, "b")
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(RateLimitConfig{})(okHandler())

	for range 10 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}
