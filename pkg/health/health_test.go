package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error {
		return errors.New(msg)
	}
}

func probe(t *testing.T, endpoint http.HandlerFunc) (int, probeResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body probeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New(Options{})
	h.Add(Liveness, "goroutines", time.Second, passing)
	h.Add(Liveness, "db", time.Second, failing("connection refused"))

	code, body := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "checks start healthy")
	assert.Equal(t, "ok", body.Status)

	runN(h.checks[1], 2)
	code, _ = probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below failure threshold")

	runN(h.checks[1], 1)
	code, body = probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, body.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New(Options{})
	h.Add(Readiness, "postgres", time.Second, passing)
	h.Add(Readiness, "amqp", time.Second, failing("channel closed"))
	h.Add(Liveness, "goroutines", time.Second, failing("too many"))

	code, body := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready until SetReady")
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, _ = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)

	runN(h.checks[1], 3)
	runN(h.checks[2], 3)
	code, body = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"amqp": "channel closed"}, body.Checks,
		"liveness failures do not affect readiness")
	assert.False(t, h.IsReady())

	h.SetReady(false)
	code, body = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Len(t, body.Checks, 2)
}

func TestNoChecks(t *testing.T) {
	h := New(Options{})
	h.SetReady(true)

	code, body := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body.Checks)

	code, _ = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())
}

func TestCheckThresholds(t *testing.T) {
	down := true
	h := New(Options{FailureThreshold: 2, SuccessThreshold: 2})
	h.Add(Readiness, "flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	c := h.checks[0]

	assert.Nil(t, c.err())
	runN(c, 2)
	assert.False(t, c.healthy.Load())
	assert.EqualError(t, c.err(), "down")

	down = false
	runN(c, 1)
	assert.False(t, c.healthy.Load(), "one success is below the threshold")
	runN(c, 1)
	assert.True(t, c.healthy.Load())
	assert.NoError(t, c.err())
}

func TestCheckTimeout(t *testing.T) {
	h := New(Options{FailureThreshold: 1})
	h.Add(Readiness, "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	runN(h.checks[0], 1)
	assert.ErrorIs(t, h.checks[0].err(), context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	h := New(Options{FailureThreshold: 1})
	h.Add(Liveness, "db", time.Second, failing("err"))
	h.Add(Readiness, "cache", time.Second, passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		code, _ := probe(t, h.LiveEndpoint)
		return code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				w := httptest.NewRecorder()
				h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(fakePinger{})(context.Background()))
	assert.ErrorContains(t, PingCheck(fakePinger{err: errors.New("refused")})(context.Background()), "refused")
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(context.Background()), "exceeds threshold")
}
