package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("outer"), mark("middle"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "middle", "inner"}, calls)
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":500,"message":"internal error"}`, w.Body.String())
}

func TestRecovery_AbortHandler(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	var seen string
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		zctx.From(r.Context()).Info("handled")
	}), InjectLogger(zap.New(core)), RequestID())

	t.Run("Generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
	})

	t.Run("Reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "req-42")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
		entries := logs.FilterField(zap.String("request_id", "req-42")).All()
		assert.Len(t, entries, 1)
	})

	t.Run("Rejected", func(t *testing.T) {
		for _, id := range []string{"bad\nid", strings.Repeat("x", 129)} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderRequestID, id)
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.NotEqual(t, id, seen)
		}
	})
}

func testRoutes() chi.Router {
	api := chi.NewRouter()
	api.Get("/orders/{number}", func(http.ResponseWriter, *http.Request) {})
	api.Post("/orders/{number}/cancel", func(http.ResponseWriter, *http.Request) {})

	root := chi.NewRouter()
	root.Get("/livez", func(http.ResponseWriter, *http.Request) {})
	root.Mount("/api", api)
	return root
}

func TestMakeRouteFinder(t *testing.T) {
	find := MakeRouteFinder(testRoutes())

	tests := []struct {
		method, path string
		want         string
		ok           bool
	}{
		{http.MethodGet, "/livez", "/livez", true},
		{http.MethodGet, "/api/orders/0123456789ab", "/api/orders/{number}", true},
		{http.MethodPost, "/api/orders/0123456789ab/cancel", "/api/orders/{number}/cancel", true},
		{http.MethodDelete, "/api/orders/0123456789ab", "", false},
		{http.MethodGet, "/nope", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got, ok := find(httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	find := MakeRouteFinder(testRoutes())

	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/cancel") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}), InjectLogger(zap.New(core)), LogRequests(find))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/0123456789ab", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/orders/0123456789ab/cancel", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, "/api/orders/{number}", first["route"])
	assert.EqualValues(t, http.StatusOK, first["status"])
	assert.EqualValues(t, 2, first["bytes"])

	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusBadGateway, entries[1].ContextMap()["status"])
}

func TestInjectLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	h := InjectLogger(zap.New(core))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("inside")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1, logs.FilterMessage("inside").Len())
}
