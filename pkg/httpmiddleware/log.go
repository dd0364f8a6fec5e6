package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// LogRequests logs every finished request with its route, status and
// duration. Server errors are logged at warn level.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route, ok := find(r)
			if !ok {
				route = "unknown"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			lg := zctx.From(r.Context())
			level := zap.DebugLevel
			if status >= http.StatusInternalServerError {
				level = zap.WarnLevel
			}
			lg.Check(level, "Request").Write(
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
