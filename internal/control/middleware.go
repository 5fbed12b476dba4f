package control

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// slogMiddleware logs one line per request, at a level derived from the
// response status.
func slogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes_written", ww.BytesWritten(),
				"duration", time.Since(start),
			}
			msg := http.StatusText(ww.Status())
			switch {
			case ww.Status() >= 500:
				logger.ErrorContext(r.Context(), msg, attrs...)
			case ww.Status() >= 400:
				logger.WarnContext(r.Context(), msg, attrs...)
			default:
				logger.DebugContext(r.Context(), msg, attrs...)
			}
		})
	}
}
