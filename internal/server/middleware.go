package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mesh-intelligence/pantry/internal/logging"
)

// logRequests writes one line per request and puts a request-scoped logger
// in the context.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		lggr := s.log.With("request_id", reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			}
			if status >= http.StatusInternalServerError {
				lggr.Warnw("request", fields...)
				return
			}
			lggr.Infow("request", fields...)
		}()
		next.ServeHTTP(ww, r.WithContext(logging.ContextWithLogger(r.Context(), lggr)))
	})
}

// instrument counts requests and records their duration per route pattern,
// so that ids in paths do not create new series.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.GetOrCreateCounter(fmt.Sprintf(`pantry_http_requests_total{method=%q,route=%q,status="%d"}`, r.Method, route, status)).Inc()
		s.metrics.GetOrCreateSummary(fmt.Sprintf(`pantry_http_request_duration_seconds{method=%q,route=%q}`, r.Method, route)).UpdateDuration(start)
	})
}
