package logging

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware logs one line per request on the ops surface. The
// request-scoped logger is attached to the context so handlers can
// pick it up via FromContext.
func HTTPMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			builder := Component("ops").With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr)

			if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
				builder = builder.Str("request_id", requestID)
			}
			if span := trace.SpanFromContext(r.Context()); span.SpanContext().IsValid() {
				builder = builder.
					Str("trace_id", span.SpanContext().TraceID().String()).
					Str("span_id", span.SpanContext().SpanID().String())
			}
			if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
				builder = builder.Str("route", routeCtx.RoutePattern())
			}

			logger := builder.Logger()
			ctx := logger.WithContext(r.Context())

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(ctx))

			var event *zerolog.Event
			switch {
			case ww.statusCode >= 500:
				event = logger.Error()
			case ww.statusCode >= 400:
				event = logger.Warn()
			default:
				event = logger.Debug()
			}

			event.
				Int("status", ww.statusCode).
				Dur("duration", time.Since(start)).
				Int64("response_size", ww.responseSize).
				Msg("Request completed")
		})
	}
}

// responseWriter captures the status code and byte count of a response
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.responseSize += int64(size)
	return size, err
}

// Flush passes through so SSE-like handlers keep working behind the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
