// Package middleware provides HTTP middleware components for the Melora daemon.
package middleware

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// logStateKey is the context key for the per-request log state.
type logStateKey struct{}

// logState lets handlers report fields to the Logging middleware. Handlers
// derive new contexts that Logging never sees, so the values are recorded
// through a shared pointer.
type logState struct {
	mu        sync.Mutex
	userID    string
	errorCode string
}

func logStateFrom(ctx context.Context) *logState {
	st, _ := ctx.Value(logStateKey{}).(*logState)
	return st
}

// SetUserID records the signed-in user for the request log line and span.
// It is a no-op outside the Logging middleware.
func SetUserID(ctx context.Context, userID string) {
	if st := logStateFrom(ctx); st != nil {
		st.mu.Lock()
		st.userID = userID
		st.mu.Unlock()
	}
}

// SetErrorCode records the API error code of the response. Only responses
// with status 400 or above report it.
func SetErrorCode(ctx context.Context, code string) {
	if st := logStateFrom(ctx); st != nil {
		st.mu.Lock()
		st.errorCode = code
		st.mu.Unlock()
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
// Only the first call sets the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

// Hijack lets websocket upgrades pass through the wrapper.
// A hijacked connection is logged with status 101.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return h.Hijack()
}

// Flush forwards to the underlying writer when it supports flushing.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying writer for http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// newResponseWriter creates a new responseWriter with default 200 status.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// NewLogger creates an slog.Logger based on the environment.
// In production (env == "production"), it returns a JSON handler.
// Otherwise, it returns a text handler for development.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// Logging is a middleware that logs HTTP requests with structured fields:
// method, path, route, status, latency (ms), response size, request ID,
// trace ID, user id and error_code for error responses. The user id and error
// code are also recorded on the active request span.
//
// Place a recovery middleware outside of this one if handlers may panic.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			st := &logState{}
			r = r.WithContext(context.WithValue(r.Context(), logStateKey{}, st))

			next.ServeHTTP(rw, r)

			st.mu.Lock()
			userID, errorCode := st.userID, st.errorCode
			st.mu.Unlock()

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", NormalizeRoute(r.URL.Path)),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int64("size", rw.size),
			}
			if requestID := GetRequestID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}

			span := trace.SpanFromContext(r.Context())
			if sc := span.SpanContext(); sc.IsValid() {
				attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
			}
			if userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
				span.SetAttributes(AttrUserID.String(userID))
			}
			if rw.statusCode >= 400 && errorCode != "" {
				attrs = append(attrs, slog.String("error_code", errorCode))
				span.SetAttributes(AttrErrorCode.String(errorCode))
			}

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}
