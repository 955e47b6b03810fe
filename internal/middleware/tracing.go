// Package middleware provides HTTP middleware for the price feed API.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/feed_layer/internal/httputil"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

// RequestIDHeader carries the request identifier in and out.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the identifier stored in ctx by TracingMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// TracingMiddleware tags each request with an identifier, logs it on
// completion and turns handler panics into 500 responses.
type TracingMiddleware struct {
	log *logger.Logger
}

// NewTracingMiddleware creates a tracing middleware logging to log.
func NewTracingMiddleware(log *logger.Logger) *TracingMiddleware {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &TracingMiddleware{log: log}
}

// Handler wraps next.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				m.log.WithField("request_id", id).
					WithField("panic", fmt.Sprint(rec)).
					Error("handler panicked")
				if !rw.wroteHeader {
					httputil.WriteError(rw, http.StatusInternalServerError, "internal error")
				}
			}
			entry := m.log.WithField("request_id", id).
				WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", rw.statusCode).
				WithField("duration", time.Since(start).String())
			if rw.statusCode >= http.StatusInternalServerError {
				entry.Warn("request completed")
				return
			}
			entry.Debug("request completed")
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
