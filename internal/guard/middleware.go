// ABOUTME: HTTP middleware that enforces route decisions with redirects
// ABOUTME: Composes with request logging through Chain

package guard

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chain applies middleware functions to a handler in order.
// The first middleware in the list is the outermost (executes first).
func Chain(h http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// DecideFunc returns the route decision for a request. It may block up
// to the fallback timeout while player data resolves.
type DecideFunc func(r *http.Request) Decision

// Middleware redirects with 303 See Other whenever the decision is not Allow.
func Middleware(decide DecideFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d := decide(r)
			if d.Allow || d.Redirect == nil {
				next(w, r)
				return
			}
			slog.Debug("Route redirected",
				"path", sanitizePath(r.URL.Path),
				"to", d.Redirect.Path,
				"reason", d.Redirect.Reason,
			)
			http.Redirect(w, r, d.Redirect.URL(), http.StatusSeeOther)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LogRequest logs HTTP requests with timing and correlation ID.
func LogRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		slog.Info("Request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", sanitizePath(r.URL.Path),
			"status", wrapped.statusCode,
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// sanitizePath strips control characters to keep log lines intact.
func sanitizePath(p string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, p)
}
