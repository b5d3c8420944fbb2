package middleware

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// LoggingMiddleware writes one access log line per request and attaches a
// request-scoped logger to the context for use cases to pick up with log.Ctx.
// Inner middleware may add fields to that logger (the principal, the
// idempotency key) and they show up on the access line.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Wrap wraps an http.Handler with logging.
func (m *LoggingMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqLogger := m.logger.With().Str("request_id", chimiddleware.GetReqID(r.Context())).Logger()
		ctx := reqLogger.WithContext(r.Context())
		final := zerolog.Ctx(ctx)
		// A disabled logger is not stored, so Ctx may hand back the process default.
		if reqLogger.GetLevel() != zerolog.Disabled {
			ctx = context.WithValue(ctx, requestLoggerKey{}, final)
		}
		r = r.WithContext(ctx)

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// final is the logger downstream middleware tagged.
		var event *zerolog.Event
		switch {
		case wrapped.statusCode >= http.StatusInternalServerError:
			event = final.Error()
		case wrapped.statusCode == http.StatusConflict || wrapped.statusCode == http.StatusUnprocessableEntity:
			// Refused workflow commands are routine but worth spotting.
			event = final.Warn()
		default:
			event = final.Info()
		}
		event.
			Str("method", r.Method).
			Str("route", routePattern(r)).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("request completed")
	})
}

type requestLoggerKey struct{}

// tagRequestLogger adds fields to the request logger installed by
// LoggingMiddleware. The process default logger is never touched.
func tagRequestLogger(ctx context.Context, fn func(zerolog.Context) zerolog.Context) {
	l, ok := ctx.Value(requestLoggerKey{}).(*zerolog.Logger)
	if !ok {
		return
	}
	l.UpdateContext(fn)
}

type statusRecorder struct {
	http.ResponseWriter

	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
