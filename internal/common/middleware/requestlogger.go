// Package middleware provides HTTP middleware for request logging and panic
// recovery. It integrates with zerolog and tags every request with a unique
// request ID for tracing.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type requestIdContextKey string

const (
	requestIdKey    = requestIdContextKey("requestId")
	RequestIDHeader = "X-Conquest-Request-ID"
)

// RequestLogger logs incoming requests and adds a unique request ID to both
// the request context and the response headers.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		requestID := uuid.New().String()
		ctx = context.WithValue(ctx, requestIdKey, requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)

		w.Header().Set(RequestIDHeader, requestID)

		log.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("request received")

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Ctx(ctx).Info().
			Dur("elapsed", time.Since(start)).
			Msg("request completed")
	})
}

// RequestIDFromContext returns the request ID stored by RequestLogger, or the
// empty string when called outside a request.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIdKey).(string); ok {
		return id
	}
	return ""
}
