// Package middleware provides HTTP middleware for the stage trigger server.
package middleware

import (
	"log/slog"
	"net/http"
)

type (
	// Option is a function that applies middleware to a handler.
	Option func(http.Handler) http.Handler

	// PublicPaths lists request paths that bypass authentication and rate limiting.
	PublicPaths map[string]bool
)

// NewPublicPaths builds a PublicPaths set.
func NewPublicPaths(paths ...string) PublicPaths {
	p := make(PublicPaths, len(paths))
	for _, path := range paths {
		p[path] = true
	}

	return p
}

// Contains reports whether path is public.
func (p PublicPaths) Contains(path string) bool {
	return p[path]
}

// Apply applies a chain of middleware options to a base handler.
// The first option becomes the outermost middleware.
//
// Example:
//
//	handler := middleware.Apply(mux,
//	    middleware.WithCorrelationID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithTokenAuth(auth, public, logger),
//	    middleware.WithRateLimit(limiter, public, logger),
//	    middleware.WithRequestLogger(logger),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// WithCorrelationID returns an option that adds correlation ID middleware.
func WithCorrelationID() Option {
	return func(next http.Handler) http.Handler {
		return CorrelationID()(next)
	}
}

// WithRecovery returns an option that adds panic recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return Recovery(logger)(next)
	}
}

// WithTokenAuth returns an option that adds trigger token authentication.
// If auth is nil, this option is skipped.
func WithTokenAuth(auth *TokenAuthenticator, public PublicPaths, logger *slog.Logger) Option {
	if auth == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return Authenticate(auth, public, logger)(next)
	}
}

// WithRateLimit returns an option that adds rate limiting middleware.
// If limiter is nil, this option is skipped.
func WithRateLimit(limiter RateLimiter, public PublicPaths, logger *slog.Logger) Option {
	if limiter == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return RateLimit(limiter, public, logger)(next)
	}
}

// WithRequestLogger returns an option that adds request logging middleware.
func WithRequestLogger(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return RequestLogger(logger)(next)
	}
}
