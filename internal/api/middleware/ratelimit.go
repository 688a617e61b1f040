package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether a request may proceed. *rate.Limiter satisfies it.
type RateLimiter interface {
	Allow() bool
}

var _ RateLimiter = (*rate.Limiter)(nil)

// NewRateLimiter builds the global token bucket for trigger requests.
func NewRateLimiter(cfg *Config) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(cfg.RPS), burst)
}

// RateLimit answers 429 for non-public requests over the limit.
func RateLimit(limiter RateLimiter, public PublicPaths, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Contains(r.URL.Path) || limiter.Allow() {
				next.ServeHTTP(w, r)

				return
			}

			logger.Warn("Rate limit exceeded",
				slog.String("path", r.URL.Path),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
			)

			writeProblem(w, r, logger, http.StatusTooManyRequests, "Rate limit exceeded. Please retry after some time.")
		})
	}
}
