package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMissingToken is returned when no trigger token is provided in headers.
	ErrMissingToken = errors.New("missing trigger token")

	// ErrInvalidToken is returned when the token does not match the configured hash.
	ErrInvalidToken = errors.New("invalid trigger token")

	// ErrInvalidTokenHash is returned when the configured hash is not a bcrypt hash.
	ErrInvalidTokenHash = errors.New("trigger token hash is not a bcrypt hash")
)

// TokenAuthenticator checks callers against one bcrypt-hashed shared token.
type TokenAuthenticator struct {
	hash []byte
}

// NewTokenAuthenticator validates hash and returns an authenticator.
func NewTokenAuthenticator(hash string) (*TokenAuthenticator, error) {
	h := []byte(strings.TrimSpace(hash))

	if _, err := bcrypt.Cost(h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTokenHash, err)
	}

	return &TokenAuthenticator{hash: h}, nil
}

// Authenticate checks the request's token.
func (a *TokenAuthenticator) Authenticate(r *http.Request) error {
	token, ok := extractToken(r)
	if !ok {
		return ErrMissingToken
	}

	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}

	return nil
}

// extractToken reads X-Api-Key first, then an Authorization Bearer token.
// Values containing line breaks are rejected.
func extractToken(r *http.Request) (string, bool) {
	value := r.Header.Get("X-Api-Key")

	if value == "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return "", false
		}

		value = strings.TrimPrefix(auth, "Bearer ")
	}

	if strings.ContainsAny(value, "\r\n") {
		return "", false
	}

	value = strings.TrimSpace(value)

	return value, value != ""
}

// Authenticate rejects requests to non-public paths without a valid token.
func Authenticate(auth *TokenAuthenticator, public PublicPaths, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Contains(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			if err := auth.Authenticate(r); err != nil {
				logger.Warn("Trigger authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
					slog.String("error", err.Error()),
				)

				w.Header().Set("WWW-Authenticate", `Bearer realm="flightpipe"`)
				writeProblem(w, r, logger, http.StatusUnauthorized, err.Error())

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
