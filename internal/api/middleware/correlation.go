package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

const (
	correlationIDHeader = "X-Correlation-ID"
	correlationIDSize   = 8
	maxCorrelationIDLen = 64
)

type correlationIDKey struct{}

// CorrelationID tags each request with an ID, reusing a caller-supplied
// X-Correlation-ID header when it is present and sane.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(correlationIDHeader)
			if !validCorrelationID(correlationID) {
				correlationID = newCorrelationID()
			}

			w.Header().Set(correlationIDHeader, correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}

func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}

	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}

	return true
}

func newCorrelationID() string {
	b := make([]byte, correlationIDSize)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%016x", uint64(time.Now().UnixNano()))
	}

	return hex.EncodeToString(b)
}
