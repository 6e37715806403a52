package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cassiomorais/cashdesk/internal/identity"
	"github.com/go-chi/httprate"
)

// RateLimit allows requests per window for each caller. Callers are keyed
// by their resolved identity, falling back to the client IP when the
// identity middleware has not run.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(keyByIdentity),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "rate limit exceeded",
				"code":  "rate_limit",
			})
		}),
	)
}

func keyByIdentity(r *http.Request) (string, error) {
	if id, ok := identity.UserID(r.Context()); ok {
		return "id:" + id, nil
	}
	return httprate.KeyByIP(r)
}
