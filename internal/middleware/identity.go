package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/cassiomorais/cashdesk/internal/i18n"
	"github.com/cassiomorais/cashdesk/internal/identity"
	"github.com/rs/zerolog"
)

// Identity resolves the caller through chain and stores it on the request
// context. When nothing matches and issuer is set, a new persisted device
// identity is minted; otherwise the request is rejected.
func Identity(chain identity.Chain, issuer *identity.PersistedProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := chain.Resolve(r)
			if !ok && issuer != nil {
				userID, err := issuer.Issue(w)
				if err != nil {
					zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to issue device identity")
					writeAuthError(w, "identity unavailable", "identity_unavailable")
					return
				}
				id, ok = identity.Identity{UserID: userID, Source: identity.SourcePersisted}, true
			}
			if !ok {
				writeAuthError(w, "caller identity is missing", "unauthorized")
				return
			}

			ctx := identity.WithIdentity(r.Context(), id)
			logger := zerolog.Ctx(ctx).With().Str("owner", id.UserID).Str("identity_source", string(id.Source)).Logger()
			ctx = logger.WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Locale picks the UI language from ?lang=, X-Locale, then Accept-Language.
func Locale() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			explicit := r.URL.Query().Get("lang")
			if explicit == "" {
				explicit = r.Header.Get("X-Locale")
			}
			loc := i18n.Parse(explicit, r.Header.Get("Accept-Language"))
			next.ServeHTTP(w, r.WithContext(i18n.WithLocale(r.Context(), loc)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}
