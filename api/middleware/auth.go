// Package middleware wraps the Auth Admission Filter and the ambient
// request hygiene every endpoint needs for HTTP transport, following the
// Chain()-of-func(http.Handler)-http.Handler shape this codebase's auth
// middleware establishes, adapted from bearer-token verification to
// MoneyBee's API-key admission model.
package middleware

import (
	"net/http"

	"github.com/selcukyavuz/moneybee/api"
	"github.com/selcukyavuz/moneybee/internal/admission"
	"github.com/selcukyavuz/moneybee/internal/config"
)

// Chain composes middlewares in the order given, outermost first.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// bypass lists paths that never require an API key.
var bypass = map[string]bool{
	"/health": true,
}

// RequireAPIKey consults the admission filter on the configured header and
// short-circuits 401 on any rejection. Every rejection here gets status 401
// regardless of whether the underlying cause was a missing header, a bad
// format, an invalid key, or an unreachable collaborator; the envelope's
// message and errors carry the filter's reason text for that rejection.
func RequireAPIKey(cfg *config.Config, filter *admission.Filter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(cfg.APIKeyHeader)
			if err := filter.Validate(r.Context(), key); err != nil {
				msg := err.Error()
				api.WriteJSON(w, http.StatusUnauthorized, api.Envelope{
					Success: false,
					Message: &msg,
					Errors:  []string{msg},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
