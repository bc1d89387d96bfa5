package middleware

import (
	"net/http"

	"ssoengine/internal/lib/utilities"
)

const (
	EnvDev   = "dev"
	EnvLocal = "local"
	EnvProd  = "prod"
)

// Env initializes request context with the deployment env
func Env(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(utilities.WithEnv(r.Context(), env)))
		})
	}
}

// AuthenticatedUser copies the user id set by the authenticating proxy from header into context
func AuthenticatedUser(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := r.Header.Get(header); userID != "" {
				r = r.WithContext(utilities.WithUser(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
