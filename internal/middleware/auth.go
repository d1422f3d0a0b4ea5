// Package middleware provides HTTP middleware for the gateway.
package middleware

import (
	"net/http"
	"strings"

	"github.com/newapi-sidecar/sidecar/internal/auth"
	"github.com/newapi-sidecar/sidecar/internal/handler"
)

// publicPrefixes lists path prefixes the auth middleware never challenges:
// liveness probes, the admin login surface, and the public embed/status-page
// mirrors (spec.md §6.2, §6.3, §6.4).
var publicPrefixes = []string{
	"/api/health",
	"/api/auth/",
	"/api/embed/",
	"/api/model-status/embed/",
	"/api/status-page/",
	"/status-page/",
}

func isPublic(path string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Auth returns middleware that accepts either a static X-API-Key header or
// a Bearer-JWT Authorization header issued by the admin login endpoint.
func Auth(svc *auth.Service, apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if apiKey != "" && r.Header.Get("X-API-Key") == apiKey {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if err := svc.Verify(token); err == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			handler.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
		})
	}
}
