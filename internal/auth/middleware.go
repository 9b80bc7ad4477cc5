package auth

import (
	"net/http"
	"strings"

	"github.com/driftcode/agentcore/pkg/models"
)

// RequireAuth wraps next, rejecting requests that carry neither a valid
// bearer JWT nor a valid API key when service is enabled. If service is
// nil or disabled, requests pass through unauthenticated (useful for local
// development and the doctor/migrate CLI paths).
func RequireAuth(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if service == nil || !service.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		user, ok := authenticate(service, r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		r = r.WithContext(WithUser(r.Context(), user))
		next.ServeHTTP(w, r)
	})
}

func authenticate(service *Service, r *http.Request) (*models.User, bool) {
	if token := bearerToken(r); token != "" {
		if user, err := service.ValidateJWT(token); err == nil {
			return user, true
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		if user, err := service.ValidateAPIKey(key); err == nil {
			return user, true
		}
	}
	return nil, false
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
