package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/bastionhq/bastion/internal/models"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AdminContextKey is the key for storing admin claims in context
	AdminContextKey contextKey = "admin"
)

// AdminMiddleware validates ops-surface bearer tokens and injects the admin
// claims into the request context
func AdminMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := tm.ValidateAdminToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminFromContext extracts admin claims from request context
func GetAdminFromContext(r *http.Request) *models.AdminClaims {
	claims, ok := r.Context().Value(AdminContextKey).(*models.AdminClaims)
	if !ok {
		return nil
	}
	return claims
}
