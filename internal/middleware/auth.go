package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voltlink-io/onboardflow/internal/models"
	"github.com/voltlink-io/onboardflow/internal/utils"
)

type contextKey string

// UserContextKey carries the validated JWT claims through the request
const UserContextKey contextKey = "user"

// Auth verifies JWT bearer tokens and stores the claims in the context
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := utils.ValidateToken(parts[1], secret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActingUser extracts the user id and role stored by Auth.
// Both are empty when the request carried no valid token context.
func ActingUser(r *http.Request) (string, models.Role) {
	claims, ok := r.Context().Value(UserContextKey).(jwt.MapClaims)
	if !ok {
		return "", ""
	}
	id, _ := claims["id"].(string)
	role, _ := claims["role"].(string)
	return id, models.Role(role)
}
