package http

import (
	"context"
	"net/http"
	"strings"

	"chatsync/pkg/jwt"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserIdFrom returns the authenticated user id placed in the context by
// the auth middleware.
func UserIdFrom(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(UserContextKey).(string)
	return userId, ok
}

type AuthMiddleware struct {
	jwtManager *jwt.JWTManager
}

func NewAuthMiddleware(jwtManager *jwt.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
	}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSON(w, http.StatusUnauthorized, Response{Message: "authorization header required"})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeJSON(w, http.StatusUnauthorized, Response{Message: "invalid authorization header format"})
			return
		}

		userId, err := m.jwtManager.Validate(parts[1])
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, Response{Message: "invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, userId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
