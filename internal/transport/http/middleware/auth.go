package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"hrflow/internal/domain/auth"
	"hrflow/internal/transport/http/api"
)

// UserChecker confirms a token subject still exists in the directory.
type UserChecker interface {
	Exists(ctx context.Context, userID string) bool
}

// Auth attaches the bearer token's user to the request. Requests without a
// valid token pass through anonymously; RequireUser rejects them later.
func Auth(secret string, users UserChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				zap.L().Debug("bearer token rejected", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if users != nil && !users.Exists(r.Context(), claims.UserID) {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User())))
		})
	}
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
