package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"hrflow/internal/domain/auth"
	"hrflow/internal/transport/http/api"
)

// PermissionStore answers whether a role may perform an action in at least
// one record state. *auth.Policy implements it.
type PermissionStore interface {
	HasPermission(ctx context.Context, role auth.Role, action auth.Action) (bool, error)
}

// RequirePermission rejects callers whose role can never perform action.
// State-dependent checks stay in the services, which see the record.
func RequirePermission(action auth.Action, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
				return
			}

			allowed, err := store.HasPermission(r.Context(), user.Role, action)
			if err != nil {
				zap.L().Error("permission check failed",
					zap.String("action", string(action)),
					zap.String("role", string(user.Role)),
					zap.String("request_id", requestID),
					zap.Error(err),
				)
				api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
				return
			}
			if !allowed {
				api.FailWithDetails(w, http.StatusForbidden, "forbidden", "insufficient permissions",
					map[string]any{"role": user.Role, "action": action}, requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
