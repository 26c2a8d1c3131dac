package maintenancehandler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/retention"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
	"hrflow/internal/transport/http/shared"
)

type Sweeper interface {
	Sweep(ctx context.Context) (map[retention.Category]int64, error)
}

type Handler struct {
	Sweeper Sweeper
	Perms   middleware.PermissionStore
	Audit   shared.AuditRecorder
}

func NewHandler(sweeper Sweeper, perms middleware.PermissionStore, recorder shared.AuditRecorder) *Handler {
	return &Handler{Sweeper: sweeper, Perms: perms, Audit: recorder}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ActionRetentionSweep, h.Perms)).Post("/maintenance/retention", h.handleSweep)
}

type sweepResponse struct {
	Removed map[retention.Category]int64 `json:"removed"`
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	removed, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	zap.L().Info("retention sweep", zap.String("actor_id", user.UserID), zap.Any("removed", removed))
	shared.Audit(r, h.Audit, user, requestID, "maintenance.retention", "retention", "sweep", nil, removed)
	api.Success(w, sweepResponse{Removed: removed}, requestID)
}
