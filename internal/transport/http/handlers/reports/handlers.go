package reportshandler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/kpi"
	"hrflow/internal/domain/leave"
	"hrflow/internal/domain/reports"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
	"hrflow/internal/transport/http/shared"
)

type KPIReader interface {
	Get(ctx context.Context, actor auth.UserContext, id string) (kpi.KPISet, error)
}

type LeaveReader interface {
	Get(ctx context.Context, actor auth.UserContext, id string) (leave.LeaveRequest, error)
}

type Handler struct {
	Service *reports.Service
	KPIs    KPIReader
	Leaves  LeaveReader
	Perms   middleware.PermissionStore
	Now     func() time.Time
}

func NewHandler(service *reports.Service, kpis KPIReader, leaves LeaveReader, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, KPIs: kpis, Leaves: leaves, Perms: perms, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reports/dashboard", h.handleDashboard)
	r.With(middleware.RequirePermission(auth.ActionKPIRead, h.Perms)).Get("/kpis/{id}/export.pdf", h.handleKPIExport)
	r.With(middleware.RequirePermission(auth.ActionLeaveRead, h.Perms)).Get("/leave/{id}/approval-letter.pdf", h.handleApprovalLetter)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	dashboard, err := h.Service.Dashboard(r.Context(), user)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, dashboard, requestID)
}

func (h *Handler) handleKPIExport(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	set, err := h.KPIs.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteKPISetPDF(&buf, set); err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	writePDF(w, fmt.Sprintf("kpis-%s-%s.pdf", set.EmployeeID, set.Quarter), buf.Bytes())
}

func (h *Handler) handleApprovalLetter(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	req, err := h.Leaves.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteLeaveApprovalLetter(&buf, req, h.Now().UTC()); err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	writePDF(w, fmt.Sprintf("leave-%s.pdf", req.ID), buf.Bytes())
}

// writePDF sends a fully rendered document so a render failure can still
// produce a JSON error instead of a truncated file.
func writePDF(w http.ResponseWriter, filename string, data []byte) {
	api.Download(w, "application/pdf", filename, int64(len(data)), bytes.NewReader(data))
}
