package kpihandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/kpi"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
	"hrflow/internal/transport/http/shared"
)

const auditEntity = "kpi_set"

type Handler struct {
	Service *kpi.Service
	Perms   middleware.PermissionStore
	Audit   shared.AuditRecorder
}

func NewHandler(service *kpi.Service, perms middleware.PermissionStore, auditSvc shared.AuditRecorder) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ActionKPISave, h.Perms)).Post("/kpis", h.handleSave)
	r.With(middleware.RequirePermission(auth.ActionKPIRead, h.Perms)).Get("/kpis", h.handleList)
	r.With(middleware.RequirePermission(auth.ActionKPIRead, h.Perms)).Get("/kpis/approved-for-linking", h.handleApprovedForLinking)
	r.With(middleware.RequirePermission(auth.ActionKPIRead, h.Perms)).Get("/kpis/{id}", h.handleGet)
	r.With(middleware.RequirePermission(auth.ActionKPISubmit, h.Perms)).Post("/kpis/{id}/submit", h.handleSubmit)
	r.With(middleware.RequirePermission(auth.ActionKPIDecide, h.Perms)).Post("/kpis/{id}/approve", h.handleDecision)
	r.With(middleware.RequirePermission(auth.ActionKPIDelete, h.Perms)).Delete("/kpis/{id}", h.handleDelete)
	r.With(middleware.RequirePermission(auth.ActionKPILink, h.Perms)).Post("/kpis/{id}/links", h.handleLink)
	r.With(middleware.RequirePermission(auth.ActionKPIRead, h.Perms)).Get("/kpis/{id}/links", h.handleListLinks)
}

type saveRequest struct {
	Quarter string     `json:"quarter"`
	KPIs    []kpi.Item `json:"kpis"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var payload saveRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}

	set, err := h.Service.SaveOrUpdate(r.Context(), user, payload.Quarter, payload.KPIs)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "kpi.save", auditEntity, set.ID, nil, set)
	if set.Version == 1 {
		api.Created(w, set, requestID)
		return
	}
	api.Success(w, set, requestID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	page := shared.ParsePagination(r, 0, 0)
	filter := kpi.Filter{
		EmployeeID: r.URL.Query().Get("employeeId"),
		Quarter:    r.URL.Query().Get("quarter"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	for _, status := range shared.QueryList(r, "status") {
		filter.Statuses = append(filter.Statuses, kpi.Status(status))
	}

	result, err := h.Service.List(r.Context(), user, filter)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, result, requestID)
}

func (h *Handler) handleApprovedForLinking(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	set, err := h.Service.ApprovedForLinking(r.Context(), user, r.URL.Query().Get("userId"), r.URL.Query().Get("quarter"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, set, requestID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	set, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, set, requestID)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	set, err := h.Service.Submit(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "kpi.submit", auditEntity, set.ID, map[string]any{"status": kpi.StatusDraft}, map[string]any{"status": set.Status})
	api.Success(w, set, requestID)
}

type decisionRequest struct {
	Decision kpi.Decision `json:"decision"`
	Comments string       `json:"comments"`
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var payload decisionRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}

	set, err := h.Service.ProcessApproval(r.Context(), user, chi.URLParam(r, "id"), payload.Decision, payload.Comments)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "kpi."+string(payload.Decision), auditEntity, set.ID,
		map[string]any{"status": kpi.StatusPending},
		map[string]any{"status": set.Status, "comments": set.DecisionComments})
	api.Success(w, set, requestID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Service.Delete(r.Context(), user, id); err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "kpi.delete", auditEntity, id, nil, nil)
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}

type linkRequest struct {
	TargetType    kpi.TargetType     `json:"targetType"`
	TargetID      string             `json:"targetId"`
	Title         string             `json:"title"`
	Contributions []kpi.Contribution `json:"contributions"`
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var payload linkRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}

	link, err := h.Service.Link(r.Context(), user, chi.URLParam(r, "id"), kpi.LinkInput{
		TargetType:    payload.TargetType,
		TargetID:      payload.TargetID,
		Title:         payload.Title,
		Contributions: payload.Contributions,
	})
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "kpi.link", auditEntity, link.KPISetID, nil, link)
	api.Created(w, link, requestID)
}

func (h *Handler) handleListLinks(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	links, err := h.Service.ListLinks(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, links, requestID)
}
