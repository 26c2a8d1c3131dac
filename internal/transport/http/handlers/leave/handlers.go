package leavehandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/leave"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
	"hrflow/internal/transport/http/shared"
)

const auditEntity = "leave_request"

type Handler struct {
	Service *leave.Service
	Perms   middleware.PermissionStore
	Audit   shared.AuditRecorder
}

func NewHandler(service *leave.Service, perms middleware.PermissionStore, auditSvc shared.AuditRecorder) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.ActionLeaveRead, h.Perms)
	create := middleware.RequirePermission(auth.ActionLeaveCreate, h.Perms)

	r.With(create).Post("/leave", h.handleSubmit)
	r.With(create).Post("/leave/draft", h.handleSaveDraft)
	r.With(create).Post("/leave/check", h.handleCheck)
	r.With(read).Get("/leave", h.handleList)
	r.With(read).Get("/leave/metadata", h.handleMetadata)
	r.With(read).Get("/leave/balances", h.handleBalances)
	r.With(read).Get("/leave/balances/adjustments", h.handleAdjustments)
	r.With(middleware.RequirePermission(auth.ActionLeaveBalanceAdjust, h.Perms)).Post("/leave/balances/adjust", h.handleAdjustBalance)
	r.With(read).Post("/leave/preview-approval-chain", h.handlePreviewChain)
	r.With(middleware.RequirePermission(auth.ActionLeaveEscalate, h.Perms)).Get("/leave/stuck", h.handleStuck)
	r.With(middleware.RequirePermission(auth.ActionLeaveBulkDecide, h.Perms)).Post("/leave/bulk/approve", h.handleBulk(leave.DecisionApprove))
	r.With(middleware.RequirePermission(auth.ActionLeaveBulkDecide, h.Perms)).Post("/leave/bulk/reject", h.handleBulk(leave.DecisionReject))

	r.With(read).Get("/leave/{id}", h.handleGet)
	r.With(create).Put("/leave/{id}", h.handleUpdateDraft)
	r.With(create).Post("/leave/{id}/submit", h.handleSubmitDraft)
	r.With(read).Get("/leave/{id}/eligibility", h.handleEligibility)
	r.With(read).Get("/leave/{id}/attachments/{attachmentID}", h.handleDownloadAttachment)
	r.With(middleware.RequirePermission(auth.ActionLeaveSupervisorDecide, h.Perms)).Put("/leave/{id}/supervisor", h.handleSupervisorDecision)
	r.With(middleware.RequirePermission(auth.ActionLeaveHRDecide, h.Perms)).Put("/leave/{id}/hr", h.handleHRDecision)
	r.With(middleware.RequirePermission(auth.ActionLeaveAdminDecide, h.Perms)).Put("/leave/{id}/admin", h.handleAdminDecision)
	r.With(middleware.RequirePermission(auth.ActionLeaveEmergencyOverride, h.Perms)).Post("/leave/{id}/emergency-override", h.handleEmergencyOverride)
	r.With(middleware.RequirePermission(auth.ActionLeaveEscalate, h.Perms)).Post("/leave/{id}/escalate", h.handleEscalate)
	r.With(middleware.RequirePermission(auth.ActionLeaveDirectApprove, h.Perms)).Post("/leave/{id}/direct-approval", h.handleDirectApproval)
	r.With(middleware.RequirePermission(auth.ActionLeaveCancel, h.Perms)).Post("/leave/{id}/cancel", h.handleCancel)
	r.With(middleware.RequirePermission(auth.ActionLeaveLifecycle, h.Perms)).Post("/leave/{id}/start", h.handleStart)
	r.With(middleware.RequirePermission(auth.ActionLeaveLifecycle, h.Perms)).Post("/leave/{id}/complete", h.handleComplete)
}

func currentUser(w http.ResponseWriter, r *http.Request) (auth.UserContext, string, bool) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
	}
	return user, requestID, ok
}

// statusChange is the audit snapshot of a transition.
func statusChange(req leave.LeaveRequest) map[string]any {
	out := map[string]any{"status": req.Status, "version": req.Version}
	if step := req.ActiveStep(); step != nil {
		out["activeLevel"] = step.Level
		out["approverRole"] = step.ApproverRole
	}
	return out
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	validator := shared.NewValidator()
	in, err := readSubmission(r, validator)
	if err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	if validator.Reject(w, requestID) {
		return
	}

	req, err := h.Service.Submit(r.Context(), user, in)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.submit", auditEntity, req.ID, nil, statusChange(req))
	api.Created(w, req, requestID)
}

func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	validator := shared.NewValidator()
	in, err := readSubmission(r, validator)
	if err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	if validator.Reject(w, requestID) {
		return
	}

	req, err := h.Service.SaveDraft(r.Context(), user, in)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.draft", auditEntity, req.ID, nil, statusChange(req))
	api.Created(w, req, requestID)
}

func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	validator := shared.NewValidator()
	in, err := readSubmission(r, validator)
	if err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	if validator.Reject(w, requestID) {
		return
	}

	req, err := h.Service.UpdateDraft(r.Context(), user, chi.URLParam(r, "id"), in)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.update", auditEntity, req.ID, nil, statusChange(req))
	api.Success(w, req, requestID)
}

func (h *Handler) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, err := h.Service.SubmitDraft(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.submit", auditEntity, req.ID, map[string]any{"status": leave.StatusDraft}, statusChange(req))
	api.Success(w, req, requestID)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	validator := shared.NewValidator()
	in, err := readSubmission(r, validator)
	if err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	if validator.Reject(w, requestID) {
		return
	}
	res, err := h.Service.Check(r.Context(), user, in)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, res, requestID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page := shared.ParsePagination(r, 0, 0)
	validator := shared.NewValidator()
	filter := leave.Filter{
		EmployeeID:  q.Get("employeeId"),
		Urgency:     leave.Urgency(q.Get("urgency")),
		Department:  q.Get("department"),
		PendingRole: auth.Role(q.Get("pendingRole")),
		From:        validator.OptionalDate("from", q.Get("from")),
		To:          validator.OptionalDate("to", q.Get("to")),
		Limit:       page.Limit,
		Offset:      page.Offset,
	}
	if validator.Reject(w, requestID) {
		return
	}
	for _, status := range shared.QueryList(r, "status") {
		filter.Statuses = append(filter.Statuses, leave.Status(status))
	}
	for _, category := range shared.QueryList(r, "category") {
		filter.Categories = append(filter.Categories, leave.Category(category))
	}

	result, err := h.Service.List(r.Context(), user, filter)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, result, requestID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, req, requestID)
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	api.Success(w, leave.AllMetadata(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	balances, err := h.Service.Balances(r.Context(), user, r.URL.Query().Get("employeeId"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, balances, requestID)
}

func (h *Handler) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	adjustments, err := h.Service.Adjustments(r.Context(), user, r.URL.Query().Get("employeeId"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, adjustments, requestID)
}

func (h *Handler) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload adjustRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	balance, err := h.Service.AdjustBalance(r.Context(), user, payload.EmployeeID, payload.Category, payload.Amount, payload.Reason)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.balance.adjust", "leave_balance", payload.EmployeeID, nil, map[string]any{
		"category":  payload.Category,
		"amount":    payload.Amount,
		"remaining": balance.RemainingDays,
		"reason":    payload.Reason,
	})
	api.Success(w, balance, requestID)
}

func (h *Handler) handlePreviewChain(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload previewRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	validator := shared.NewValidator()
	in := leave.PreviewInput{
		EmployeeID: payload.EmployeeID,
		LeaveType:  payload.LeaveType,
		Partial:    payload.IsPartialDay,
		TotalDays:  payload.TotalDays,
		Urgency:    payload.Urgency,
	}
	if start := validator.OptionalDate("startDate", payload.StartDate); start != nil {
		in.StartDate = *start
	}
	if end := validator.OptionalDate("endDate", payload.EndDate); end != nil {
		in.EndDate = *end
	}
	if validator.Reject(w, requestID) {
		return
	}

	preview, err := h.Service.PreviewChain(r.Context(), user, in)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, preview, requestID)
}

func (h *Handler) handleStuck(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	stuck, err := h.Service.Stuck(r.Context(), user)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, stuck, requestID)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	eligibility, err := h.Service.Eligibility(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	api.Success(w, eligibility, requestID)
}

func (h *Handler) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	att, body, err := h.Service.OpenAttachment(r.Context(), user, chi.URLParam(r, "id"), chi.URLParam(r, "attachmentID"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	defer body.Close()
	api.Download(w, att.ContentType, att.FileName, att.Size, body)
}

func (h *Handler) handleSupervisorDecision(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload decisionRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	req, err := h.Service.SupervisorDecision(r.Context(), user, chi.URLParam(r, "id"), payload.input())
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.supervisor."+string(payload.Decision), auditEntity, req.ID,
		map[string]any{"status": leave.StatusPendingSupervisor}, statusChange(req))
	api.Success(w, req, requestID)
}

func (h *Handler) handleHRDecision(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload hrDecisionRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	req, err := h.Service.HRDecision(r.Context(), user, chi.URLParam(r, "id"), leave.HRDecisionInput{
		DecisionInput:                   payload.input(),
		MedicalCertificateRequired:      payload.MedicalCertificateRequired,
		ReturnToWorkCertificateRequired: payload.ReturnToWorkCertificateRequired,
		ReviewNotes:                     payload.ReviewNotes,
	})
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.hr."+string(payload.Decision), auditEntity, req.ID,
		map[string]any{"status": leave.StatusPendingHR}, statusChange(req))
	api.Success(w, req, requestID)
}

func (h *Handler) handleAdminDecision(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload decisionRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	req, err := h.Service.AdminDecision(r.Context(), user, chi.URLParam(r, "id"), payload.input())
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.admin."+string(payload.Decision), auditEntity, req.ID,
		map[string]any{"status": leave.StatusPendingAdmin}, statusChange(req))
	api.Success(w, req, requestID)
}

func (h *Handler) handleBulk(decision leave.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, requestID, ok := currentUser(w, r)
		if !ok {
			return
		}
		var payload bulkRequest
		if err := shared.DecodeJSON(r, &payload); err != nil {
			shared.BadJSON(w, requestID, err)
			return
		}
		result, err := h.Service.BulkDecide(r.Context(), user, payload.LeaveIDs, decision, payload.Comments)
		if err != nil {
			shared.WriteError(w, r, err, requestID)
			return
		}
		for _, item := range result.Results {
			if item.Success {
				shared.Audit(r, h.Audit, user, requestID, "leave.bulk."+string(decision), auditEntity, item.ID, nil, map[string]any{"status": item.Status})
			}
		}
		api.Success(w, result, requestID)
	}
}

func (h *Handler) handleEmergencyOverride(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload overrideRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	req, err := h.Service.EmergencyOverride(r.Context(), user, chi.URLParam(r, "id"), payload.Reason, payload.NotifyBypassed)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.emergency_override", auditEntity, req.ID, nil, map[string]any{
		"status":         req.Status,
		"reason":         payload.Reason,
		"bypassed":       len(req.BypassedSteps()),
		"notifyBypassed": payload.NotifyBypassed,
	})
	api.Success(w, req, requestID)
}

func (h *Handler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload escalateRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	req, err := h.Service.EscalateStuckRequest(r.Context(), user, chi.URLParam(r, "id"), payload.Reason, payload.EscalateTo)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	after := statusChange(req)
	after["reason"] = payload.Reason
	after["escalateTo"] = payload.EscalateTo
	shared.Audit(r, h.Audit, user, requestID, "leave.escalate", auditEntity, req.ID, nil, after)
	api.Success(w, req, requestID)
}

func (h *Handler) handleDirectApproval(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload directApprovalRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	req, err := h.Service.DirectApproval(r.Context(), user, chi.URLParam(r, "id"), payload.Reason, payload.SkipNotifications)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.direct_approval", auditEntity, req.ID, nil, map[string]any{
		"status":            req.Status,
		"reason":            payload.Reason,
		"skipNotifications": payload.SkipNotifications,
	})
	api.Success(w, req, requestID)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload reasonRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	req, err := h.Service.Cancel(r.Context(), user, chi.URLParam(r, "id"), payload.Reason)
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.cancel", auditEntity, req.ID, nil, statusChange(req))
	api.Success(w, req, requestID)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, err := h.Service.Start(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.start", auditEntity, req.ID, map[string]any{"status": leave.StatusApproved}, statusChange(req))
	api.Success(w, req, requestID)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	user, requestID, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, err := h.Service.Complete(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, r, err, requestID)
		return
	}
	shared.Audit(r, h.Audit, user, requestID, "leave.complete", auditEntity, req.ID, map[string]any{"status": leave.StatusInProgress}, statusChange(req))
	api.Success(w, req, requestID)
}
