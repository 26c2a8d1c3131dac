package authhandler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/org"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
	"hrflow/internal/transport/http/shared"
)

// Profiles resolves the org record behind an authenticated user.
type Profiles interface {
	Employee(id string) (org.Employee, bool)
	Supervisor(employeeID string) (org.Employee, bool)
}

type Handler struct {
	Service  *auth.Service
	Profiles Profiles
}

func NewHandler(service *auth.Service, profiles Profiles) *Handler {
	return &Handler{Service: service, Profiles: profiles}
}

func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.HandleMe)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.BadJSON(w, requestID, err)
		return
	}
	validator := shared.NewValidator()
	validator.Required("email", payload.Email, "is required")
	validator.Required("password", payload.Password, "is required")
	if validator.Reject(w, requestID) {
		return
	}

	result, err := h.Service.Login(r.Context(), payload.Email, payload.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		zap.L().Info("login rejected", zap.String("email", strings.ToLower(strings.TrimSpace(payload.Email))), zap.String("request_id", requestID))
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
		return
	}
	if err != nil {
		zap.L().Error("login failed", zap.Error(err), zap.String("request_id", requestID))
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestID)
		return
	}
	api.Success(w, result, requestID)
}

type meResponse struct {
	auth.UserContext
	Department   string `json:"department,omitempty"`
	SupervisorID string `json:"supervisorId,omitempty"`
	Supervisor   string `json:"supervisorName,omitempty"`
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	resp := meResponse{UserContext: user}
	if h.Profiles != nil {
		if emp, found := h.Profiles.Employee(user.UserID); found {
			resp.Department = emp.Department
			if sup, found := h.Profiles.Supervisor(emp.ID); found {
				resp.SupervisorID = sup.ID
				resp.Supervisor = sup.Name
			}
		}
	}
	api.Success(w, resp, requestID)
}
