package shared

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/transport/http/api"
)

// WriteError maps a domain error to its HTTP response. Unknown errors are
// logged and reported as 500 without their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error, requestID string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		v := NewValidator()
		v.Absorb(err)
		FailValidation(w, requestID, v.Issues())
	case apperr.KindInvalidState:
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case apperr.KindConcurrentModification:
		api.Fail(w, http.StatusConflict, "concurrent_modification", "the record was changed by someone else, reload and retry", requestID)
	case apperr.KindPolicy:
		var perr *apperr.PolicyError
		if errors.As(err, &perr) {
			api.FailWithDetails(w, http.StatusUnprocessableEntity, "policy_violation", err.Error(), map[string]any{"rule": perr.Rule}, requestID)
			return
		}
		api.Fail(w, http.StatusUnprocessableEntity, "policy_violation", err.Error(), requestID)
	case apperr.KindInsufficientBalance:
		var ib *apperr.InsufficientBalanceError
		if errors.As(err, &ib) {
			api.FailWithDetails(w, http.StatusUnprocessableEntity, "insufficient_balance", err.Error(), map[string]any{
				"category":  ib.Category,
				"available": ib.Available,
				"requested": ib.Requested,
				"shortfall": ib.Shortfall,
			}, requestID)
			return
		}
		api.Fail(w, http.StatusUnprocessableEntity, "insufficient_balance", err.Error(), requestID)
	case apperr.KindNotFound:
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case apperr.KindAuthorization:
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	default:
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
	}
}
