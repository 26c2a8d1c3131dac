package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"hrflow/internal/domain/apperr"
)

type failure struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	RequestID string `json:"requestId"`
}

func TestWriteErrorMapsKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Validation("reason", "is required"), http.StatusBadRequest, "validation_error"},
		{"invalid state", &apperr.InvalidStateError{Entity: "leave_request", ID: "l-1", Current: "approved", Op: "approve"}, http.StatusConflict, "invalid_state"},
		{"concurrent", fmt.Errorf("save: %w", apperr.ErrConcurrentModification), http.StatusConflict, "concurrent_modification"},
		{"policy", &apperr.PolicyError{Rule: "certificate", Reason: "medical certificate required"}, http.StatusUnprocessableEntity, "policy_violation"},
		{"balance", apperr.NewInsufficientBalance("vacation", decimal.NewFromInt(2), decimal.NewFromInt(5)), http.StatusUnprocessableEntity, "insufficient_balance"},
		{"not found", apperr.NotFound("kpi_set", "k-1"), http.StatusNotFound, "not_found"},
		{"forbidden", &apperr.AuthorizationError{Role: "employee", Action: "leave.decide_hr"}, http.StatusForbidden, "forbidden"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/leave", nil)
			WriteError(rec, req, tc.err, "req-1")

			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			var body failure
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Error.Code != tc.code || body.RequestID != "req-1" {
				t.Fatalf("unexpected body %s", rec.Body.String())
			}
		})
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"), "")

	var body failure
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Message != "internal server error" {
		t.Fatalf("internal error leaked: %q", body.Error.Message)
	}
}

func TestWriteErrorCarriesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil),
		apperr.NewInsufficientBalance("vacation", decimal.NewFromInt(2), decimal.NewFromInt(5)), "")

	var body failure
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Details["category"] != "vacation" {
		t.Fatalf("expected category detail, got %v", body.Error.Details)
	}

	rec = httptest.NewRecorder()
	verr := &apperr.ValidationError{}
	verr.Add("startDate", "is required")
	verr.Add("reason", "is required")
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), verr, "")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields, _ := body.Error.Details["fields"].([]any)
	if len(fields) != 2 {
		t.Fatalf("expected two field issues, got %v", body.Error.Details)
	}
}
