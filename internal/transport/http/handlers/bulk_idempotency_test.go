package handlers_test

import (
	"net/http"
	"testing"
)

type bulkView struct {
	Results []struct {
		ID        string `json:"id"`
		Success   bool   `json:"success"`
		Status    string `json:"status"`
		ErrorKind string `json:"errorKind"`
	} `json:"results"`
	SuccessCount int `json:"successCount"`
	FailedCount  int `json:"failedCount"`
}

func TestBulkApproveReportsEveryItem(t *testing.T) {
	env := newTestEnv(t)
	ava := env.login(t, "ava@hrflow.test")
	ben := env.login(t, "ben@hrflow.test")
	lead := env.login(t, "leo@hrflow.test")

	first := env.submitLeave(t, ava, map[string]any{
		"leaveType": "annual_leave",
		"startDate": "2031-11-03",
		"endDate":   "2031-11-04",
		"urgency":   "low",
		"reason":    "family visit",
	})
	second := env.submitLeave(t, ben, map[string]any{
		"leaveType": "annual_leave",
		"startDate": "2031-11-10",
		"endDate":   "2031-11-10",
		"urgency":   "low",
		"reason":    "appointment",
	})
	decided := env.submitLeave(t, ben, map[string]any{
		"leaveType": "annual_leave",
		"startDate": "2031-12-01",
		"endDate":   "2031-12-01",
		"urgency":   "low",
		"reason":    "errands",
	})
	env.doStatus(t, http.MethodPut, "/api/v1/leave/"+decided.ID+"/supervisor", lead, map[string]any{"decision": "approve"}, http.StatusOK)

	env.doStatus(t, http.MethodPost, "/api/v1/leave/bulk/approve", ava, map[string]any{"leaveIds": []string{first.ID}}, http.StatusForbidden)
	env.doStatus(t, http.MethodPost, "/api/v1/leave/bulk/approve", lead, map[string]any{"leaveIds": []string{}}, http.StatusBadRequest)

	var result bulkView
	decode(t, env.doStatus(t, http.MethodPost, "/api/v1/leave/bulk/approve", lead, map[string]any{
		"leaveIds": []string{first.ID, second.ID, first.ID, decided.ID, "missing"},
		"comments": "approved in planning",
	}, http.StatusOK), &result)

	if result.SuccessCount != 2 || result.FailedCount != 3 || len(result.Results) != 5 {
		t.Fatalf("unexpected bulk outcome %+v", result)
	}
	if dup := result.Results[2]; dup.ID != first.ID || dup.Success || dup.ErrorKind != "validation" {
		t.Fatalf("expected the repeated id to be reported as a validation failure, got %+v", dup)
	}
	byID := map[string]string{}
	for _, item := range result.Results {
		if item.Success {
			if item.Status != "pending_hr" {
				t.Fatalf("expected %s to move to pending_hr, got %s", item.ID, item.Status)
			}
			continue
		}
		if item.ID == first.ID {
			continue
		}
		byID[item.ID] = item.ErrorKind
	}
	if byID[decided.ID] != "invalid_state" || byID["missing"] != "not_found" {
		t.Fatalf("unexpected per-item errors %v", byID)
	}
}

func TestIdempotencyKeyReplaysMutations(t *testing.T) {
	env := newTestEnv(t)
	ava := env.login(t, "ava@hrflow.test")
	body := map[string]any{
		"leaveType": "personal_leave",
		"startDate": "2031-06-02",
		"endDate":   "2031-06-02",
		"urgency":   "low",
		"reason":    "passport renewal",
	}
	headers := map[string]string{"Idempotency-Key": "leave-2031-06-02"}

	firstResp, firstRaw := env.do(t, http.MethodPost, "/api/v1/leave", ava, body, headers)
	if firstResp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", firstResp.StatusCode, string(firstRaw))
	}
	var created leaveView
	decode(t, parseEnvelope(t, firstRaw), &created)

	replayResp, replayRaw := env.do(t, http.MethodPost, "/api/v1/leave", ava, body, headers)
	if replayResp.StatusCode != http.StatusCreated || replayResp.Header.Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected a replayed 201, got %d %q", replayResp.StatusCode, replayResp.Header.Get("Idempotent-Replayed"))
	}
	var replayed leaveView
	decode(t, parseEnvelope(t, replayRaw), &replayed)
	if replayed.ID != created.ID {
		t.Fatalf("replay created a second request: %s vs %s", replayed.ID, created.ID)
	}

	var page struct {
		Total int `json:"total"`
	}
	decode(t, env.doStatus(t, http.MethodGet, "/api/v1/leave", ava, nil, http.StatusOK), &page)
	if page.Total != 1 {
		t.Fatalf("expected one stored request, got %d", page.Total)
	}

	body["reason"] = "different trip"
	conflict, raw := env.do(t, http.MethodPost, "/api/v1/leave", ava, body, headers)
	if conflict.StatusCode != http.StatusConflict || envelopeErrorCode(parseEnvelope(t, raw)) != "idempotency_conflict" {
		t.Fatalf("expected idempotency_conflict, got %d: %s", conflict.StatusCode, string(raw))
	}
}
