package handlers_test

import (
	"encoding/csv"
	"net/http"
	"strings"
	"testing"
)

type notificationView struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	Title  string  `json:"title"`
	ReadAt *string `json:"readAt"`
}

func TestTransitionsNotifyTheNextApproverAndTheOwner(t *testing.T) {
	env := newTestEnv(t)
	employee := env.login(t, "ava@hrflow.test")
	lead := env.login(t, "leo@hrflow.test")
	hr := env.login(t, "hr@hrflow.test")

	req := env.submitLeave(t, employee, map[string]any{
		"leaveType": "annual_leave",
		"startDate": "2031-09-01",
		"endDate":   "2031-09-02",
		"urgency":   "medium",
		"reason":    "wedding",
	})

	leadInbox := env.notifications(t, lead)
	if len(leadInbox) != 1 || leadInbox[0].Type != "leave_submitted" {
		t.Fatalf("expected the supervisor to be notified, got %+v", leadInbox)
	}
	if inbox := env.notifications(t, employee); len(inbox) != 0 {
		t.Fatalf("the actor is never notified of their own action, got %+v", inbox)
	}

	env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/supervisor", lead, map[string]any{"decision": "approve"}, http.StatusOK)
	if inbox := env.notifications(t, hr); len(inbox) != 1 {
		t.Fatalf("expected the HR partner to be notified, got %+v", inbox)
	}
	env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/hr", hr, map[string]any{"decision": "approve"}, http.StatusOK)

	inbox := env.notifications(t, employee)
	if len(inbox) != 1 || inbox[0].Type != "leave_approved" {
		t.Fatalf("expected an approval notice, got %+v", inbox)
	}

	resp, raw := env.do(t, http.MethodGet, "/api/v1/notifications", employee, nil, nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Unread-Count") != "1" {
		t.Fatalf("expected one unread notification, got %d %q: %s", resp.StatusCode, resp.Header.Get("X-Unread-Count"), string(raw))
	}
	env.doStatus(t, http.MethodPost, "/api/v1/notifications/"+inbox[0].ID+"/read", employee, nil, http.StatusOK)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/notifications", employee, nil, nil)
	if resp.Header.Get("X-Unread-Count") != "0" || resp.Header.Get("X-Total-Count") != "1" {
		t.Fatalf("expected the notice to be read, unread=%q total=%q", resp.Header.Get("X-Unread-Count"), resp.Header.Get("X-Total-Count"))
	}

	env.doStatus(t, http.MethodPost, "/api/v1/notifications/"+inbox[0].ID+"/read", lead, nil, http.StatusNotFound)
}

func TestAuditTrailRecordsTransitions(t *testing.T) {
	env := newTestEnv(t)
	employee := env.login(t, "ava@hrflow.test")
	lead := env.login(t, "leo@hrflow.test")
	hr := env.login(t, "hr@hrflow.test")

	req := env.submitLeave(t, employee, map[string]any{
		"leaveType": "personal_leave",
		"startDate": "2031-10-06",
		"endDate":   "2031-10-06",
		"urgency":   "low",
		"reason":    "moving day",
	})
	env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/supervisor", lead, map[string]any{
		"decision": "reject",
		"comments": "team offsite",
	}, http.StatusOK)

	env.doStatus(t, http.MethodGet, "/api/v1/audit/events", employee, nil, http.StatusForbidden)

	resp, raw := env.do(t, http.MethodGet, "/api/v1/audit/events?entityType=leave_request&entityId="+req.ID+"&includeDetails=true", hr, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(raw))
	}
	var events []struct {
		ActorID string         `json:"actorId"`
		Action  string         `json:"action"`
		After   map[string]any `json:"after"`
	}
	decode(t, parseEnvelope(t, raw), &events)
	if len(events) != 2 || resp.Header.Get("X-Total-Count") != "2" {
		t.Fatalf("expected two audit events, got %+v", events)
	}
	actions := map[string]string{}
	for _, evt := range events {
		actions[evt.Action] = evt.ActorID
	}
	if actions["leave.submit"] != "e-1" || actions["leave.supervisor.reject"] != "e-lead" {
		t.Fatalf("unexpected audit actions %v", actions)
	}

	export, body := env.do(t, http.MethodGet, "/api/v1/audit/events/export?entityId="+req.ID, hr, nil, nil)
	if export.StatusCode != http.StatusOK || !strings.HasPrefix(export.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected export response %d %q", export.StatusCode, export.Header.Get("Content-Type"))
	}
	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "id" {
		t.Fatalf("expected a header and two rows, got %v", rows)
	}
}

func (e *testEnv) notifications(t *testing.T, token string) []notificationView {
	t.Helper()
	var items []notificationView
	decode(t, e.doStatus(t, http.MethodGet, "/api/v1/notifications", token, nil, http.StatusOK), &items)
	return items
}
