package handlers_test

import (
	"net/http"
	"testing"
	"time"
)

func TestRetentionSweepIsAdminOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.IdempotencyTTL = 24 * time.Hour
	cfg.NotificationRetention = 30 * 24 * time.Hour
	env := newTestEnvWith(t, cfg)

	employee := env.login(t, "ava@hrflow.test")
	env.doStatus(t, http.MethodPost, "/api/v1/maintenance/retention", employee, nil, http.StatusForbidden)

	admin := env.login(t, "ceo@hrflow.test")
	var result struct {
		Removed map[string]int64 `json:"removed"`
	}
	decode(t, env.doStatus(t, http.MethodPost, "/api/v1/maintenance/retention", admin, nil, http.StatusOK), &result)
	if len(result.Removed) != 2 {
		t.Fatalf("expected two swept categories, got %+v", result.Removed)
	}
	if _, ok := result.Removed["audit_events"]; ok {
		t.Fatalf("audit events have no retention window and must not be swept: %+v", result.Removed)
	}
	if result.Removed["idempotency_keys"] != 0 || result.Removed["read_notifications"] != 0 {
		t.Fatalf("fresh database should have nothing to purge: %+v", result.Removed)
	}

	var events []struct {
		Action  string `json:"action"`
		ActorID string `json:"actorId"`
	}
	decode(t, env.doStatus(t, http.MethodGet, "/api/v1/audit/events?action=maintenance.retention", admin, nil, http.StatusOK), &events)
	if len(events) != 1 || events[0].ActorID != "e-ceo" {
		t.Fatalf("expected one audit event for the sweep by e-ceo, got %+v", events)
	}
}
