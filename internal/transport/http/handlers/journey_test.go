package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hrflow/internal/app/server"
	"hrflow/internal/platform/config"
)

const testPassword = "Secret123"

const orgFixture = `
headOfBusinessId: e-ceo
departments:
  - name: Engineering
    headId: e-eng
    hrPartnerId: e-hr
employees:
  - {id: e-ceo, name: Morgan Blake, email: ceo@hrflow.test, department: Executive, role: admin, password: Secret123}
  - {id: e-eng, name: Priya Nair, email: priya@hrflow.test, department: Engineering, role: supervisor, password: Secret123}
  - {id: e-hr, name: Harper Quinn, email: hr@hrflow.test, department: People, role: hr, password: Secret123}
  - {id: e-pm, name: Jo Rivera, email: pm@hrflow.test, department: Engineering, role: project_manager, supervisorId: e-eng, password: Secret123}
  - {id: e-lead, name: Leo Park, email: leo@hrflow.test, department: Engineering, role: supervisor, supervisorId: e-eng, password: Secret123}
  - id: e-1
    name: Ava Patel
    email: ava@hrflow.test
    department: Engineering
    supervisorId: e-lead
    password: Secret123
    balances: {vacation: 20, medical: 10, personal: 5}
  - id: e-2
    name: Ben Cho
    email: ben@hrflow.test
    department: Engineering
    supervisorId: e-lead
    password: Secret123
    balances: {vacation: 12}
`

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

type leaveView struct {
	ID            string          `json:"id"`
	EmployeeID    string          `json:"employeeId"`
	Status        string          `json:"status"`
	TotalDays     decimal.Decimal `json:"totalDays"`
	ActiveLevel   int             `json:"activeLevel"`
	Version       int             `json:"version"`
	ApprovalChain []struct {
		Level        int    `json:"level"`
		ApproverRole string `json:"approverRole"`
		ApproverID   string `json:"approverId"`
		Status       string `json:"status"`
	} `json:"approvalChain"`
	Evidence struct {
		Kind string `json:"kind"`
	} `json:"evidence"`
	Attachments []struct {
		ID          string `json:"id"`
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
	} `json:"attachments"`
	Decisions []struct {
		Action  string `json:"action"`
		ActorID string `json:"actorId"`
	} `json:"decisions"`
}

type kpiView struct {
	ID               string `json:"id"`
	Quarter          string `json:"quarter"`
	Status           string `json:"approvalStatus"`
	TotalWeight      int    `json:"totalWeight"`
	DecidedBy        string `json:"decidedBy"`
	DecisionComments string `json:"decisionComments"`
	Version          int    `json:"version"`
}

type balanceView struct {
	Category      string          `json:"category"`
	RemainingDays decimal.Decimal `json:"remainingDays"`
	UsedDays      decimal.Decimal `json:"usedDays"`
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	orgPath := filepath.Join(dir, "org.yaml")
	if err := os.WriteFile(orgPath, []byte(orgFixture), 0o600); err != nil {
		t.Fatalf("write org file: %v", err)
	}
	return config.Config{
		Environment:        "test",
		DatabaseDriver:     config.DriverSQLite,
		SQLitePath:         ":memory:",
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		DataEncryptionKey:  "0123456789abcdef0123456789abcdef",
		OrgFile:            orgPath,
		StuckThreshold:     48 * time.Hour,
		UploadsDir:         filepath.Join(dir, "uploads"),
		EmailFrom:          "no-reply@hrflow.test",
		RunMigrations:      true,
		RunSeed:            true,
		MaxBodyBytes:       1 << 20,
		MaxUploadBytes:     16 << 20,
		RateLimitPerMinute: 1000,
		MetricsEnabled:     true,
		ShutdownTimeout:    time.Second,
	}
}

type testEnv struct {
	app    *server.App
	url    string
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, testConfig(t))
}

func newTestEnvWith(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(app.Close)

	ts := httptest.NewServer(app.Router)
	t.Cleanup(ts.Close)
	return &testEnv{app: app, url: ts.URL, client: ts.Client()}
}

func TestKPIApprovalJourney(t *testing.T) {
	env := newTestEnv(t)
	employee := env.login(t, "ava@hrflow.test")
	lead := env.login(t, "leo@hrflow.test")
	pm := env.login(t, "pm@hrflow.test")

	created := env.doStatus(t, http.MethodPost, "/api/v1/kpis", employee, map[string]any{
		"quarter": "q3-2031",
		"kpis":    kpiItems(40, 30, 20, 10),
	}, http.StatusCreated)
	var set kpiView
	decode(t, created, &set)
	if set.Status != "draft" || set.Quarter != "Q3-2031" || set.TotalWeight != 100 {
		t.Fatalf("unexpected created set %+v", set)
	}

	updated := env.doStatus(t, http.MethodPost, "/api/v1/kpis", employee, map[string]any{
		"quarter": "Q3-2031",
		"kpis":    kpiItems(25, 25, 25, 25),
	}, http.StatusOK)
	decode(t, updated, &set)
	if set.Version != 2 {
		t.Fatalf("expected the draft to be updated in place, got %+v", set)
	}

	decode(t, env.doStatus(t, http.MethodPost, "/api/v1/kpis/"+set.ID+"/submit", employee, nil, http.StatusOK), &set)
	if set.Status != "pending" {
		t.Fatalf("expected pending, got %s", set.Status)
	}

	env.doStatus(t, http.MethodPost, "/api/v1/kpis/"+set.ID+"/approve", employee, map[string]any{"decision": "approve"}, http.StatusForbidden)

	decode(t, env.doStatus(t, http.MethodPost, "/api/v1/kpis/"+set.ID+"/approve", lead, map[string]any{
		"decision": "approve",
		"comments": "Agreed in 1:1",
	}, http.StatusOK), &set)
	if set.Status != "approved" || set.DecidedBy != "e-lead" || set.DecisionComments != "Agreed in 1:1" {
		t.Fatalf("unexpected approved set %+v", set)
	}

	env.doStatus(t, http.MethodPost, "/api/v1/kpis/"+set.ID+"/approve", lead, map[string]any{"decision": "reject", "comments": "late"}, http.StatusConflict)

	var linkable kpiView
	decode(t, env.doStatus(t, http.MethodGet, "/api/v1/kpis/approved-for-linking?userId=e-1&quarter=Q3-2031", pm, nil, http.StatusOK), &linkable)
	if linkable.ID != set.ID {
		t.Fatalf("expected approved set %s for linking, got %+v", set.ID, linkable)
	}

	env.doStatus(t, http.MethodPost, "/api/v1/kpis/"+set.ID+"/links", pm, map[string]any{
		"targetType":    "milestone",
		"targetId":      "M-7",
		"title":         "Apollo rollout",
		"contributions": []map[string]any{{"kpiIndex": 0, "weight": 60}, {"kpiIndex": 1, "weight": 40}},
	}, http.StatusCreated)

	var links []map[string]any
	decode(t, env.doStatus(t, http.MethodGet, "/api/v1/kpis/"+set.ID+"/links", employee, nil, http.StatusOK), &links)
	if len(links) != 1 {
		t.Fatalf("expected one link, got %v", links)
	}

	var page struct {
		Items []kpiView `json:"items"`
		Total int       `json:"total"`
	}
	decode(t, env.doStatus(t, http.MethodGet, "/api/v1/kpis?status=approved", lead, nil, http.StatusOK), &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected the supervisor to see one approved set, got %+v", page)
	}
}

func TestLeaveTwoStageJourney(t *testing.T) {
	env := newTestEnv(t)
	employee := env.login(t, "ava@hrflow.test")
	lead := env.login(t, "leo@hrflow.test")
	hr := env.login(t, "hr@hrflow.test")

	req := env.submitLeave(t, employee, map[string]any{
		"leaveType": "annual_leave",
		"startDate": "2031-03-10",
		"endDate":   "2031-03-12",
		"urgency":   "medium",
		"reason":    "family trip",
	})
	if req.Status != "pending_supervisor" || req.ActiveLevel != 1 || !req.TotalDays.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected submitted request %+v", req)
	}
	if len(req.ApprovalChain) != 2 || req.ApprovalChain[0].ApproverID != "e-lead" || req.ApprovalChain[1].ApproverRole != "hr" {
		t.Fatalf("unexpected approval chain %+v", req.ApprovalChain)
	}

	env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/hr", hr, map[string]any{"decision": "approve"}, http.StatusConflict)

	decode(t, env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/supervisor", lead, map[string]any{
		"decision": "approve",
		"comments": "enjoy",
	}, http.StatusOK), &req)
	if req.Status != "pending_hr" || req.ActiveLevel != 2 {
		t.Fatalf("expected pending_hr at level 2, got %+v", req)
	}
	if remaining := env.remaining(t, employee, "e-1", "vacation"); !remaining.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("balance must not move before final approval, got %s", remaining)
	}

	decode(t, env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/hr", hr, map[string]any{
		"decision":    "approve",
		"reviewNotes": "ok",
	}, http.StatusOK), &req)
	if req.Status != "approved" || req.ActiveLevel != 0 {
		t.Fatalf("expected approved, got %+v", req)
	}
	if remaining := env.remaining(t, employee, "e-1", "vacation"); !remaining.Equal(decimal.NewFromInt(17)) {
		t.Fatalf("expected 17 remaining vacation days, got %s", remaining)
	}

	actions := make([]string, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		actions = append(actions, d.Action)
	}
	if len(actions) != 3 || actions[0] != "submit" || actions[2] != "approve" {
		t.Fatalf("unexpected decision log %v", actions)
	}

	env.doStatus(t, http.MethodPost, "/api/v1/leave/"+req.ID+"/cancel", employee, map[string]any{"reason": "trip moved"}, http.StatusForbidden)
	decode(t, env.doStatus(t, http.MethodPost, "/api/v1/leave/"+req.ID+"/cancel", hr, map[string]any{"reason": "project deadline moved"}, http.StatusOK), &req)
	if req.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", req.Status)
	}
	if remaining := env.remaining(t, employee, "e-1", "vacation"); !remaining.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("cancelling approved leave should refund, got %s", remaining)
	}
}

func TestExtendedLeaveReachesAdmin(t *testing.T) {
	env := newTestEnv(t)
	employee := env.login(t, "ava@hrflow.test")
	lead := env.login(t, "leo@hrflow.test")
	hr := env.login(t, "hr@hrflow.test")
	admin := env.login(t, "ceo@hrflow.test")

	req := env.submitLeave(t, employee, map[string]any{
		"leaveType": "unpaid_leave",
		"startDate": "2031-06-02",
		"endDate":   "2031-06-06",
		"urgency":   "low",
		"reason":    "moving house",
	})
	if len(req.ApprovalChain) != 3 || req.ApprovalChain[2].ApproverRole != "admin" {
		t.Fatalf("expected an admin step, got %+v", req.ApprovalChain)
	}

	decode(t, env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/supervisor", lead, map[string]any{"decision": "approve"}, http.StatusOK), &req)
	decode(t, env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/hr", hr, map[string]any{"decision": "approve"}, http.StatusOK), &req)
	if req.Status != "pending_admin" {
		t.Fatalf("expected pending_admin, got %s", req.Status)
	}
	decode(t, env.doStatus(t, http.MethodPut, "/api/v1/leave/"+req.ID+"/admin", admin, map[string]any{
		"decision": "reject",
		"comments": "peak season",
	}, http.StatusOK), &req)
	if req.Status != "rejected" {
		t.Fatalf("expected rejected, got %s", req.Status)
	}
}

func kpiItems(weights ...int) []map[string]any {
	out := make([]map[string]any, 0, len(weights))
	for i, w := range weights {
		out = append(out, map[string]any{
			"title":             "Objective " + string(rune('A'+i)),
			"description":       "Deliver the agreed outcome",
			"weight":            w,
			"targetValue":       "100%",
			"measurableOutcome": "Signed off by stakeholders",
		})
	}
	return out
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	resp := e.doStatus(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": testPassword,
	}, http.StatusOK)
	var payload struct {
		Token string `json:"token"`
	}
	decode(t, resp, &payload)
	if payload.Token == "" {
		t.Fatal("expected token")
	}
	return payload.Token
}

func (e *testEnv) submitLeave(t *testing.T, token string, body map[string]any) leaveView {
	t.Helper()
	var req leaveView
	decode(t, e.doStatus(t, http.MethodPost, "/api/v1/leave", token, body, http.StatusCreated), &req)
	if req.ID == "" {
		t.Fatal("expected leave request id")
	}
	return req
}

func (e *testEnv) remaining(t *testing.T, token, employeeID, category string) decimal.Decimal {
	t.Helper()
	var balances []balanceView
	decode(t, e.doStatus(t, http.MethodGet, "/api/v1/leave/balances?employeeId="+employeeID, token, nil, http.StatusOK), &balances)
	for _, b := range balances {
		if b.Category == category {
			return b.RemainingDays
		}
	}
	t.Fatalf("no %s balance for %s in %+v", category, employeeID, balances)
	return decimal.Zero
}

func (e *testEnv) doStatus(t *testing.T, method, path, token string, body any, want int) envelope {
	t.Helper()
	resp, raw := e.do(t, method, path, token, body, nil)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, want, resp.StatusCode, string(raw))
	}
	return parseEnvelope(t, raw)
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.url+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp, raw
}

func decode(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data: %v: %s", err, string(env.Data))
	}
}

func parseEnvelope(t *testing.T, raw []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v: %s", err, string(raw))
	}
	return env
}

func envelopeErrorCode(env envelope) string {
	errMap, ok := env.Error.(map[string]any)
	if !ok {
		return ""
	}
	code, _ := errMap["code"].(string)
	return code
}
