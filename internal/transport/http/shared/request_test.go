package shared

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hrflow/internal/domain/auth"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:4000", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": " 198.51.100.3 "}, remote: "10.0.0.2:4000", want: "198.51.100.3"},
		{name: "peer address", remote: "192.0.2.10:51234", want: "192.0.2.10"},
		{name: "peer without port", remote: "192.0.2.11", want: "192.0.2.11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

type recordedAudit struct {
	actor, action, entityType, entityID, requestID, ip string
}

type auditSpy struct {
	calls []recordedAudit
	err   error
}

func (s *auditSpy) Record(_ context.Context, actorID, action, entityType, entityID, requestID, ip string, _, _ any) error {
	s.calls = append(s.calls, recordedAudit{actorID, action, entityType, entityID, requestID, ip})
	return s.err
}

func TestAuditRecordsActorAndClient(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/leave/l-1/hr", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	spy := &auditSpy{}
	user := auth.UserContext{UserID: "e-hr", Role: auth.RoleHR}

	Audit(req, spy, user, "req-9", "leave.hr_decision", "leave_request", "l-1", nil, map[string]any{"status": "approved"})
	if len(spy.calls) != 1 {
		t.Fatalf("expected one audit call, got %d", len(spy.calls))
	}
	want := recordedAudit{"e-hr", "leave.hr_decision", "leave_request", "l-1", "req-9", "203.0.113.9"}
	if spy.calls[0] != want {
		t.Fatalf("unexpected audit call %+v", spy.calls[0])
	}

	spy.err = errors.New("audit store down")
	Audit(req, spy, user, "req-10", "leave.cancel", "leave_request", "l-1", nil, nil)
	Audit(req, nil, user, "req-11", "leave.cancel", "leave_request", "l-1", nil, nil)
	if len(spy.calls) != 2 {
		t.Fatalf("expected failures to be swallowed, got %d calls", len(spy.calls))
	}
}

func TestParsePaginationAndQueryList(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/leave?limit=500&offset=20&status=pending_hr,approved&status=+rejected+", nil)
	page := ParsePagination(req, 20, 100)
	if page.Limit != 100 || page.Offset != 20 {
		t.Fatalf("unexpected page %+v", page)
	}
	if got := strings.Join(QueryList(req, "status"), "|"); got != "pending_hr|approved|rejected" {
		t.Fatalf("unexpected statuses %q", got)
	}

	page = ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=-1&offset=x", nil), 0, 100)
	if page.Limit != 0 || page.Offset != 0 {
		t.Fatalf("invalid values should fall back to defaults, got %+v", page)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Reason string `json:"reason"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"ok"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.Reason != "ok" {
		t.Fatalf("decode failed: %v %+v", err, dst)
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(req, &dst); err != nil {
		t.Fatalf("empty body should decode: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"ok","extra":1}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected unknown field error")
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"a"}{"reason":"b"}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected trailing object error")
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2025-03-10T18:30:00Z")
	if err != nil || got.Format("2006-01-02") != "2025-03-10" || got.Hour() != 0 {
		t.Fatalf("unexpected %v %v", got, err)
	}
	got, err = ParseDate(" 2025-03-11 ")
	if err != nil || got.Day() != 11 {
		t.Fatalf("unexpected %v %v", got, err)
	}
	if _, err := ParseDate("11/03/2025"); err == nil {
		t.Fatal("expected parse error")
	}
}
