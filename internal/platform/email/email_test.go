package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"hrflow/internal/platform/config"
)

func TestBuildMessageStripsHeaderInjection(t *testing.T) {
	msg := string(buildMessage("hr@example.com", "a@example.com", "Leave approved\r\nBcc: evil@example.com", "body", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))
	if strings.Contains(msg, "\r\nBcc:") {
		t.Fatalf("header injection survived: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody") {
		t.Fatalf("body not separated from headers: %q", msg)
	}
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	mailer := New(config.Config{EmailEnabled: false, SMTPHost: "smtp.example.com"})
	if err := mailer.Send(context.Background(), "a", "b", "c", "d"); err != nil {
		t.Fatalf("expected noop mailer, got %v", err)
	}
}
