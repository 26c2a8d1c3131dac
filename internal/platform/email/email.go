package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"hrflow/internal/domain/notifications"
	"hrflow/internal/platform/config"
)

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, from, to, subject, body string) error {
	zap.L().Debug("email disabled, message dropped", zap.String("to", to), zap.String("subject", subject))
	return nil
}

type smtpSettings struct {
	host     string
	port     int
	user     string
	password string
	useTLS   bool
}

type smtpMailer struct {
	smtp smtpSettings
	now  func() time.Time
}

// New returns an SMTP mailer, or a mailer that drops messages when email is
// disabled or no host is configured.
func New(cfg config.Config) notifications.Mailer {
	if !cfg.EmailEnabled || cfg.SMTPHost == "" {
		return noopMailer{}
	}
	return &smtpMailer{
		smtp: smtpSettings{
			host:     cfg.SMTPHost,
			port:     cfg.SMTPPort,
			user:     cfg.SMTPUser,
			password: cfg.SMTPPassword,
			useTLS:   cfg.SMTPUseTLS,
		},
		now: time.Now,
	}
}

func (s *smtpMailer) Send(ctx context.Context, from, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	addr := net.JoinHostPort(s.smtp.host, fmt.Sprint(s.smtp.port))
	msg := buildMessage(from, to, subject, body, s.now())

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.smtp.host)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.smtp.useTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.smtp.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.smtp.user != "" {
		if err := client.Auth(smtp.PlainAuth("", s.smtp.user, s.smtp.password, s.smtp.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// buildMessage renders a plain text message. Header values are stripped of
// line breaks so a subject cannot inject headers.
func buildMessage(from, to, subject, body string, date time.Time) []byte {
	clean := strings.NewReplacer("\r", " ", "\n", " ")
	headers := []string{
		"From: " + clean.Replace(from),
		"To: " + clean.Replace(to),
		"Subject: " + clean.Replace(subject),
		"Date: " + date.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n" + body)
}
