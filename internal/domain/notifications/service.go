package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Addresses resolves a user id to an email address.
type Addresses interface {
	EmailOf(userID string) (string, bool)
}

type Service struct {
	store        StoreAPI
	Mailer       Mailer
	Addresses    Addresses
	EmailEnabled bool
	DefaultFrom  string
	Now          func() time.Time
}

func New(store StoreAPI, mailer Mailer) *Service {
	return &Service{store: store, Mailer: mailer, DefaultFrom: "no-reply@example.com", Now: time.Now}
}

// Create stores a notification and, when email is on, mails it. Email
// failures are logged and never fail the call.
func (s *Service) Create(ctx context.Context, userID, ntype, title, body string) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	n := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      ntype,
		Title:     title,
		Body:      body,
		CreatedAt: now().UTC(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return err
	}

	if s.Mailer == nil || !s.EmailEnabled || s.Addresses == nil {
		return nil
	}
	email, ok := s.Addresses.EmailOf(userID)
	if !ok || email == "" {
		zap.L().Debug("notification email skipped, no address", zap.String("user", userID))
		return nil
	}
	if err := s.Mailer.Send(ctx, s.DefaultFrom, email, title, body); err != nil {
		zap.L().Warn("notification email send failed", zap.String("user", userID), zap.Error(err))
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListNotifications(ctx, userID, limit, offset)
}

func (s *Service) Count(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	return s.store.CountNotifications(ctx, userID, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.store.MarkRead(ctx, userID, notificationID, now().UTC())
}
