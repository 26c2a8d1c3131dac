// Package retention purges bookkeeping rows that have outlived their use:
// idempotency keys, read notifications and, when configured, old audit events.
// A sweep runs only when an operator asks for one.
package retention

import (
	"context"
	"fmt"
	"time"
)

type Category string

const (
	CategoryIdempotency   Category = "idempotency_keys"
	CategoryNotifications Category = "read_notifications"
	CategoryAudit         Category = "audit_events"
)

// Policy holds the age after which each category is purged. A zero duration keeps
// the category forever.
type Policy struct {
	IdempotencyKeys   time.Duration
	ReadNotifications time.Duration
	AuditEvents       time.Duration
}

func (p Policy) windows() []struct {
	category Category
	age      time.Duration
} {
	return []struct {
		category Category
		age      time.Duration
	}{
		{CategoryIdempotency, p.IdempotencyKeys},
		{CategoryNotifications, p.ReadNotifications},
		{CategoryAudit, p.AuditEvents},
	}
}

// Purger deletes the rows of one category older than cutoff.
type Purger interface {
	Purge(ctx context.Context, category Category, cutoff time.Time) (int64, error)
}

type Sweeper struct {
	Purger Purger
	Policy Policy
	Now    func() time.Time
}

func NewSweeper(purger Purger, policy Policy) *Sweeper {
	return &Sweeper{Purger: purger, Policy: policy, Now: time.Now}
}

// Sweep applies the policy once and reports how many rows each category lost.
func (s *Sweeper) Sweep(ctx context.Context) (map[Category]int64, error) {
	now := s.Now().UTC()
	removed := make(map[Category]int64)
	for _, w := range s.Policy.windows() {
		if w.age <= 0 {
			continue
		}
		n, err := s.Purger.Purge(ctx, w.category, now.Add(-w.age))
		if err != nil {
			return removed, fmt.Errorf("purge %s: %w", w.category, err)
		}
		removed[w.category] = n
	}
	return removed, nil
}
