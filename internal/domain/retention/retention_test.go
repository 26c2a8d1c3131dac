package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrflow/internal/platform/db"
)

func TestSQLiteSweepRemovesExpiredRows(t *testing.T) {
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	require.NoError(t, db.MigrateSQLite(ctx, conn))

	seed := []string{
		`INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, response_json, created_at) VALUES ('e-1', 'old', 'POST /api/v1/leave', 'h', '{}', '2026-10-01 08:00:00')`,
		`INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, response_json, created_at) VALUES ('e-1', 'new', 'POST /api/v1/leave', 'h', '{}', '2026-10-14 09:00:00')`,
		`INSERT INTO notifications (id, user_id, type, title, body, read_at, created_at) VALUES ('n-1', 'e-1', 'leave_approved', 't', 'b', '2026-08-01 10:00:00', '2026-08-01 09:00:00')`,
		`INSERT INTO notifications (id, user_id, type, title, body, created_at) VALUES ('n-2', 'e-1', 'leave_approved', 't', 'b', '2026-08-01 09:00:00')`,
		`INSERT INTO notifications (id, user_id, type, title, body, read_at, created_at) VALUES ('n-3', 'e-1', 'leave_approved', 't', 'b', '2026-10-13 10:00:00', '2026-10-13 09:00:00')`,
		`INSERT INTO audit_events (id, actor_id, action, entity_type, entity_id, created_at) VALUES ('a-1', 'e-1', 'leave.submit', 'leave_request', 'l-1', '2020-01-01 00:00:00')`,
	}
	for _, stmt := range seed {
		_, err := conn.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	sweeper := NewSweeper(NewSQLitePurger(conn), Policy{
		IdempotencyKeys:   24 * time.Hour,
		ReadNotifications: 30 * 24 * time.Hour,
	})
	sweeper.Now = func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }

	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Category]int64{CategoryIdempotency: 1, CategoryNotifications: 1}, removed)

	var keys, notes, events int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM idempotency_keys").Scan(&keys))
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications").Scan(&notes))
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&events))
	assert.Equal(t, 1, keys)
	assert.Equal(t, 2, notes, "unread and recently read notifications stay")
	assert.Equal(t, 1, events, "audit events are kept without an audit window")
}

type failingPurger struct{ calls int }

func (f *failingPurger) Purge(context.Context, Category, time.Time) (int64, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestSweepStopsOnFirstFailure(t *testing.T) {
	purger := &failingPurger{}
	sweeper := NewSweeper(purger, Policy{IdempotencyKeys: time.Hour, AuditEvents: time.Hour})

	_, err := sweeper.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(CategoryIdempotency))
	assert.Equal(t, 1, purger.calls)
}

func TestUnknownCategoryIsRejected(t *testing.T) {
	_, err := statement(Category("payslips"), "?")
	assert.Error(t, err)
}
