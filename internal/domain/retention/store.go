package retention

import (
	"context"
	"fmt"
	"time"

	"hrflow/internal/platform/querier"
)

var statements = map[Category]string{
	CategoryIdempotency:   "DELETE FROM idempotency_keys WHERE created_at < %s",
	CategoryNotifications: "DELETE FROM notifications WHERE read_at IS NOT NULL AND read_at < %s",
	CategoryAudit:         "DELETE FROM audit_events WHERE created_at < %s",
}

func statement(category Category, placeholder string) (string, error) {
	stmt, ok := statements[category]
	if !ok {
		return "", fmt.Errorf("unknown retention category %q", category)
	}
	return fmt.Sprintf(stmt, placeholder), nil
}

type PostgresPurger struct {
	DB querier.Querier
}

func NewPostgresPurger(db querier.Querier) *PostgresPurger {
	return &PostgresPurger{DB: db}
}

func (p *PostgresPurger) Purge(ctx context.Context, category Category, cutoff time.Time) (int64, error) {
	stmt, err := statement(category, "$1")
	if err != nil {
		return 0, err
	}
	tag, err := p.DB.Exec(ctx, stmt, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// sqliteTimestamp matches CURRENT_TIMESTAMP so text comparison orders correctly.
const sqliteTimestamp = "2006-01-02 15:04:05"

type SQLitePurger struct {
	DB querier.SQL
}

func NewSQLitePurger(db querier.SQL) *SQLitePurger {
	return &SQLitePurger{DB: db}
}

func (p *SQLitePurger) Purge(ctx context.Context, category Category, cutoff time.Time) (int64, error) {
	stmt, err := statement(category, "?")
	if err != nil {
		return 0, err
	}
	res, err := p.DB.ExecContext(ctx, stmt, cutoff.UTC().Format(sqliteTimestamp))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
