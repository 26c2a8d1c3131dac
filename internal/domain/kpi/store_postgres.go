package kpi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/platform/querier"
)

type PostgresStore struct {
	pgQueries
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: pgQueries{db: pool}, pool: pool}
}

type pgQueries struct {
	db   querier.Querier
	lock bool
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin kpi tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			zap.L().Warn("kpi tx rollback failed", zap.Error(rbErr))
		}
	}()
	if err := fn(pgQueries{db: tx, lock: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (q pgQueries) forUpdate() string {
	if q.lock {
		return " FOR UPDATE"
	}
	return ""
}

func scanPGSet(row pgx.Row) (KPISet, error) {
	var set KPISet
	var status string
	var items []byte
	err := row.Scan(&set.ID, &set.EmployeeID, &set.Quarter, &status, &items, &set.TotalWeight, &set.RejectionReason,
		&set.SubmittedAt, &set.DecidedBy, &set.DecisionDate, &set.DecisionComments, &set.Version, &set.CreatedAt, &set.UpdatedAt)
	if err != nil {
		return KPISet{}, err
	}
	set.Status = Status(status)
	if set.Items, err = decodeItems(items); err != nil {
		return KPISet{}, err
	}
	return set, nil
}

func (q pgQueries) Get(ctx context.Context, id string) (KPISet, error) {
	set, err := scanPGSet(q.db.QueryRow(ctx, "SELECT "+setColumns+" FROM kpi_sets WHERE id = $1"+q.forUpdate(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return KPISet{}, apperr.NotFound("kpi_set", id)
	}
	if err != nil {
		return KPISet{}, fmt.Errorf("get kpi set: %w", err)
	}
	return set, nil
}

func (q pgQueries) ByQuarter(ctx context.Context, employeeID, quarter string) (KPISet, error) {
	set, err := scanPGSet(q.db.QueryRow(ctx, "SELECT "+setColumns+" FROM kpi_sets WHERE employee_id = $1 AND quarter = $2"+q.forUpdate(), employeeID, quarter))
	if errors.Is(err, pgx.ErrNoRows) {
		return KPISet{}, apperr.NotFound("kpi_set", employeeID+"/"+quarter)
	}
	if err != nil {
		return KPISet{}, fmt.Errorf("get kpi set by quarter: %w", err)
	}
	return set, nil
}

func (q pgQueries) Insert(ctx context.Context, set *KPISet) error {
	set.Version = 1
	items, err := encodeItems(set.Items)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
    INSERT INTO kpi_sets (`+setColumns+`)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
  `, set.ID, set.EmployeeID, set.Quarter, string(set.Status), items, set.TotalWeight, set.RejectionReason,
		set.SubmittedAt, set.DecidedBy, set.DecisionDate, set.DecisionComments, set.Version, set.CreatedAt, set.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert kpi set: %w", err)
	}
	return nil
}

func (q pgQueries) Update(ctx context.Context, set *KPISet, expectedVersion int) error {
	items, err := encodeItems(set.Items)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, `
    UPDATE kpi_sets
    SET status = $2, items = $3, total_weight = $4, rejection_reason = $5, submitted_at = $6,
        decided_by = $7, decision_date = $8, decision_comments = $9, version = version + 1, updated_at = $10
    WHERE id = $1 AND version = $11
  `, set.ID, string(set.Status), items, set.TotalWeight, set.RejectionReason, set.SubmittedAt,
		set.DecidedBy, set.DecisionDate, set.DecisionComments, set.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update kpi set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kpi set %s: %w", set.ID, apperr.ErrConcurrentModification)
	}
	set.Version = expectedVersion + 1
	return nil
}

func (q pgQueries) Delete(ctx context.Context, id string, expectedVersion int) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM kpi_sets WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete kpi set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kpi set %s: %w", id, apperr.ErrConcurrentModification)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter, scope Scope) (Page, error) {
	where, args := whereClause(filter, scope, func(n int) string { return fmt.Sprintf("$%d", n) })
	page := Page{Limit: filter.Limit, Offset: filter.Offset}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(1) FROM kpi_sets"+where, args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count kpi sets: %w", err)
	}

	query := "SELECT " + setColumns + " FROM kpi_sets" + where +
		fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list kpi sets: %w", err)
	}
	defer rows.Close()

	page.Items = []KPISet{}
	for rows.Next() {
		set, err := scanPGSet(rows)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, set)
	}
	return page, rows.Err()
}

func (s *PostgresStore) InsertLink(ctx context.Context, link Link) error {
	contributions, err := encodeContributions(link.Contributions)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `
    INSERT INTO kpi_links (id, kpi_set_id, target_type, target_id, title, contributions, created_by, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, link.ID, link.KPISetID, string(link.TargetType), link.TargetID, link.Title, contributions, link.CreatedBy, link.CreatedAt); err != nil {
		return fmt.Errorf("insert kpi link: %w", err)
	}
	return nil
}

func (s *PostgresStore) Links(ctx context.Context, kpiSetID string) ([]Link, error) {
	rows, err := s.pool.Query(ctx, `
    SELECT id, target_type, target_id, title, contributions, created_by, created_at
    FROM kpi_links
    WHERE kpi_set_id = $1
    ORDER BY created_at, id
  `, kpiSetID)
	if err != nil {
		return nil, fmt.Errorf("list kpi links: %w", err)
	}
	defer rows.Close()

	out := []Link{}
	for rows.Next() {
		link := Link{KPISetID: kpiSetID}
		var targetType string
		var contributions []byte
		var createdAt time.Time
		if err := rows.Scan(&link.ID, &targetType, &link.TargetID, &link.Title, &contributions, &link.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		link.TargetType = TargetType(targetType)
		link.CreatedAt = createdAt
		if link.Contributions, err = decodeContributions(contributions); err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}
