package kpi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hrflow/internal/domain/apperr"
	"hrflow/internal/platform/querier"
)

type SQLiteStore struct {
	sqliteQueries
	sqlDB *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqliteQueries: sqliteQueries{db: db}, sqlDB: db}
}

type sqliteQueries struct {
	db querier.SQL
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kpi tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			zap.L().Warn("kpi tx rollback failed", zap.Error(rbErr))
		}
	}()
	if err := fn(sqliteQueries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSet(row rowScanner) (KPISet, error) {
	var set KPISet
	var status, items string
	var reason sql.NullString
	var submitted, decided sql.NullTime
	err := row.Scan(&set.ID, &set.EmployeeID, &set.Quarter, &status, &items, &set.TotalWeight, &reason,
		&submitted, &set.DecidedBy, &decided, &set.DecisionComments, &set.Version, &set.CreatedAt, &set.UpdatedAt)
	if err != nil {
		return KPISet{}, err
	}
	set.Status = Status(status)
	if reason.Valid {
		set.RejectionReason = &reason.String
	}
	if submitted.Valid {
		t := submitted.Time.UTC()
		set.SubmittedAt = &t
	}
	if decided.Valid {
		t := decided.Time.UTC()
		set.DecisionDate = &t
	}
	set.CreatedAt = set.CreatedAt.UTC()
	set.UpdatedAt = set.UpdatedAt.UTC()
	if set.Items, err = decodeItems([]byte(items)); err != nil {
		return KPISet{}, err
	}
	return set, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (q sqliteQueries) Get(ctx context.Context, id string) (KPISet, error) {
	set, err := scanSQLiteSet(q.db.QueryRowContext(ctx, "SELECT "+setColumns+" FROM kpi_sets WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return KPISet{}, apperr.NotFound("kpi_set", id)
	}
	if err != nil {
		return KPISet{}, fmt.Errorf("get kpi set: %w", err)
	}
	return set, nil
}

func (q sqliteQueries) ByQuarter(ctx context.Context, employeeID, quarter string) (KPISet, error) {
	set, err := scanSQLiteSet(q.db.QueryRowContext(ctx, "SELECT "+setColumns+" FROM kpi_sets WHERE employee_id = ? AND quarter = ?", employeeID, quarter))
	if errors.Is(err, sql.ErrNoRows) {
		return KPISet{}, apperr.NotFound("kpi_set", employeeID+"/"+quarter)
	}
	if err != nil {
		return KPISet{}, fmt.Errorf("get kpi set by quarter: %w", err)
	}
	return set, nil
}

func (q sqliteQueries) Insert(ctx context.Context, set *KPISet) error {
	set.Version = 1
	items, err := encodeItems(set.Items)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
    INSERT INTO kpi_sets (`+setColumns+`)
    VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
  `, set.ID, set.EmployeeID, set.Quarter, string(set.Status), string(items), set.TotalWeight, set.RejectionReason,
		nullTime(set.SubmittedAt), set.DecidedBy, nullTime(set.DecisionDate), set.DecisionComments, set.Version,
		set.CreatedAt.UTC(), set.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert kpi set: %w", err)
	}
	return nil
}

func (q sqliteQueries) Update(ctx context.Context, set *KPISet, expectedVersion int) error {
	items, err := encodeItems(set.Items)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
    UPDATE kpi_sets
    SET status = ?, items = ?, total_weight = ?, rejection_reason = ?, submitted_at = ?,
        decided_by = ?, decision_date = ?, decision_comments = ?, version = version + 1, updated_at = ?
    WHERE id = ? AND version = ?
  `, string(set.Status), string(items), set.TotalWeight, set.RejectionReason, nullTime(set.SubmittedAt),
		set.DecidedBy, nullTime(set.DecisionDate), set.DecisionComments, set.UpdatedAt.UTC(), set.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update kpi set: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kpi set: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("kpi set %s: %w", set.ID, apperr.ErrConcurrentModification)
	}
	set.Version = expectedVersion + 1
	return nil
}

func (q sqliteQueries) Delete(ctx context.Context, id string, expectedVersion int) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM kpi_sets WHERE id = ? AND version = ?`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete kpi set: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete kpi set: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("kpi set %s: %w", id, apperr.ErrConcurrentModification)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter, scope Scope) (Page, error) {
	where, args := whereClause(filter, scope, func(int) string { return "?" })
	page := Page{Limit: filter.Limit, Offset: filter.Offset}
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(1) FROM kpi_sets"+where, args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count kpi sets: %w", err)
	}

	query := "SELECT " + setColumns + " FROM kpi_sets" + where + " ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list kpi sets: %w", err)
	}
	defer rows.Close()

	page.Items = []KPISet{}
	for rows.Next() {
		set, err := scanSQLiteSet(rows)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, set)
	}
	return page, rows.Err()
}

func (s *SQLiteStore) InsertLink(ctx context.Context, link Link) error {
	contributions, err := encodeContributions(link.Contributions)
	if err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
    INSERT INTO kpi_links (id, kpi_set_id, target_type, target_id, title, contributions, created_by, created_at)
    VALUES (?,?,?,?,?,?,?,?)
  `, link.ID, link.KPISetID, string(link.TargetType), link.TargetID, link.Title, string(contributions), link.CreatedBy, link.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert kpi link: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Links(ctx context.Context, kpiSetID string) ([]Link, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
    SELECT id, target_type, target_id, title, contributions, created_by, created_at
    FROM kpi_links
    WHERE kpi_set_id = ?
    ORDER BY created_at, id
  `, kpiSetID)
	if err != nil {
		return nil, fmt.Errorf("list kpi links: %w", err)
	}
	defer rows.Close()

	out := []Link{}
	for rows.Next() {
		link := Link{KPISetID: kpiSetID}
		var targetType, contributions string
		if err := rows.Scan(&link.ID, &targetType, &link.TargetID, &link.Title, &contributions, &link.CreatedBy, &link.CreatedAt); err != nil {
			return nil, err
		}
		link.TargetType = TargetType(targetType)
		if link.Contributions, err = decodeContributions([]byte(contributions)); err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}
