package leave

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

// SQLiteStore keeps requests in SQLite. Open the database with
// _txlock=immediate so each transaction holds the write lock from its start.
type SQLiteStore struct {
	sqliteQueries
	sqlDB *sql.DB
}

func NewSQLiteStore(db *sql.DB, cipher Cipher) *SQLiteStore {
	return &SQLiteStore{sqliteQueries: sqliteQueries{db: db, cipher: cipher}, sqlDB: db}
}

type sqliteQueries struct {
	db     querier.SQL
	cipher Cipher
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin leave tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			zap.L().Warn("leave tx rollback failed", zap.Error(rbErr))
		}
	}()
	if err := fn(sqliteQueries{db: tx, cipher: s.cipher}); err != nil {
		return err
	}
	return tx.Commit()
}

func (q sqliteQueries) Get(ctx context.Context, id string) (LeaveRequest, error) {
	var doc, medical []byte
	var version int
	err := q.db.QueryRowContext(ctx, `
    SELECT doc, medical_info, version
    FROM leave_requests
    WHERE id = ?`, id).Scan(&doc, &medical, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return LeaveRequest{}, apperr.NotFound("leave_request", id)
	}
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("get leave request: %w", err)
	}
	return decodeRecord(doc, medical, version, q.cipher)
}

func (q sqliteQueries) Insert(ctx context.Context, req *LeaveRequest) error {
	req.Version = 1
	doc, medical, err := encodeRecord(*req, q.cipher)
	if err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `
    INSERT INTO leave_requests (id, employee_id, department, category, urgency, status, pending_role, supervisor_id, start_date, end_date, doc, medical_info, version, created_at, updated_at)
    VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
  `, req.ID, req.EmployeeID, req.Department, string(req.Category), string(req.Urgency), string(req.Status),
		string(req.PendingRole()), req.SupervisorID(), formatDate(req.StartDate), formatDate(req.EndDate),
		string(doc), medical, req.Version, req.CreatedAt.UTC(), req.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("insert leave request: %w", err)
	}
	return nil
}

func (q sqliteQueries) Update(ctx context.Context, req *LeaveRequest, expectedVersion int) error {
	req.Version = expectedVersion + 1
	doc, medical, err := encodeRecord(*req, q.cipher)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
    UPDATE leave_requests
    SET department = ?, category = ?, urgency = ?, status = ?, pending_role = ?, supervisor_id = ?,
        start_date = ?, end_date = ?, doc = ?, medical_info = ?, version = version + 1, updated_at = ?
    WHERE id = ? AND version = ?
  `, req.Department, string(req.Category), string(req.Urgency), string(req.Status),
		string(req.PendingRole()), req.SupervisorID(), formatDate(req.StartDate), formatDate(req.EndDate),
		string(doc), medical, req.UpdatedAt.UTC(), req.ID, expectedVersion)
	if err != nil {
		req.Version = expectedVersion
		return fmt.Errorf("update leave request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		req.Version = expectedVersion
		return fmt.Errorf("update leave request: %w", err)
	}
	if affected == 0 {
		req.Version = expectedVersion
		return fmt.Errorf("leave request %s: %w", req.ID, apperr.ErrConcurrentModification)
	}
	return nil
}

func (q sqliteQueries) Balance(ctx context.Context, employeeID string, category Category) (Balance, error) {
	b := Balance{EmployeeID: employeeID, Category: category}
	var remaining, used string
	err := q.db.QueryRowContext(ctx, `
    SELECT remaining_days, used_days, updated_at
    FROM leave_balances
    WHERE employee_id = ? AND category = ?`, employeeID, string(category)).Scan(&remaining, &used, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return Balance{}, fmt.Errorf("get leave balance: %w", err)
	}
	return fillBalance(b, remaining, used)
}

func (q sqliteQueries) SaveBalance(ctx context.Context, b Balance) error {
	if _, err := q.db.ExecContext(ctx, `
    INSERT INTO leave_balances (employee_id, category, remaining_days, used_days, updated_at)
    VALUES (?,?,?,?,?)
    ON CONFLICT (employee_id, category) DO UPDATE
    SET remaining_days = excluded.remaining_days, used_days = excluded.used_days, updated_at = excluded.updated_at
  `, b.EmployeeID, string(b.Category), b.RemainingDays.String(), b.UsedDays.String(), b.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("save leave balance: %w", err)
	}
	return nil
}

func (q sqliteQueries) RecordAdjustment(ctx context.Context, adj BalanceAdjustment) error {
	if _, err := q.db.ExecContext(ctx, `
    INSERT INTO leave_balance_adjustments (id, employee_id, category, amount, reason, request_id, created_by, created_at)
    VALUES (?,?,?,?,?,?,?,?)
  `, adj.ID, adj.EmployeeID, string(adj.Category), adj.Amount.String(), adj.Reason, adj.RequestID, adj.CreatedBy, adj.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("record balance adjustment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter, scope Scope) (Page, error) {
	where, args := whereClause(filter, scope, func(int) string { return "?" }, func(t time.Time) any { return formatDate(t) })
	page := Page{Limit: filter.Limit, Offset: filter.Offset}

	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(1) FROM leave_requests"+where, args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count leave requests: %w", err)
	}

	query := "SELECT doc, medical_info, version FROM leave_requests" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)
	items, err := s.scanRequests(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	page.Items = items
	return page, nil
}

func (s *SQLiteStore) ListPending(ctx context.Context) ([]LeaveRequest, error) {
	return s.scanRequests(ctx, `
    SELECT doc, medical_info, version
    FROM leave_requests
    WHERE status IN (?,?,?)
    ORDER BY created_at
  `, pendingStatusArgs()...)
}

func (s *SQLiteStore) scanRequests(ctx context.Context, query string, args ...any) ([]LeaveRequest, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	defer rows.Close()

	out := []LeaveRequest{}
	for rows.Next() {
		var doc, medical []byte
		var version int
		if err := rows.Scan(&doc, &medical, &version); err != nil {
			return nil, err
		}
		req, err := decodeRecord(doc, medical, version, s.cipher)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Balances(ctx context.Context, employeeID string) ([]Balance, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
    SELECT category, remaining_days, used_days, updated_at
    FROM leave_balances
    WHERE employee_id = ?
    ORDER BY category
  `, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list leave balances: %w", err)
	}
	defer rows.Close()

	out := []Balance{}
	for rows.Next() {
		b := Balance{EmployeeID: employeeID}
		var category, remaining, used string
		if err := rows.Scan(&category, &remaining, &used, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Category = Category(category)
		b, err = fillBalance(b, remaining, used)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Adjustments(ctx context.Context, employeeID string) ([]BalanceAdjustment, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
    SELECT id, category, amount, reason, request_id, created_by, created_at
    FROM leave_balance_adjustments
    WHERE employee_id = ?
    ORDER BY created_at DESC
  `, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list balance adjustments: %w", err)
	}
	defer rows.Close()

	out := []BalanceAdjustment{}
	for rows.Next() {
		adj := BalanceAdjustment{EmployeeID: employeeID}
		var category, amount string
		if err := rows.Scan(&adj.ID, &category, &amount, &adj.Reason, &adj.RequestID, &adj.CreatedBy, &adj.CreatedAt); err != nil {
			return nil, err
		}
		adj.Category = Category(category)
		if adj.Amount, err = parseDays(amount); err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SeedBalance(ctx context.Context, b Balance) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
    INSERT INTO leave_balances (employee_id, category, remaining_days, used_days, updated_at)
    VALUES (?,?,?,?,?)
    ON CONFLICT (employee_id, category) DO NOTHING
  `, b.EmployeeID, string(b.Category), b.RemainingDays.String(), b.UsedDays.String(), b.UpdatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("seed leave balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
