package leave

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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

func NewPostgresStore(pool *pgxpool.Pool, cipher Cipher) *PostgresStore {
	return &PostgresStore{pgQueries: pgQueries{db: pool, cipher: cipher}, pool: pool}
}

type pgQueries struct {
	db     querier.Querier
	cipher Cipher
	lock   bool
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin leave tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			zap.L().Warn("leave tx rollback failed", zap.Error(rbErr))
		}
	}()
	if err := fn(pgQueries{db: tx, cipher: s.cipher, lock: true}); err != nil {
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

func (q pgQueries) Get(ctx context.Context, id string) (LeaveRequest, error) {
	var doc, medical []byte
	var version int
	err := q.db.QueryRow(ctx, `
    SELECT doc, medical_info, version
    FROM leave_requests
    WHERE id = $1`+q.forUpdate(), id).Scan(&doc, &medical, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeaveRequest{}, apperr.NotFound("leave_request", id)
	}
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("get leave request: %w", err)
	}
	return decodeRecord(doc, medical, version, q.cipher)
}

func (q pgQueries) Insert(ctx context.Context, req *LeaveRequest) error {
	req.Version = 1
	doc, medical, err := encodeRecord(*req, q.cipher)
	if err != nil {
		return err
	}
	if _, err := q.db.Exec(ctx, `
    INSERT INTO leave_requests (id, employee_id, department, category, urgency, status, pending_role, supervisor_id, start_date, end_date, doc, medical_info, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
  `, req.ID, req.EmployeeID, req.Department, string(req.Category), string(req.Urgency), string(req.Status),
		string(req.PendingRole()), req.SupervisorID(), DateOnly(req.StartDate), DateOnly(req.EndDate),
		doc, medical, req.Version, req.CreatedAt, req.UpdatedAt); err != nil {
		return fmt.Errorf("insert leave request: %w", err)
	}
	return nil
}

func (q pgQueries) Update(ctx context.Context, req *LeaveRequest, expectedVersion int) error {
	req.Version = expectedVersion + 1
	doc, medical, err := encodeRecord(*req, q.cipher)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, `
    UPDATE leave_requests
    SET department = $2, category = $3, urgency = $4, status = $5, pending_role = $6, supervisor_id = $7,
        start_date = $8, end_date = $9, doc = $10, medical_info = $11, version = version + 1, updated_at = $12
    WHERE id = $1 AND version = $13
  `, req.ID, req.Department, string(req.Category), string(req.Urgency), string(req.Status),
		string(req.PendingRole()), req.SupervisorID(), DateOnly(req.StartDate), DateOnly(req.EndDate),
		doc, medical, req.UpdatedAt, expectedVersion)
	if err != nil {
		req.Version = expectedVersion
		return fmt.Errorf("update leave request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		req.Version = expectedVersion
		return fmt.Errorf("leave request %s: %w", req.ID, apperr.ErrConcurrentModification)
	}
	return nil
}

func (q pgQueries) Balance(ctx context.Context, employeeID string, category Category) (Balance, error) {
	b := Balance{EmployeeID: employeeID, Category: category}
	var remaining, used string
	err := q.db.QueryRow(ctx, `
    SELECT remaining_days::text, used_days::text, updated_at
    FROM leave_balances
    WHERE employee_id = $1 AND category = $2`+q.forUpdate(), employeeID, string(category)).Scan(&remaining, &used, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return Balance{}, fmt.Errorf("get leave balance: %w", err)
	}
	return fillBalance(b, remaining, used)
}

func (q pgQueries) SaveBalance(ctx context.Context, b Balance) error {
	if _, err := q.db.Exec(ctx, `
    INSERT INTO leave_balances (employee_id, category, remaining_days, used_days, updated_at)
    VALUES ($1,$2,$3::numeric,$4::numeric,$5)
    ON CONFLICT (employee_id, category) DO UPDATE
    SET remaining_days = EXCLUDED.remaining_days, used_days = EXCLUDED.used_days, updated_at = EXCLUDED.updated_at
  `, b.EmployeeID, string(b.Category), b.RemainingDays.String(), b.UsedDays.String(), b.UpdatedAt); err != nil {
		return fmt.Errorf("save leave balance: %w", err)
	}
	return nil
}

func (q pgQueries) RecordAdjustment(ctx context.Context, adj BalanceAdjustment) error {
	if _, err := q.db.Exec(ctx, `
    INSERT INTO leave_balance_adjustments (id, employee_id, category, amount, reason, request_id, created_by, created_at)
    VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8)
  `, adj.ID, adj.EmployeeID, string(adj.Category), adj.Amount.String(), adj.Reason, adj.RequestID, adj.CreatedBy, adj.CreatedAt); err != nil {
		return fmt.Errorf("record balance adjustment: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter, scope Scope) (Page, error) {
	where, args := whereClause(filter, scope, pgPlaceholder, func(t time.Time) any { return t })
	page := Page{Limit: filter.Limit, Offset: filter.Offset}

	if err := s.pool.QueryRow(ctx, "SELECT COUNT(1) FROM leave_requests"+where, args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count leave requests: %w", err)
	}

	limitPos := len(args) + 1
	offsetPos := len(args) + 2
	query := "SELECT doc, medical_info, version FROM leave_requests" + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", limitPos, offsetPos)
	args = append(args, filter.Limit, filter.Offset)

	items, err := s.scanRequests(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	page.Items = items
	return page, nil
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]LeaveRequest, error) {
	return s.scanRequests(ctx, `
    SELECT doc, medical_info, version
    FROM leave_requests
    WHERE status IN ($1,$2,$3)
    ORDER BY created_at
  `, pendingStatusArgs()...)
}

func (s *PostgresStore) scanRequests(ctx context.Context, query string, args ...any) ([]LeaveRequest, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *PostgresStore) Balances(ctx context.Context, employeeID string) ([]Balance, error) {
	rows, err := s.pool.Query(ctx, `
    SELECT category, remaining_days::text, used_days::text, updated_at
    FROM leave_balances
    WHERE employee_id = $1
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

func (s *PostgresStore) Adjustments(ctx context.Context, employeeID string) ([]BalanceAdjustment, error) {
	rows, err := s.pool.Query(ctx, `
    SELECT id, category, amount::text, reason, request_id, created_by, created_at
    FROM leave_balance_adjustments
    WHERE employee_id = $1
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

func (s *PostgresStore) SeedBalance(ctx context.Context, b Balance) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
    INSERT INTO leave_balances (employee_id, category, remaining_days, used_days, updated_at)
    VALUES ($1,$2,$3::numeric,$4::numeric,$5)
    ON CONFLICT (employee_id, category) DO NOTHING
  `, b.EmployeeID, string(b.Category), b.RemainingDays.String(), b.UsedDays.String(), b.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("seed leave balance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func pgPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func fillBalance(b Balance, remaining, used string) (Balance, error) {
	var err error
	if b.RemainingDays, err = parseDays(remaining); err != nil {
		return Balance{}, fmt.Errorf("parse remaining days: %w", err)
	}
	if b.UsedDays, err = parseDays(used); err != nil {
		return Balance{}, fmt.Errorf("parse used days: %w", err)
	}
	return b, nil
}
