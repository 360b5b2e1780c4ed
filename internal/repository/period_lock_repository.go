package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/database"
)

// PeriodLockRepository handles CRUD for period_locks.
type PeriodLockRepository struct {
	db *database.DB
}

// NewPeriodLockRepository creates a new PeriodLockRepository.
func NewPeriodLockRepository(db *database.DB) *PeriodLockRepository {
	return &PeriodLockRepository{db: db}
}

const periodLockColumns = `
	id, company_id, period_start, period_end, lock_reason, is_active,
	created_by, created_at, updated_at, disabled_at
`

// Create inserts a new period lock.
func (r *PeriodLockRepository) Create(ctx context.Context, lock *PeriodLock) error {
	if lock.PeriodEnd.Before(lock.PeriodStart) {
		return apperr.InvalidInput("period_end", "must not precede period_start")
	}

	query := `
		INSERT INTO period_locks
		    (company_id, period_start, period_end, lock_reason, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		lock.CompanyID,
		lock.PeriodStart,
		lock.PeriodEnd,
		lock.LockReason,
		lock.IsActive,
		lock.CreatedBy,
	).Scan(&lock.ID, &lock.CreatedAt, &lock.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create period lock")
	}
	return nil
}

// GetByID retrieves a lock by primary key.
func (r *PeriodLockRepository) GetByID(ctx context.Context, id, companyID string) (*PeriodLock, error) {
	query := `
		SELECT ` + periodLockColumns + `
		FROM period_locks
		WHERE id = $1 AND company_id = $2
	`

	lock, err := scanPeriodLock(r.db.QueryRow(ctx, query, id, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("period_lock", id)
	}
	return lock, err
}

// List returns all locks for a company, newest period first.
func (r *PeriodLockRepository) List(ctx context.Context, companyID string, activeOnly bool) ([]*PeriodLock, error) {
	query := `
		SELECT ` + periodLockColumns + `
		FROM period_locks
		WHERE company_id = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY period_start DESC"

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list period locks")
	}
	defer rows.Close()

	return scanPeriodLockRows(rows)
}

// ListActive returns the active locks for a company ordered by period start,
// the order the validator reports matches in.
func (r *PeriodLockRepository) ListActive(ctx context.Context, companyID string) ([]*PeriodLock, error) {
	query := `
		SELECT ` + periodLockColumns + `
		FROM period_locks
		WHERE company_id = $1
		  AND is_active = TRUE
		ORDER BY period_start ASC
	`

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list active period locks")
	}
	defer rows.Close()

	return scanPeriodLockRows(rows)
}

// Disable deactivates a lock, reopening its period.
func (r *PeriodLockRepository) Disable(ctx context.Context, id, companyID string) error {
	query := `
		UPDATE period_locks
		SET is_active   = FALSE,
		    disabled_at = NOW(),
		    updated_at  = NOW()
		WHERE id = $1 AND company_id = $2 AND is_active = TRUE
	`

	tag, err := r.db.Exec(ctx, query, id, companyID)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to disable period lock")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("period_lock", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func scanPeriodLock(row rowScanner) (*PeriodLock, error) {
	lock := &PeriodLock{}
	err := row.Scan(
		&lock.ID,
		&lock.CompanyID,
		&lock.PeriodStart,
		&lock.PeriodEnd,
		&lock.LockReason,
		&lock.IsActive,
		&lock.CreatedBy,
		&lock.CreatedAt,
		&lock.UpdatedAt,
		&lock.DisabledAt,
	)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func scanPeriodLockRows(rows pgx.Rows) ([]*PeriodLock, error) {
	var locks []*PeriodLock
	for rows.Next() {
		lock, err := scanPeriodLock(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan period lock")
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}
