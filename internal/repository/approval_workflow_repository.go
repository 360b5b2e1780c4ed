package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/database"
)

// ApprovalWorkflowRepository handles CRUD for approval_workflows (the
// per-company amount tiers).
type ApprovalWorkflowRepository struct {
	db *database.DB
}

// NewApprovalWorkflowRepository creates a new ApprovalWorkflowRepository.
func NewApprovalWorkflowRepository(db *database.DB) *ApprovalWorkflowRepository {
	return &ApprovalWorkflowRepository{db: db}
}

const workflowColumns = `
	id, company_id, workflow_type, min_amount, required_role, is_active,
	created_at, updated_at
`

// Create inserts a new workflow tier.
func (r *ApprovalWorkflowRepository) Create(ctx context.Context, wf *ApprovalWorkflow) error {
	query := `
		INSERT INTO approval_workflows
		    (company_id, workflow_type, min_amount, required_role, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		wf.CompanyID,
		wf.WorkflowType,
		wf.MinAmount,
		wf.RequiredRole,
		wf.IsActive,
	).Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create approval workflow")
	}
	return nil
}

// GetByID retrieves a tier by primary key.
func (r *ApprovalWorkflowRepository) GetByID(ctx context.Context, id, companyID string) (*ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE id = $1 AND company_id = $2
	`

	wf, err := scanWorkflow(r.db.QueryRow(ctx, query, id, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("approval_workflow", id)
	}
	return wf, err
}

// List returns all tiers for a company, optionally active only, ordered by
// workflow type then descending min_amount (the matching order).
func (r *ApprovalWorkflowRepository) List(ctx context.Context, companyID string, activeOnly bool) ([]*ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE company_id = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY workflow_type ASC, min_amount DESC"

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list approval workflows")
	}
	defer rows.Close()

	return scanWorkflowRows(rows)
}

// ListActive returns the active tiers for one workflow type ordered by
// descending min_amount, so the first tier whose min_amount does not exceed
// the requested amount is the match.
func (r *ApprovalWorkflowRepository) ListActive(ctx context.Context, companyID, workflowType string) ([]*ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE company_id = $1
		  AND workflow_type = $2
		  AND is_active = TRUE
		ORDER BY min_amount DESC
	`

	rows, err := r.db.Query(ctx, query, companyID, workflowType)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list active approval workflows")
	}
	defer rows.Close()

	return scanWorkflowRows(rows)
}

// SetActive enables or disables a tier.
func (r *ApprovalWorkflowRepository) SetActive(ctx context.Context, id, companyID string, active bool) error {
	query := `
		UPDATE approval_workflows
		SET is_active  = $3,
		    updated_at = NOW()
		WHERE id = $1 AND company_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, companyID, active)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to update approval workflow")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("approval_workflow", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*ApprovalWorkflow, error) {
	wf := &ApprovalWorkflow{}
	err := row.Scan(
		&wf.ID,
		&wf.CompanyID,
		&wf.WorkflowType,
		&wf.MinAmount,
		&wf.RequiredRole,
		&wf.IsActive,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func scanWorkflowRows(rows pgx.Rows) ([]*ApprovalWorkflow, error) {
	var workflows []*ApprovalWorkflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval workflow")
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}
