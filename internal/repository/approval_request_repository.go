package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/database"
)

// ApprovalRequestRepository manages approval_requests together with the
// approval columns on the gated business record. Creation and resolution
// each touch both in a single transaction.
type ApprovalRequestRepository struct {
	db *database.DB
}

// NewApprovalRequestRepository creates a new ApprovalRequestRepository.
func NewApprovalRequestRepository(db *database.DB) *ApprovalRequestRepository {
	return &ApprovalRequestRepository{db: db}
}

const requestColumns = `
	id, company_id, workflow_type, record_kind, record_id,
	requested_by, current_approver_role, amount, notes,
	status, approved_by, approved_at, rejection_reason,
	created_at, updated_at
`

// Create inserts a pending request and marks the referenced business record
// pending in the same transaction. is_locked on the record is left untouched:
// a record under review stays editable until it is approved.
func (r *ApprovalRequestRepository) Create(ctx context.Context, req *ApprovalRequest) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO approval_requests
			    (company_id, workflow_type, record_kind, record_id,
			     requested_by, current_approver_role, amount, notes, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
			RETURNING id, status, created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			req.CompanyID,
			req.WorkflowType,
			string(req.RecordKind),
			req.RecordID,
			req.RequestedBy,
			req.CurrentApproverRole,
			req.Amount,
			req.Notes,
		).Scan(&req.ID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to create approval request")
		}

		return setRecordApprovalStatusTx(ctx, tx, req.CompanyID, req.RecordKind, req.RecordID, StatusPending, nil)
	})
}

// GetByID retrieves a request by primary key.
func (r *ApprovalRequestRepository) GetByID(ctx context.Context, id, companyID string) (*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE id = $1 AND company_id = $2
	`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("approval_request", id)
	}
	return req, err
}

// GetPendingByRecord returns the outstanding pending request for a business
// record, or nil when none exists. At most one is expected; callers use this
// to avoid issuing a duplicate.
func (r *ApprovalRequestRepository) GetPendingByRecord(ctx context.Context, companyID string, kind RecordKind, recordID string) (*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE company_id = $1
		  AND record_kind = $2
		  AND record_id = $3
		  AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`

	req, err := scanRequest(r.db.QueryRow(ctx, query, companyID, string(kind), recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get pending approval request")
	}
	return req, nil
}

// ListPendingByRole returns pending requests routed to a role, oldest first
// (approver inbox ordering).
func (r *ApprovalRequestRepository) ListPendingByRole(ctx context.Context, companyID, role string) ([]*ApprovalRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE company_id = $1
		  AND current_approver_role = $2
		  AND status = 'pending'
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, companyID, role)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list pending approval requests")
	}
	defer rows.Close()

	var requests []*ApprovalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval request")
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// ResolveParams describes one terminal transition of a pending request.
type ResolveParams struct {
	ID              string
	CompanyID       string
	Status          ApprovalStatus // StatusApproved or StatusRejected
	ActedBy         string
	RejectionReason *string
}

// Resolve transitions a pending request to its terminal status and updates
// the gated business record, atomically. The UPDATE is conditional on the
// request still being pending; when two resolvers race, exactly one matches
// a row and the loser gets a conflict error. Approval locks the record;
// rejection leaves it unlocked and editable.
func (r *ApprovalRequestRepository) Resolve(ctx context.Context, p ResolveParams) (*ApprovalRequest, error) {
	if p.Status != StatusApproved && p.Status != StatusRejected {
		return nil, apperr.InvalidInput("status", "resolution must be approved or rejected")
	}

	var resolved *ApprovalRequest
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_requests
			SET status           = $3,
			    approved_by      = $4,
			    approved_at      = NOW(),
			    rejection_reason = $5,
			    updated_at       = NOW()
			WHERE id = $1 AND company_id = $2 AND status = 'pending'
			RETURNING ` + requestColumns + `
		`

		req, err := scanRequest(tx.QueryRow(ctx, query,
			p.ID, p.CompanyID, string(p.Status), p.ActedBy, p.RejectionReason))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyResolveMiss(ctx, tx, p.ID, p.CompanyID)
		}
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to resolve approval request")
		}

		locked := p.Status == StatusApproved
		if err := setRecordApprovalStatusTx(ctx, tx, req.CompanyID, req.RecordKind, req.RecordID, p.Status, &locked); err != nil {
			return err
		}

		resolved = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// classifyResolveMiss distinguishes a request that never existed from one
// already resolved, for the zero-rows outcome of the conditional UPDATE.
func (r *ApprovalRequestRepository) classifyResolveMiss(ctx context.Context, tx pgx.Tx, id, companyID string) error {
	var status ApprovalStatus
	err := tx.QueryRow(ctx,
		`SELECT status FROM approval_requests WHERE id = $1 AND company_id = $2`,
		id, companyID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("approval_request", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to read approval request status")
	}
	return apperr.Conflict(fmt.Sprintf("approval request %s is already %s", id, status))
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func scanRequest(row rowScanner) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	var kind string
	var approvedAt *time.Time

	err := row.Scan(
		&req.ID,
		&req.CompanyID,
		&req.WorkflowType,
		&kind,
		&req.RecordID,
		&req.RequestedBy,
		&req.CurrentApproverRole,
		&req.Amount,
		&req.Notes,
		&req.Status,
		&req.ApprovedBy,
		&approvedAt,
		&req.RejectionReason,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.RecordKind = RecordKind(kind)
	req.ApprovedAt = approvedAt
	return req, nil
}
