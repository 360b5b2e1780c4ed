package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/database"
)

// ApprovalAuditEntry is one immutable record of an approval action.
type ApprovalAuditEntry struct {
	ID           string         `json:"id"`
	CompanyID    string         `json:"company_id"`
	RequestID    string         `json:"request_id"`
	RecordKind   RecordKind     `json:"record_kind"`
	RecordID     string         `json:"record_id"`
	Action       string         `json:"action"` // submitted | approved | rejected
	PerformedBy  string         `json:"performed_by"`
	PerformedAt  time.Time      `json:"performed_at"`
	StatusBefore ApprovalStatus `json:"status_before"`
	StatusAfter  ApprovalStatus `json:"status_after"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ApprovalAuditRepository appends and reads immutable approval audit entries.
type ApprovalAuditRepository struct {
	db *database.DB
}

// NewApprovalAuditRepository creates a new ApprovalAuditRepository.
func NewApprovalAuditRepository(db *database.DB) *ApprovalAuditRepository {
	return &ApprovalAuditRepository{db: db}
}

// Append inserts one audit entry. The table is append-only; no update or
// delete operations are exposed.
func (r *ApprovalAuditRepository) Append(ctx context.Context, entry *ApprovalAuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (company_id, request_id, record_kind, record_id,
		     action, performed_by, status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, performed_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.CompanyID,
		entry.RequestID,
		string(entry.RecordKind),
		entry.RecordID,
		entry.Action,
		entry.PerformedBy,
		string(entry.StatusBefore),
		string(entry.StatusAfter),
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to append audit entry")
	}
	return nil
}

// GetByRecord returns the audit trail for a business record, oldest first.
func (r *ApprovalAuditRepository) GetByRecord(ctx context.Context, companyID string, kind RecordKind, recordID string) ([]*ApprovalAuditEntry, error) {
	query := `
		SELECT id, company_id, request_id, record_kind, record_id,
		       action, performed_by, performed_at,
		       status_before, status_after, metadata
		FROM approval_audit_log
		WHERE company_id = $1 AND record_kind = $2 AND record_id = $3
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, companyID, string(kind), recordID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get audit trail")
	}
	defer rows.Close()

	var entries []*ApprovalAuditEntry
	for rows.Next() {
		entry := &ApprovalAuditEntry{}
		var kindStr string
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.CompanyID,
			&entry.RequestID,
			&kindStr,
			&entry.RecordID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan audit entry")
		}

		entry.RecordKind = RecordKind(kindStr)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
