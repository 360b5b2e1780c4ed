package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
)

// Approvable business records live in per-kind tables, each carrying
// approval_status and is_locked columns. The kind set is closed, so dispatch
// is a switch rather than dynamic table-name interpolation from caller input.
func approvalTargetTable(kind RecordKind) (string, error) {
	switch kind {
	case RecordKindExpense:
		return "expenses", nil
	case RecordKindPayment:
		return "payments", nil
	case RecordKindJournalEntry:
		return "journal_entries", nil
	}
	return "", apperr.InvalidInput("record_kind", "unknown kind: "+string(kind))
}

// setRecordApprovalStatusTx updates the gated business record inside the
// caller's transaction. A nil locked leaves is_locked untouched (submission
// marks a record pending without locking it).
func setRecordApprovalStatusTx(
	ctx context.Context,
	tx pgx.Tx,
	companyID string,
	kind RecordKind,
	recordID string,
	status ApprovalStatus,
	locked *bool,
) error {
	table, err := approvalTargetTable(kind)
	if err != nil {
		return err
	}

	var query string
	var args []any
	if locked == nil {
		query = fmt.Sprintf(`
			UPDATE %s
			SET approval_status = $3,
			    updated_at      = NOW()
			WHERE id = $1 AND company_id = $2
		`, table)
		args = []any{recordID, companyID, string(status)}
	} else {
		query = fmt.Sprintf(`
			UPDATE %s
			SET approval_status = $3,
			    is_locked       = $4,
			    updated_at      = NOW()
			WHERE id = $1 AND company_id = $2
		`, table)
		args = []any{recordID, companyID, string(status), *locked}
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to update "+table+" approval status")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(string(kind), recordID)
	}
	return nil
}
