package repository

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
)

// ── Domain types for the financial controls subsystem ────────────────────────

// ApprovalStatus is the lifecycle state of an approval request.
// pending transitions exactly once to approved or rejected; both are terminal.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// RecordKind identifies which business entity an approval request gates.
// The set is closed: each kind maps to a fixed table carrying
// approval_status and is_locked columns.
type RecordKind string

const (
	RecordKindExpense      RecordKind = "expense"
	RecordKindPayment      RecordKind = "payment"
	RecordKindJournalEntry RecordKind = "journal_entry"
)

// ParseRecordKind validates a record kind supplied by a caller.
func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(s) {
	case RecordKindExpense, RecordKindPayment, RecordKindJournalEntry:
		return RecordKind(s), nil
	case "":
		return "", apperr.InvalidInput("record_kind", "must not be empty")
	default:
		return "", apperr.InvalidInput("record_kind", "unknown kind: "+s)
	}
}

// ApprovalWorkflow is one amount tier of a company's approval policy for a
// workflow type. Among active tiers whose min_amount does not exceed the
// requested amount, the greatest min_amount wins. Requests snapshot the
// resolved role, so editing a tier never changes requests already routed.
type ApprovalWorkflow struct {
	ID           string          `json:"id"`
	CompanyID    string          `json:"company_id"`
	WorkflowType string          `json:"workflow_type"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	RequiredRole string          `json:"required_role"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ApprovalRequest is one pending-or-resolved approval of a business record.
type ApprovalRequest struct {
	ID                  string              `json:"id"`
	CompanyID           string              `json:"company_id"`
	WorkflowType        string              `json:"workflow_type"`
	RecordKind          RecordKind          `json:"record_kind"`
	RecordID            string              `json:"record_id"`
	RequestedBy         string              `json:"requested_by"`
	CurrentApproverRole string              `json:"current_approver_role"`
	Amount              decimal.NullDecimal `json:"amount"`
	Notes               *string             `json:"notes,omitempty"`
	Status              ApprovalStatus      `json:"status"`
	ApprovedBy          *string             `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time          `json:"approved_at,omitempty"`
	RejectionReason     *string             `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// PeriodLock closes an inclusive accounting date range for a company.
type PeriodLock struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	LockReason  string     `json:"lock_reason"`
	IsActive    bool       `json:"is_active"`
	CreatedBy   *string    `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DisabledAt  *time.Time `json:"disabled_at,omitempty"`
}
