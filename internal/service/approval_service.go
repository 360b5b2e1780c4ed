package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/client"
	"github.com/zafin-ops/be-fin-controls/internal/logger"
	"github.com/zafin-ops/be-fin-controls/internal/repository"
)

// ActorContext identifies the authenticated caller of a privileged
// operation. It is passed explicitly so the engine never reads ambient
// session state and stays deterministic under test.
type ActorContext struct {
	UserID    string
	CompanyID string
	Role      string
}

// IdentityClientInterface resolves user role information from the identity
// service.
type IdentityClientInterface interface {
	// GetUsersWithRole returns user IDs holding the given role in a company.
	GetUsersWithRole(ctx context.Context, companyID, role string) ([]string, error)
	// GetUserRole returns the role a user holds in a company.
	GetUserRole(ctx context.Context, companyID, userID string) (string, error)
}

// NotifierInterface publishes user-facing notification events. Delivery is
// best-effort and must never fail the calling operation.
type NotifierInterface interface {
	PublishApprovalEvent(ctx context.Context, event *client.NotificationEvent)
}

// WorkflowStoreInterface persists the per-company workflow tiers.
type WorkflowStoreInterface interface {
	Create(ctx context.Context, wf *repository.ApprovalWorkflow) error
	List(ctx context.Context, companyID string, activeOnly bool) ([]*repository.ApprovalWorkflow, error)
	ListActive(ctx context.Context, companyID, workflowType string) ([]*repository.ApprovalWorkflow, error)
	SetActive(ctx context.Context, id, companyID string, active bool) error
}

// RequestStoreInterface persists approval requests and the linked business
// record transitions.
type RequestStoreInterface interface {
	Create(ctx context.Context, req *repository.ApprovalRequest) error
	GetByID(ctx context.Context, id, companyID string) (*repository.ApprovalRequest, error)
	GetPendingByRecord(ctx context.Context, companyID string, kind repository.RecordKind, recordID string) (*repository.ApprovalRequest, error)
	ListPendingByRole(ctx context.Context, companyID, role string) ([]*repository.ApprovalRequest, error)
	Resolve(ctx context.Context, p repository.ResolveParams) (*repository.ApprovalRequest, error)
}

// AuditStoreInterface appends immutable audit entries.
type AuditStoreInterface interface {
	Append(ctx context.Context, entry *repository.ApprovalAuditEntry) error
	GetByRecord(ctx context.Context, companyID string, kind repository.RecordKind, recordID string) ([]*repository.ApprovalAuditEntry, error)
}

// defaultApproverRole is used when no tier matches the requested amount.
const defaultApproverRole = "accountant"

// approverEligibleRoles is the fixed role class allowed to resolve any
// pending request. Resolution deliberately checks this class rather than the
// specific role snapshotted on the request: any sufficiently senior role may
// act.
var approverEligibleRoles = map[string]struct{}{
	"super_admin":       {},
	"admin":             {},
	"financial_manager": {},
	"accountant":        {},
}

// ResolveAction is the approver's decision.
type ResolveAction string

const (
	ActionApprove ResolveAction = "approve"
	ActionReject  ResolveAction = "reject"
)

// ApprovalService orchestrates the amount-tiered approval workflow:
// tier selection on submission, terminal-state transitions on resolution,
// and best-effort notification of the parties involved.
type ApprovalService struct {
	workflows WorkflowStoreInterface
	requests  RequestStoreInterface
	audit     AuditStoreInterface
	identity  IdentityClientInterface
	notifier  NotifierInterface
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	workflows WorkflowStoreInterface,
	requests RequestStoreInterface,
	audit AuditStoreInterface,
	identity IdentityClientInterface,
	notifier NotifierInterface,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		workflows: workflows,
		requests:  requests,
		audit:     audit,
		identity:  identity,
		notifier:  notifier,
		log:       log,
	}
}

// CreateApprovalRequestInput is a submission for approval.
type CreateApprovalRequestInput struct {
	WorkflowType string
	RecordKind   string
	RecordID     string
	Amount       *decimal.Decimal
	Notes        *string
}

// ── Submission ────────────────────────────────────────────────────────────────

// CreateApprovalRequest routes a submission to the applicable workflow tier,
// inserts the pending request, marks the business record pending, and
// notifies every holder of the resolved approver role.
func (s *ApprovalService) CreateApprovalRequest(
	ctx context.Context,
	actor ActorContext,
	in CreateApprovalRequestInput,
) (*repository.ApprovalRequest, error) {
	if in.WorkflowType == "" {
		return nil, apperr.InvalidInput("workflow_type", "must not be empty")
	}
	if in.RecordID == "" {
		return nil, apperr.InvalidInput("record_id", "must not be empty")
	}
	kind, err := repository.ParseRecordKind(in.RecordKind)
	if err != nil {
		return nil, err
	}
	if actor.CompanyID == "" {
		return nil, apperr.NotFound("company membership", actor.UserID)
	}

	role, err := s.resolveApproverRole(ctx, actor.CompanyID, in.WorkflowType, in.Amount)
	if err != nil {
		return nil, err
	}

	req := &repository.ApprovalRequest{
		CompanyID:           actor.CompanyID,
		WorkflowType:        in.WorkflowType,
		RecordKind:          kind,
		RecordID:            in.RecordID,
		RequestedBy:         actor.UserID,
		CurrentApproverRole: role,
		Notes:               in.Notes,
	}
	if in.Amount != nil {
		req.Amount = decimal.NullDecimal{Decimal: *in.Amount, Valid: true}
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("company_id", req.CompanyID).
		Str("workflow_type", req.WorkflowType).
		Str("approver_role", role).
		Msg("Approval request created")

	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		CompanyID:    req.CompanyID,
		RequestID:    req.ID,
		RecordKind:   req.RecordKind,
		RecordID:     req.RecordID,
		Action:       "submitted",
		PerformedBy:  actor.UserID,
		StatusBefore: "",
		StatusAfter:  repository.StatusPending,
	})

	s.notifyApprovers(ctx, req, actor)

	return req, nil
}

// resolveApproverRole picks the active tier with the greatest min_amount not
// exceeding the requested amount. A missing amount is treated as zero; when
// no tier matches, the default role applies.
func (s *ApprovalService) resolveApproverRole(
	ctx context.Context,
	companyID, workflowType string,
	amount *decimal.Decimal,
) (string, error) {
	tiers, err := s.workflows.ListActive(ctx, companyID, workflowType)
	if err != nil {
		return "", err
	}

	requested := decimal.Zero
	if amount != nil {
		requested = *amount
	}

	// Tiers arrive ordered by min_amount descending.
	for _, tier := range tiers {
		if tier.MinAmount.LessThanOrEqual(requested) {
			return tier.RequiredRole, nil
		}
	}
	return defaultApproverRole, nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// ResolveApprovalRequest transitions a pending request to approved or
// rejected. Both outcomes are terminal; re-resolution fails with a conflict.
// Approval locks the business record, rejection returns it to an editable,
// unlocked state. The request and record writes are atomic; the requester
// notification is best-effort and happens after commit.
func (s *ApprovalService) ResolveApprovalRequest(
	ctx context.Context,
	actor ActorContext,
	approvalID string,
	action ResolveAction,
	rejectionReason *string,
) error {
	if approvalID == "" {
		return apperr.InvalidInput("approval_id", "must not be empty")
	}

	req, err := s.requests.GetByID(ctx, approvalID, actor.CompanyID)
	if err != nil {
		return err
	}

	if _, ok := approverEligibleRoles[actor.Role]; !ok {
		return apperr.Unauthorized(
			fmt.Sprintf("role %q may not resolve approval requests", actor.Role))
	}

	if req.Status != repository.StatusPending {
		return apperr.Conflict(
			fmt.Sprintf("approval request %s is already %s", req.ID, req.Status))
	}

	var status repository.ApprovalStatus
	switch action {
	case ActionApprove:
		status = repository.StatusApproved
	case ActionReject:
		if rejectionReason == nil || *rejectionReason == "" {
			return apperr.InvalidInput("rejection_reason", "required when rejecting")
		}
		status = repository.StatusRejected
	default:
		return apperr.InvalidInput("action", "must be approve or reject")
	}

	// The conditional UPDATE inside Resolve re-checks pending status, so a
	// concurrent resolver that got here first turns this call into a conflict.
	resolved, err := s.requests.Resolve(ctx, repository.ResolveParams{
		ID:              approvalID,
		CompanyID:       actor.CompanyID,
		Status:          status,
		ActedBy:         actor.UserID,
		RejectionReason: rejectionReason,
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("request_id", resolved.ID).
		Str("company_id", resolved.CompanyID).
		Str("status", string(status)).
		Str("acted_by", actor.UserID).
		Msg("Approval request resolved")

	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		CompanyID:    resolved.CompanyID,
		RequestID:    resolved.ID,
		RecordKind:   resolved.RecordKind,
		RecordID:     resolved.RecordID,
		Action:       string(status),
		PerformedBy:  actor.UserID,
		StatusBefore: repository.StatusPending,
		StatusAfter:  status,
	})

	s.notifyRequester(ctx, resolved, actor, status, rejectionReason)

	return nil
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// GetApprovalRequest returns one request by id.
func (s *ApprovalService) GetApprovalRequest(ctx context.Context, actor ActorContext, id string) (*repository.ApprovalRequest, error) {
	return s.requests.GetByID(ctx, id, actor.CompanyID)
}

// ListPendingForRole returns the pending inbox for an approver role.
func (s *ApprovalService) ListPendingForRole(ctx context.Context, actor ActorContext, role string) ([]*repository.ApprovalRequest, error) {
	if role == "" {
		role = actor.Role
	}
	return s.requests.ListPendingByRole(ctx, actor.CompanyID, role)
}

// GetPendingForRecord returns the outstanding pending request for a business
// record, or nil.
func (s *ApprovalService) GetPendingForRecord(ctx context.Context, actor ActorContext, kind repository.RecordKind, recordID string) (*repository.ApprovalRequest, error) {
	return s.requests.GetPendingByRecord(ctx, actor.CompanyID, kind, recordID)
}

// GetAuditTrail returns the approval history of a business record.
func (s *ApprovalService) GetAuditTrail(ctx context.Context, actor ActorContext, kind repository.RecordKind, recordID string) ([]*repository.ApprovalAuditEntry, error) {
	return s.audit.GetByRecord(ctx, actor.CompanyID, kind, recordID)
}

// ── Tier administration ───────────────────────────────────────────────────────

// CreateWorkflowTier adds an amount tier to a company's approval policy.
// Only the approver role class may manage tiers.
func (s *ApprovalService) CreateWorkflowTier(ctx context.Context, actor ActorContext, wf *repository.ApprovalWorkflow) error {
	if _, ok := approverEligibleRoles[actor.Role]; !ok {
		return apperr.Unauthorized(
			fmt.Sprintf("role %q may not manage approval workflows", actor.Role))
	}
	if wf.WorkflowType == "" {
		return apperr.InvalidInput("workflow_type", "must not be empty")
	}
	if wf.RequiredRole == "" {
		return apperr.InvalidInput("required_role", "must not be empty")
	}
	if wf.MinAmount.IsNegative() {
		return apperr.InvalidInput("min_amount", "must not be negative")
	}

	wf.CompanyID = actor.CompanyID
	wf.IsActive = true
	return s.workflows.Create(ctx, wf)
}

// ListWorkflowTiers returns a company's tiers.
func (s *ApprovalService) ListWorkflowTiers(ctx context.Context, actor ActorContext, activeOnly bool) ([]*repository.ApprovalWorkflow, error) {
	return s.workflows.List(ctx, actor.CompanyID, activeOnly)
}

// SetWorkflowTierActive enables or disables a tier. Requests already routed
// keep their snapshotted role.
func (s *ApprovalService) SetWorkflowTierActive(ctx context.Context, actor ActorContext, tierID string, active bool) error {
	if _, ok := approverEligibleRoles[actor.Role]; !ok {
		return apperr.Unauthorized(
			fmt.Sprintf("role %q may not manage approval workflows", actor.Role))
	}
	return s.workflows.SetActive(ctx, tierID, actor.CompanyID, active)
}

// ── Side effects ──────────────────────────────────────────────────────────────

// notifyApprovers tells every holder of the resolved role that a request
// awaits them. Failures are logged and swallowed.
func (s *ApprovalService) notifyApprovers(ctx context.Context, req *repository.ApprovalRequest, actor ActorContext) {
	recipients, err := s.identity.GetUsersWithRole(ctx, req.CompanyID, req.CurrentApproverRole)
	if err != nil {
		s.log.Warn().Err(err).
			Str("role", req.CurrentApproverRole).
			Msg("Could not fetch approvers for notification")
		return
	}

	s.notifier.PublishApprovalEvent(ctx, &client.NotificationEvent{
		EventType:  "approval_required",
		CompanyID:  req.CompanyID,
		ActorID:    actor.UserID,
		Recipients: recipients,
		Title:      "Approval required",
		Message:    fmt.Sprintf("A %s requires your approval", req.RecordKind),
		Severity:   "info",
		RecordKind: string(req.RecordKind),
		RecordID:   req.RecordID,
	})
}

// notifyRequester tells the submitter the outcome of their request.
func (s *ApprovalService) notifyRequester(
	ctx context.Context,
	req *repository.ApprovalRequest,
	actor ActorContext,
	status repository.ApprovalStatus,
	rejectionReason *string,
) {
	event := &client.NotificationEvent{
		CompanyID:  req.CompanyID,
		ActorID:    actor.UserID,
		Recipients: []string{req.RequestedBy},
		RecordKind: string(req.RecordKind),
		RecordID:   req.RecordID,
	}

	if status == repository.StatusApproved {
		event.EventType = "approval_approved"
		event.Severity = "success"
		event.Title = "Request approved"
		event.Message = fmt.Sprintf("Your %s has been approved", req.RecordKind)
	} else {
		event.EventType = "approval_rejected"
		event.Severity = "error"
		event.Title = "Request rejected"
		event.Message = fmt.Sprintf("Your %s has been rejected", req.RecordKind)
		if rejectionReason != nil && *rejectionReason != "" {
			event.Message = fmt.Sprintf("%s: %s", event.Message, *rejectionReason)
		}
	}

	s.notifier.PublishApprovalEvent(ctx, event)
}

// appendAudit writes an audit entry, logging a warning on failure.
func (s *ApprovalService) appendAudit(ctx context.Context, entry *repository.ApprovalAuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("request_id", entry.RequestID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}
