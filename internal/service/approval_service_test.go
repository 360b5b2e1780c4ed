package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/client"
	"github.com/zafin-ops/be-fin-controls/internal/logger"
	"github.com/zafin-ops/be-fin-controls/internal/repository"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeWorkflowStore struct {
	tiers []*repository.ApprovalWorkflow
	err   error
}

func (f *fakeWorkflowStore) Create(_ context.Context, wf *repository.ApprovalWorkflow) error {
	wf.ID = fmt.Sprintf("wf-%d", len(f.tiers)+1)
	f.tiers = append(f.tiers, wf)
	return nil
}

func (f *fakeWorkflowStore) List(_ context.Context, companyID string, activeOnly bool) ([]*repository.ApprovalWorkflow, error) {
	var out []*repository.ApprovalWorkflow
	for _, t := range f.tiers {
		if t.CompanyID != companyID {
			continue
		}
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeWorkflowStore) SetActive(_ context.Context, id, companyID string, active bool) error {
	for _, t := range f.tiers {
		if t.ID == id && t.CompanyID == companyID {
			t.IsActive = active
			return nil
		}
	}
	return apperr.NotFound("approval_workflow", id)
}

func (f *fakeWorkflowStore) ListActive(_ context.Context, companyID, workflowType string) ([]*repository.ApprovalWorkflow, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*repository.ApprovalWorkflow
	for _, t := range f.tiers {
		if t.CompanyID == companyID && t.WorkflowType == workflowType && t.IsActive {
			out = append(out, t)
		}
	}
	// Descending min_amount, as the repository guarantees.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].MinAmount.GreaterThan(out[i].MinAmount) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

type recordState struct {
	approvalStatus repository.ApprovalStatus
	locked         bool
	lockedTouched  bool
}

// fakeRequestStore mimics the repository's transactional semantics,
// including the conditional terminal-state update, behind a mutex so race
// tests are meaningful.
type fakeRequestStore struct {
	mu       sync.Mutex
	seq      int
	requests map[string]*repository.ApprovalRequest
	records  map[string]*recordState
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{
		requests: make(map[string]*repository.ApprovalRequest),
		records:  make(map[string]*recordState),
	}
}

func recordKey(kind repository.RecordKind, id string) string {
	return string(kind) + "/" + id
}

func (f *fakeRequestStore) Create(_ context.Context, req *repository.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	req.ID = fmt.Sprintf("req-%d", f.seq)
	req.Status = repository.StatusPending
	cp := *req
	f.requests[req.ID] = &cp

	key := recordKey(req.RecordKind, req.RecordID)
	st := f.records[key]
	if st == nil {
		st = &recordState{}
		f.records[key] = st
	}
	st.approvalStatus = repository.StatusPending
	return nil
}

func (f *fakeRequestStore) GetByID(_ context.Context, id, companyID string) (*repository.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.CompanyID != companyID {
		return nil, apperr.NotFound("approval_request", id)
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRequestStore) GetPendingByRecord(_ context.Context, companyID string, kind repository.RecordKind, recordID string) (*repository.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.CompanyID == companyID && req.RecordKind == kind && req.RecordID == recordID && req.Status == repository.StatusPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRequestStore) ListPendingByRole(_ context.Context, companyID, role string) ([]*repository.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ApprovalRequest
	for _, req := range f.requests {
		if req.CompanyID == companyID && req.CurrentApproverRole == role && req.Status == repository.StatusPending {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) Resolve(_ context.Context, p repository.ResolveParams) (*repository.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[p.ID]
	if !ok || req.CompanyID != p.CompanyID {
		return nil, apperr.NotFound("approval_request", p.ID)
	}
	if req.Status != repository.StatusPending {
		return nil, apperr.Conflict(fmt.Sprintf("approval request %s is already %s", p.ID, req.Status))
	}

	req.Status = p.Status
	req.ApprovedBy = &p.ActedBy
	req.RejectionReason = p.RejectionReason

	st := f.records[recordKey(req.RecordKind, req.RecordID)]
	if st == nil {
		return nil, apperr.NotFound(string(req.RecordKind), req.RecordID)
	}
	st.approvalStatus = p.Status
	st.locked = p.Status == repository.StatusApproved
	st.lockedTouched = true

	cp := *req
	return &cp, nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []*repository.ApprovalAuditEntry
	err     error
}

func (f *fakeAuditStore) Append(_ context.Context, entry *repository.ApprovalAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) GetByRecord(_ context.Context, companyID string, kind repository.RecordKind, recordID string) ([]*repository.ApprovalAuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ApprovalAuditEntry
	for _, e := range f.entries {
		if e.CompanyID == companyID && e.RecordKind == kind && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeIdentity struct {
	usersByRole map[string][]string
	err         error
}

func (f *fakeIdentity) GetUsersWithRole(_ context.Context, _, role string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.usersByRole[role], nil
}

func (f *fakeIdentity) GetUserRole(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*client.NotificationEvent
}

func (f *fakeNotifier) PublishApprovalEvent(_ context.Context, event *client.NotificationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

// ── fixtures ─────────────────────────────────────────────────────────────────

const testCompany = "co-1"

func tier(min string, role string) *repository.ApprovalWorkflow {
	return &repository.ApprovalWorkflow{
		CompanyID:    testCompany,
		WorkflowType: "expense",
		MinAmount:    mustDec(min),
		RequiredRole: role,
		IsActive:     true,
	}
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := mustDec(s)
	return &d
}

type approvalFixture struct {
	svc      *ApprovalService
	requests *fakeRequestStore
	audit    *fakeAuditStore
	notifier *fakeNotifier
	identity *fakeIdentity
}

func newApprovalFixture(tiers ...*repository.ApprovalWorkflow) *approvalFixture {
	f := &approvalFixture{
		requests: newFakeRequestStore(),
		audit:    &fakeAuditStore{},
		notifier: &fakeNotifier{},
		identity: &fakeIdentity{usersByRole: map[string][]string{
			"accountant":        {"u-acct-1", "u-acct-2"},
			"financial_manager": {"u-fm-1"},
		}},
	}
	f.svc = NewApprovalService(
		&fakeWorkflowStore{tiers: tiers},
		f.requests,
		f.audit,
		f.identity,
		f.notifier,
		logger.Nop(),
	)
	return f
}

func requester() ActorContext {
	return ActorContext{UserID: "u-emp-1", CompanyID: testCompany, Role: "employee"}
}

func approver() ActorContext {
	return ActorContext{UserID: "u-fm-1", CompanyID: testCompany, Role: "financial_manager"}
}

func submitExpense(t *testing.T, f *approvalFixture, amount *decimal.Decimal) *repository.ApprovalRequest {
	t.Helper()
	req, err := f.svc.CreateApprovalRequest(context.Background(), requester(), CreateApprovalRequestInput{
		WorkflowType: "expense",
		RecordKind:   "expense",
		RecordID:     "exp-1",
		Amount:       amount,
	})
	require.NoError(t, err)
	return req
}

// ── tier selection ───────────────────────────────────────────────────────────

func TestCreateApprovalRequest_TierSelection(t *testing.T) {
	tests := []struct {
		name     string
		amount   *decimal.Decimal
		wantRole string
	}{
		{"below second tier boundary", decPtr("4999"), "role_b"},
		{"exactly at top tier boundary", decPtr("5000"), "role_c"},
		{"zero amount", decPtr("0"), "role_a"},
		{"missing amount treated as zero", nil, "role_a"},
		{"large amount", decPtr("1000000"), "role_c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newApprovalFixture(
				tier("0", "role_a"),
				tier("1000", "role_b"),
				tier("5000", "role_c"),
			)
			req := submitExpense(t, f, tt.amount)
			assert.Equal(t, tt.wantRole, req.CurrentApproverRole)
		})
	}
}

func TestCreateApprovalRequest_NoTiersDefaultsToAccountant(t *testing.T) {
	f := newApprovalFixture()
	req := submitExpense(t, f, decPtr("0"))
	assert.Equal(t, "accountant", req.CurrentApproverRole)
}

// ── submission validation and side effects ───────────────────────────────────

func TestCreateApprovalRequest_Validation(t *testing.T) {
	f := newApprovalFixture()
	ctx := context.Background()

	tests := []struct {
		name     string
		actor    ActorContext
		in       CreateApprovalRequestInput
		wantCode apperr.Code
	}{
		{
			name:     "empty workflow type",
			actor:    requester(),
			in:       CreateApprovalRequestInput{RecordKind: "expense", RecordID: "exp-1"},
			wantCode: apperr.CodeValidation,
		},
		{
			name:     "empty record id",
			actor:    requester(),
			in:       CreateApprovalRequestInput{WorkflowType: "expense", RecordKind: "expense"},
			wantCode: apperr.CodeValidation,
		},
		{
			name:     "unknown record kind",
			actor:    requester(),
			in:       CreateApprovalRequestInput{WorkflowType: "expense", RecordKind: "ledger", RecordID: "x"},
			wantCode: apperr.CodeValidation,
		},
		{
			name:     "no company membership",
			actor:    ActorContext{UserID: "u-1"},
			in:       CreateApprovalRequestInput{WorkflowType: "expense", RecordKind: "expense", RecordID: "exp-1"},
			wantCode: apperr.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateApprovalRequest(ctx, tt.actor, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
		})
	}
}

func TestCreateApprovalRequest_MarksRecordPendingWithoutLocking(t *testing.T) {
	f := newApprovalFixture()
	submitExpense(t, f, decPtr("100"))

	st := f.requests.records[recordKey(repository.RecordKindExpense, "exp-1")]
	require.NotNil(t, st)
	assert.Equal(t, repository.StatusPending, st.approvalStatus)
	assert.False(t, st.lockedTouched, "submission must not touch is_locked")
}

func TestCreateApprovalRequest_NotifiesApprovers(t *testing.T) {
	f := newApprovalFixture()
	submitExpense(t, f, nil)

	require.Len(t, f.notifier.events, 1)
	event := f.notifier.events[0]
	assert.Equal(t, "approval_required", event.EventType)
	assert.ElementsMatch(t, []string{"u-acct-1", "u-acct-2"}, event.Recipients)
	assert.Equal(t, "exp-1", event.RecordID)
}

func TestCreateApprovalRequest_IdentityFailureDoesNotFailSubmission(t *testing.T) {
	f := newApprovalFixture()
	f.identity.err = fmt.Errorf("identity service down")

	req := submitExpense(t, f, nil)
	assert.Equal(t, repository.StatusPending, req.Status)
	assert.Empty(t, f.notifier.events, "no event without recipients")
}

func TestCreateApprovalRequest_AuditFailureDoesNotFailSubmission(t *testing.T) {
	f := newApprovalFixture()
	f.audit.err = fmt.Errorf("audit table unavailable")

	req := submitExpense(t, f, nil)
	assert.Equal(t, repository.StatusPending, req.Status)
}

// ── resolution ───────────────────────────────────────────────────────────────

func TestResolveApprovalRequest_Approve(t *testing.T) {
	f := newApprovalFixture()
	req := submitExpense(t, f, decPtr("250"))
	ctx := context.Background()

	err := f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionApprove, nil)
	require.NoError(t, err)

	stored, err := f.svc.GetApprovalRequest(ctx, approver(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, stored.Status)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, "u-fm-1", *stored.ApprovedBy)

	st := f.requests.records[recordKey(repository.RecordKindExpense, "exp-1")]
	assert.Equal(t, repository.StatusApproved, st.approvalStatus)
	assert.True(t, st.locked, "approval must lock the record")

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, "approval_approved", last.EventType)
	assert.Equal(t, []string{"u-emp-1"}, last.Recipients)
}

func TestResolveApprovalRequest_Reject(t *testing.T) {
	f := newApprovalFixture()
	req := submitExpense(t, f, decPtr("250"))
	reason := "missing receipt"

	err := f.svc.ResolveApprovalRequest(context.Background(), approver(), req.ID, ActionReject, &reason)
	require.NoError(t, err)

	st := f.requests.records[recordKey(repository.RecordKindExpense, "exp-1")]
	assert.Equal(t, repository.StatusRejected, st.approvalStatus)
	assert.False(t, st.locked, "rejection must leave the record unlocked")

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, "approval_rejected", last.EventType)
	assert.True(t, strings.Contains(last.Message, reason), "message must carry the rejection reason")
}

func TestResolveApprovalRequest_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown request", func(t *testing.T) {
		f := newApprovalFixture()
		err := f.svc.ResolveApprovalRequest(ctx, approver(), "req-missing", ActionApprove, nil)
		assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	})

	t.Run("ineligible role", func(t *testing.T) {
		f := newApprovalFixture()
		req := submitExpense(t, f, nil)
		actor := ActorContext{UserID: "u-x", CompanyID: testCompany, Role: "employee"}
		err := f.svc.ResolveApprovalRequest(ctx, actor, req.ID, ActionApprove, nil)
		assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
	})

	t.Run("any senior role may resolve, not only the routed one", func(t *testing.T) {
		f := newApprovalFixture(tier("0", "financial_manager"))
		req := submitExpense(t, f, decPtr("10"))
		actor := ActorContext{UserID: "u-a", CompanyID: testCompany, Role: "admin"}
		err := f.svc.ResolveApprovalRequest(ctx, actor, req.ID, ActionApprove, nil)
		assert.NoError(t, err)
	})

	t.Run("reject without reason", func(t *testing.T) {
		f := newApprovalFixture()
		req := submitExpense(t, f, nil)
		err := f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionReject, nil)
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newApprovalFixture()
		req := submitExpense(t, f, nil)
		err := f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ResolveAction("defer"), nil)
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
	})
}

func TestResolveApprovalRequest_TerminalStateIsEnforced(t *testing.T) {
	f := newApprovalFixture()
	req := submitExpense(t, f, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionApprove, nil))

	err := f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionApprove, nil)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err), "re-approving a resolved request must conflict")

	reason := "changed my mind"
	err = f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionReject, &reason)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err), "rejecting a resolved request must conflict")
}

func TestResolveApprovalRequest_ConcurrentResolversExactlyOneWins(t *testing.T) {
	f := newApprovalFixture()
	req := submitExpense(t, f, nil)
	ctx := context.Background()
	reason := "duplicate claim"

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionApprove, nil)
	}()
	go func() {
		defer wg.Done()
		errs[1] = f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionReject, &reason)
	}()
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		if err == nil {
			successes++
		} else if apperr.Is(err, apperr.CodeConflict) {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one resolver must win")
	assert.Equal(t, 1, conflicts, "the loser must observe a conflict")

	stored, err := f.svc.GetApprovalRequest(ctx, approver(), req.ID)
	require.NoError(t, err)
	st := f.requests.records[recordKey(repository.RecordKindExpense, "exp-1")]

	if errs[0] == nil {
		assert.Equal(t, repository.StatusApproved, stored.Status)
		assert.True(t, st.locked)
	} else {
		assert.Equal(t, repository.StatusRejected, stored.Status)
		assert.False(t, st.locked)
	}
}

// ── queries ──────────────────────────────────────────────────────────────────

func TestListPendingForRole(t *testing.T) {
	f := newApprovalFixture(tier("0", "financial_manager"))
	submitExpense(t, f, decPtr("50"))

	pending, err := f.svc.ListPendingForRole(context.Background(), approver(), "")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestGetPendingForRecord(t *testing.T) {
	f := newApprovalFixture()
	req := submitExpense(t, f, nil)
	ctx := context.Background()

	got, err := f.svc.GetPendingForRecord(ctx, requester(), repository.RecordKindExpense, "exp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, req.ID, got.ID)

	require.NoError(t, f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionApprove, nil))
	got, err = f.svc.GetPendingForRecord(ctx, requester(), repository.RecordKindExpense, "exp-1")
	require.NoError(t, err)
	assert.Nil(t, got, "a resolved request is no longer pending")
}

func TestWorkflowTierAdministration(t *testing.T) {
	f := newApprovalFixture()
	ctx := context.Background()
	admin := ActorContext{UserID: "u-admin", CompanyID: testCompany, Role: "admin"}

	wf := &repository.ApprovalWorkflow{
		WorkflowType: "payment",
		MinAmount:    mustDec("10000"),
		RequiredRole: "financial_manager",
	}
	require.NoError(t, f.svc.CreateWorkflowTier(ctx, admin, wf))
	assert.Equal(t, testCompany, wf.CompanyID)
	assert.True(t, wf.IsActive)

	tiers, err := f.svc.ListWorkflowTiers(ctx, admin, true)
	require.NoError(t, err)
	require.Len(t, tiers, 1)

	require.NoError(t, f.svc.SetWorkflowTierActive(ctx, admin, wf.ID, false))
	tiers, err = f.svc.ListWorkflowTiers(ctx, admin, true)
	require.NoError(t, err)
	assert.Empty(t, tiers)

	err = f.svc.CreateWorkflowTier(ctx, requester(), &repository.ApprovalWorkflow{
		WorkflowType: "payment",
		RequiredRole: "admin",
	})
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err), "non-approver roles may not manage tiers")

	err = f.svc.CreateWorkflowTier(ctx, admin, &repository.ApprovalWorkflow{RequiredRole: "admin"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestAuditTrailRecordsLifecycle(t *testing.T) {
	f := newApprovalFixture()
	req := submitExpense(t, f, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.ResolveApprovalRequest(ctx, approver(), req.ID, ActionApprove, nil))

	trail, err := f.svc.GetAuditTrail(ctx, approver(), repository.RecordKindExpense, "exp-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "submitted", trail[0].Action)
	assert.Equal(t, "approved", trail[1].Action)
}
