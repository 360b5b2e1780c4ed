package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/logger"
	"github.com/zafin-ops/be-fin-controls/internal/repository"
	"github.com/zafin-ops/be-fin-controls/internal/service"
	"github.com/zafin-ops/be-fin-controls/internal/tax"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals   *service.ApprovalService
	periodLocks *service.PeriodLockService
	payroll     *service.PayrollService
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	approvals *service.ApprovalService,
	periodLocks *service.PeriodLockService,
	payroll *service.PayrollService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		approvals:   approvals,
		periodLocks: periodLocks,
		payroll:     payroll,
		log:         log,
	}
}

// actorFromRequest reads the authenticated caller's identity from the
// headers the API gateway sets after authentication.
func actorFromRequest(r *http.Request) service.ActorContext {
	return service.ActorContext{
		UserID:    r.Header.Get("X-User-ID"),
		CompanyID: r.Header.Get("X-Company-ID"),
		Role:      r.Header.Get("X-User-Role"),
	}
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(apperr.CodeOf(err)),
	})
}

// ── Approvals ────────────────────────────────────────────────────────────────

// CreateApproval handles approval submission requests
func (h *HTTPHandler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		WorkflowType string           `json:"workflow_type"`
		RecordKind   string           `json:"record_kind"`
		RecordID     string           `json:"record_id"`
		Amount       *decimal.Decimal `json:"amount,omitempty"`
		Notes        *string          `json:"notes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.approvals.CreateApprovalRequest(r.Context(), actorFromRequest(r), service.CreateApprovalRequestInput{
		WorkflowType: req.WorkflowType,
		RecordKind:   req.RecordKind,
		RecordID:     req.RecordID,
		Amount:       req.Amount,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

// ResolveApproval handles approve/reject requests
func (h *HTTPHandler) ResolveApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID              string  `json:"id"`
		Action          string  `json:"action"`
		RejectionReason *string `json:"rejection_reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.approvals.ResolveApprovalRequest(r.Context(), actorFromRequest(r),
		req.ID, service.ResolveAction(req.Action), req.RejectionReason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// GetApproval handles get approval request by id
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Approval ID is required", http.StatusBadRequest)
		return
	}

	req, err := h.approvals.GetApprovalRequest(r.Context(), actorFromRequest(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, req)
}

// ListPendingApprovals returns the pending inbox for a role
func (h *HTTPHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := h.approvals.ListPendingForRole(r.Context(), actorFromRequest(r), r.URL.Query().Get("role"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"approvals": pending,
		"total":     len(pending),
	})
}

// GetApprovalHistory returns the audit trail for a business record
func (h *HTTPHandler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind, err := repository.ParseRecordKind(r.URL.Query().Get("record_kind"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	recordID := r.URL.Query().Get("record_id")
	if recordID == "" {
		http.Error(w, "Record ID is required", http.StatusBadRequest)
		return
	}

	trail, err := h.approvals.GetAuditTrail(r.Context(), actorFromRequest(r), kind, recordID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"history": trail})
}

// ── Workflow tiers ───────────────────────────────────────────────────────────

// Workflows handles list and create for workflow tiers
func (h *HTTPHandler) Workflows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listWorkflows(w, r)
	case http.MethodPost:
		h.createWorkflow(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) listWorkflows(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	tiers, err := h.approvals.ListWorkflowTiers(r.Context(), actorFromRequest(r), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"workflows": tiers,
		"total":     len(tiers),
	})
}

func (h *HTTPHandler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkflowType string          `json:"workflow_type"`
		MinAmount    decimal.Decimal `json:"min_amount"`
		RequiredRole string          `json:"required_role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	wf := &repository.ApprovalWorkflow{
		WorkflowType: req.WorkflowType,
		MinAmount:    req.MinAmount,
		RequiredRole: req.RequiredRole,
	}
	if err := h.approvals.CreateWorkflowTier(r.Context(), actorFromRequest(r), wf); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, wf)
}

// DeactivateWorkflow disables a workflow tier
func (h *HTTPHandler) DeactivateWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.approvals.SetWorkflowTierActive(r.Context(), actorFromRequest(r), req.ID, false); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ── Period locks ─────────────────────────────────────────────────────────────

// PeriodLocks handles list and create for period locks
func (h *HTTPHandler) PeriodLocks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listPeriodLocks(w, r)
	case http.MethodPost:
		h.createPeriodLock(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) listPeriodLocks(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	locks, err := h.periodLocks.ListLocks(r.Context(), actorFromRequest(r), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"locks": locks,
		"total": len(locks),
	})
}

func (h *HTTPHandler) createPeriodLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PeriodStart string `json:"period_start"`
		PeriodEnd   string `json:"period_end"`
		LockReason  string `json:"lock_reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	start, err := parseDate(req.PeriodStart, "period_start")
	if err != nil {
		h.writeError(w, err)
		return
	}
	end, err := parseDate(req.PeriodEnd, "period_end")
	if err != nil {
		h.writeError(w, err)
		return
	}

	lock := &repository.PeriodLock{
		PeriodStart: start,
		PeriodEnd:   end,
		LockReason:  req.LockReason,
	}
	if err := h.periodLocks.CreateLock(r.Context(), actorFromRequest(r), lock); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, lock)
}

// DisablePeriodLock reopens a locked period
func (h *HTTPHandler) DisablePeriodLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.periodLocks.DisableLock(r.Context(), actorFromRequest(r), req.ID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// ValidateTransactionDate checks a transaction date against period locks
func (h *HTTPHandler) ValidateTransactionDate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date, err := parseDate(r.URL.Query().Get("date"), "date")
	if err != nil {
		h.writeError(w, err)
		return
	}

	actor := actorFromRequest(r)
	result, err := h.periodLocks.ValidateTransactionDate(r.Context(), actor.CompanyID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ── Payroll ──────────────────────────────────────────────────────────────────

// CalculatePayroll computes the statutory breakdown for one employee
func (h *HTTPHandler) CalculatePayroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in tax.PayrollInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.payroll.Calculate(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// CalculatePayrollRun computes the breakdown for a batch of employees
func (h *HTTPHandler) CalculatePayrollRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Employees []service.EmployeePayroll `json:"employees"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.payroll.CalculateRun(r.Context(), req.Employees)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}

func parseDate(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, apperr.InvalidInput(field, "must not be empty")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperr.InvalidInput(field, "must be YYYY-MM-DD")
	}
	return t, nil
}
