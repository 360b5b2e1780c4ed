package service

import (
	"context"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/logger"
	"github.com/zafin-ops/be-fin-controls/internal/tax"
)

// PayrollService computes statutory payroll breakdowns against a validated
// tax schedule. The engine itself is pure; this service pins the schedule in
// use and handles per-run batching.
type PayrollService struct {
	schedule tax.Schedule
	log      *logger.Logger
}

// NewPayrollService creates a PayrollService, validating the schedule once
// up front so calculation paths never see malformed policy data.
func NewPayrollService(schedule tax.Schedule, log *logger.Logger) (*PayrollService, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return &PayrollService{schedule: schedule, log: log}, nil
}

// Schedule returns the schedule in force.
func (s *PayrollService) Schedule() tax.Schedule {
	return s.schedule
}

// Calculate computes the statutory breakdown for one employee.
func (s *PayrollService) Calculate(ctx context.Context, in tax.PayrollInput) (*tax.PayrollResult, error) {
	return s.schedule.CalculatePayroll(in)
}

// EmployeePayroll pairs an employee with their compensation inputs for a run.
type EmployeePayroll struct {
	EmployeeID string           `json:"employee_id"`
	Input      tax.PayrollInput `json:"input"`
}

// EmployeePayrollResult is one employee's computed breakdown.
type EmployeePayrollResult struct {
	EmployeeID string             `json:"employee_id"`
	Result     *tax.PayrollResult `json:"result"`
}

// CalculateRun computes the breakdown for every employee in a payroll run.
// The run fails on the first invalid employee input so a partial run is
// never presented as complete.
func (s *PayrollService) CalculateRun(ctx context.Context, employees []EmployeePayroll) ([]EmployeePayrollResult, error) {
	if len(employees) == 0 {
		return nil, apperr.InvalidInput("employees", "must not be empty")
	}

	results := make([]EmployeePayrollResult, 0, len(employees))
	for _, emp := range employees {
		if emp.EmployeeID == "" {
			return nil, apperr.InvalidInput("employee_id", "must not be empty")
		}
		res, err := s.schedule.CalculatePayroll(emp.Input)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeValidation,
				"payroll input rejected for employee "+emp.EmployeeID)
		}
		results = append(results, EmployeePayrollResult{EmployeeID: emp.EmployeeID, Result: res})
	}

	s.log.Info().Int("employees", len(results)).Msg("Payroll run calculated")
	return results, nil
}
