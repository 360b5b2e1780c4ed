package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/logger"
	"github.com/zafin-ops/be-fin-controls/internal/tax"
)

func TestNewPayrollService_RejectsBadSchedule(t *testing.T) {
	bad := tax.DefaultSchedule()
	bad.PAYEBands = bad.PAYEBands[1:] // no longer starts at zero

	_, err := NewPayrollService(bad, logger.Nop())
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestCalculateRun(t *testing.T) {
	svc, err := NewPayrollService(tax.DefaultSchedule(), logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	results, err := svc.CalculateRun(ctx, []EmployeePayroll{
		{EmployeeID: "emp-1", Input: tax.PayrollInput{BasicSalary: mustDec("8000")}},
		{EmployeeID: "emp-2", Input: tax.PayrollInput{BasicSalary: mustDec("30000")}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "emp-1", results[0].EmployeeID)
	assert.True(t, results[0].Result.NetSalary.LessThan(results[0].Result.GrossSalary))
	// High earner hits the NAPSA ceiling.
	assert.True(t, results[1].Result.NAPSA.Employee.Equal(mustDec("1342")),
		"got %s", results[1].Result.NAPSA.Employee)
}

func TestCalculateRun_Validation(t *testing.T) {
	svc, err := NewPayrollService(tax.DefaultSchedule(), logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.CalculateRun(ctx, nil)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = svc.CalculateRun(ctx, []EmployeePayroll{{Input: tax.PayrollInput{BasicSalary: mustDec("1000")}}})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err), "employee id required")

	_, err = svc.CalculateRun(ctx, []EmployeePayroll{
		{EmployeeID: "emp-1", Input: tax.PayrollInput{BasicSalary: mustDec("-1")}},
	})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err), "negative input rejected")
}
