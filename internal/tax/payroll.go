package tax

import (
	"github.com/shopspring/decimal"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
)

// PayrollInput is one employee's compensation for a payroll run.
type PayrollInput struct {
	BasicSalary        decimal.Decimal `json:"basic_salary"`
	HousingAllowance   decimal.Decimal `json:"housing_allowance"`
	TransportAllowance decimal.Decimal `json:"transport_allowance"`
	OtherAllowances    decimal.Decimal `json:"other_allowances"`
	Advances           decimal.Decimal `json:"advances"`
	OtherDeductions    decimal.Decimal `json:"other_deductions"`
}

// PayrollResult is the computed statutory breakdown for one employee.
// It is a value, not a persisted record; payroll runs recompute it from
// compensation inputs.
type PayrollResult struct {
	GrossSalary     decimal.Decimal `json:"gross_salary"`
	PAYE            decimal.Decimal `json:"paye"`
	NAPSA           Contribution    `json:"napsa"`
	NHIMA           Contribution    `json:"nhima"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	NetSalary       decimal.Decimal `json:"net_salary"`
}

// CalculatePayroll aggregates the statutory calculations for one employee.
// Gross = basic + allowances. NAPSA is assessed on gross, NHIMA on basic,
// PAYE on gross (statutory deductions do not reduce the PAYE base in this
// jurisdiction). Net = gross - (paye + napsaEmployee + nhimaEmployee +
// advances + otherDeductions).
func (s Schedule) CalculatePayroll(in PayrollInput) (*PayrollResult, error) {
	for _, c := range []struct {
		field string
		v     decimal.Decimal
	}{
		{"basic_salary", in.BasicSalary},
		{"housing_allowance", in.HousingAllowance},
		{"transport_allowance", in.TransportAllowance},
		{"other_allowances", in.OtherAllowances},
		{"advances", in.Advances},
		{"other_deductions", in.OtherDeductions},
	} {
		if c.v.IsNegative() {
			return nil, apperr.InvalidInput(c.field, "must not be negative")
		}
	}

	gross := in.BasicSalary.
		Add(in.HousingAllowance).
		Add(in.TransportAllowance).
		Add(in.OtherAllowances).
		Round(2)

	napsa, err := s.CalculateNAPSA(gross)
	if err != nil {
		return nil, err
	}
	nhima, err := s.CalculateNHIMA(in.BasicSalary)
	if err != nil {
		return nil, err
	}
	paye, err := s.CalculatePAYE(gross)
	if err != nil {
		return nil, err
	}

	totalDeductions := paye.
		Add(napsa.Employee).
		Add(nhima.Employee).
		Add(in.Advances).
		Add(in.OtherDeductions).
		Round(2)

	return &PayrollResult{
		GrossSalary:     gross,
		PAYE:            paye,
		NAPSA:           napsa,
		NHIMA:           nhima,
		TotalDeductions: totalDeductions,
		NetSalary:       gross.Sub(totalDeductions).Round(2),
	}, nil
}
