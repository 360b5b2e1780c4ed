// Package tax implements the statutory payroll calculations: progressive
// PAYE, capped NAPSA pension contributions and flat-rate NHIMA health
// insurance. All functions are pure and safe for concurrent use; amounts
// are decimal with round-half-up to 2 places at every published step.
package tax

import (
	"github.com/shopspring/decimal"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
)

// Contribution is an employee/employer split of a statutory contribution.
type Contribution struct {
	Employee decimal.Decimal `json:"employee"`
	Employer decimal.Decimal `json:"employer"`
}

// CalculatePAYE computes progressive income tax over the schedule's bands.
// Each band taxes min(remaining, bandWidth) at its rate; the result is
// rounded to 2 decimal places.
func (s Schedule) CalculatePAYE(taxableIncome decimal.Decimal) (decimal.Decimal, error) {
	if taxableIncome.IsNegative() {
		return decimal.Zero, apperr.InvalidInput("taxable_income", "must not be negative")
	}

	total := decimal.Zero
	remaining := taxableIncome

	for _, band := range s.PAYEBands {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}

		portion := remaining
		if band.Max != nil {
			width := band.Max.Sub(band.Min)
			if portion.GreaterThan(width) {
				portion = width
			}
		}

		total = total.Add(portion.Mul(band.Rate))
		remaining = remaining.Sub(portion)
	}

	return total.Round(2), nil
}

// CalculateNAPSA computes the pension contribution on gross salary. The
// employee share is capped at the schedule ceiling; the employer matches the
// employee exactly.
func (s Schedule) CalculateNAPSA(grossSalary decimal.Decimal) (Contribution, error) {
	if grossSalary.IsNegative() {
		return Contribution{}, apperr.InvalidInput("gross_salary", "must not be negative")
	}

	employee := grossSalary.Mul(s.NAPSARate).Round(2)
	if ceiling := s.NAPSACeiling(); employee.GreaterThan(ceiling) {
		employee = ceiling
	}

	return Contribution{Employee: employee, Employer: employee}, nil
}

// CalculateNHIMA computes the health-insurance contribution on basic salary
// only; allowances are excluded by statute. Employee and employer pay the
// same flat rate.
func (s Schedule) CalculateNHIMA(basicSalary decimal.Decimal) (Contribution, error) {
	if basicSalary.IsNegative() {
		return Contribution{}, apperr.InvalidInput("basic_salary", "must not be negative")
	}

	amount := basicSalary.Mul(s.NHIMARate).Round(2)
	return Contribution{Employee: amount, Employer: amount}, nil
}
