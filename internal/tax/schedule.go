package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
)

// Band is one progressive PAYE bracket. Max is nil for the open-ended top
// band. Min and Max are monthly amounts in the local currency; Rate is a
// fraction (0.20 = 20%).
type Band struct {
	Min  decimal.Decimal  `json:"min"`
	Max  *decimal.Decimal `json:"max,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

// Schedule is the statutory policy data the tax engine computes against.
// Rates and bands change by statutory instrument, so they are data rather
// than code; the progressive-band algorithm itself is fixed.
type Schedule struct {
	PAYEBands    []Band          `json:"paye_bands"`
	NAPSARate    decimal.Decimal `json:"napsa_rate"`
	NAPSAMaxBase decimal.Decimal `json:"napsa_max_base"`
	NHIMARate    decimal.Decimal `json:"nhima_rate"`
}

// DefaultSchedule returns the current Zambian monthly schedule:
// PAYE bands 0% to 5100, 20% to 6800, 30% to 8900, 37% above;
// NAPSA 5% of gross capped at a 26840 pensionable base; NHIMA 1% of basic.
func DefaultSchedule() Schedule {
	d := decimal.NewFromInt
	max := func(v int64) *decimal.Decimal {
		m := d(v)
		return &m
	}
	pct := func(v int64) decimal.Decimal { return decimal.New(v, -2) }

	return Schedule{
		PAYEBands: []Band{
			{Min: d(0), Max: max(5100), Rate: pct(0)},
			{Min: d(5100), Max: max(6800), Rate: pct(20)},
			{Min: d(6800), Max: max(8900), Rate: pct(30)},
			{Min: d(8900), Max: nil, Rate: pct(37)},
		},
		NAPSARate:    pct(5),
		NAPSAMaxBase: d(26840),
		NHIMARate:    pct(1),
	}
}

// Validate checks that the PAYE bands cover [0, +inf) with no gaps or
// overlaps and that all rates are sane fractions.
func (s Schedule) Validate() error {
	if len(s.PAYEBands) == 0 {
		return apperr.InvalidInput("paye_bands", "at least one band is required")
	}
	if !s.PAYEBands[0].Min.IsZero() {
		return apperr.InvalidInput("paye_bands", "first band must start at 0")
	}

	for i, b := range s.PAYEBands {
		if b.Rate.IsNegative() || b.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return apperr.InvalidInput("paye_bands", fmt.Sprintf("band %d rate out of range", i))
		}

		last := i == len(s.PAYEBands)-1
		if last {
			if b.Max != nil {
				return apperr.InvalidInput("paye_bands", "last band must be open-ended")
			}
			continue
		}
		if b.Max == nil {
			return apperr.InvalidInput("paye_bands", fmt.Sprintf("band %d must have an upper bound", i))
		}
		if b.Max.LessThanOrEqual(b.Min) {
			return apperr.InvalidInput("paye_bands", fmt.Sprintf("band %d upper bound must exceed lower bound", i))
		}
		if !b.Max.Equal(s.PAYEBands[i+1].Min) {
			return apperr.InvalidInput("paye_bands", fmt.Sprintf("band %d and %d are not contiguous", i, i+1))
		}
	}

	if s.NAPSARate.IsNegative() || s.NAPSAMaxBase.IsNegative() || s.NHIMARate.IsNegative() {
		return apperr.InvalidInput("schedule", "rates and bases must not be negative")
	}

	return nil
}

// NAPSACeiling is the per-party contribution cap: the rate applied to the
// maximum pensionable base. The cap applies to the computed contribution,
// not to gross salary, so it stays correct when the rate changes.
func (s Schedule) NAPSACeiling() decimal.Decimal {
	return s.NAPSAMaxBase.Mul(s.NAPSARate).Round(2)
}
