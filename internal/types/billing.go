package types

import (
	"github.com/shopspring/decimal"

	ierr "github.com/usageline/usageline/internal/errors"
)

// BillingUnit is the dimension along which cost accrues for a billing rule.
type BillingUnit string

const (
	BillingUnitTokens   BillingUnit = "tokens"
	BillingUnitRequests BillingUnit = "requests"
	BillingUnitPages    BillingUnit = "pages"
	BillingUnitBytes    BillingUnit = "bytes"
	BillingUnitMinutes  BillingUnit = "minutes"
	BillingUnitCustom   BillingUnit = "custom"

	// BillingUnitUnknown is returned in billing info when no rule matched
	// the event. Cost is zero in that case.
	BillingUnitUnknown BillingUnit = "unknown"
)

func (u BillingUnit) Validate() error {
	switch u {
	case BillingUnitTokens, BillingUnitRequests, BillingUnitPages,
		BillingUnitBytes, BillingUnitMinutes, BillingUnitCustom:
		return nil
	default:
		return ierr.NewError("invalid billing unit").
			WithHint("Invalid billing unit").
			WithReportableDetails(map[string]any{"billing_unit": u}).
			Mark(ierr.ErrValidation)
	}
}

// CalculationMethod selects how unit count and rate combine into a cost.
type CalculationMethod string

const (
	CalculationMethodMultiply CalculationMethod = "multiply"
	CalculationMethodSum      CalculationMethod = "sum"
	CalculationMethodCustom   CalculationMethod = "custom"

	// CalculationMethodNone appears only in zero-cost billing info.
	CalculationMethodNone CalculationMethod = "none"
)

func (m CalculationMethod) Validate() error {
	switch m {
	case CalculationMethodMultiply, CalculationMethodSum, CalculationMethodCustom:
		return nil
	default:
		return ierr.NewError("invalid calculation method").
			WithHint("Invalid calculation method").
			WithReportableDetails(map[string]any{"calculation_method": m}).
			Mark(ierr.ErrValidation)
	}
}

// PriceTier is one segment of a piecewise tiered rate schedule.
// To == nil means the tier is unbounded above.
type PriceTier struct {
	From decimal.Decimal  `json:"from"`
	To   *decimal.Decimal `json:"to,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

// TieredRates is an ordered, contiguous tier schedule. When present on a
// billing rule it overrides the flat rate.
type TieredRates struct {
	Tiers []PriceTier `json:"tiers"`
}

func (t *TieredRates) Validate() error {
	if t == nil || len(t.Tiers) == 0 {
		return nil
	}

	prev := decimal.Zero
	for i, tier := range t.Tiers {
		if tier.Rate.IsNegative() {
			return ierr.NewError("tier rate must be non-negative").
				WithHint("Tier rates must be non-negative").
				WithReportableDetails(map[string]any{"tier": i, "rate": tier.Rate}).
				Mark(ierr.ErrValidation)
		}
		if !tier.From.Equal(prev) {
			return ierr.NewError("tiers must be contiguous").
				WithHint("Each tier must start where the previous tier ends").
				WithReportableDetails(map[string]any{"tier": i, "from": tier.From, "expected": prev}).
				Mark(ierr.ErrValidation)
		}
		if tier.To != nil {
			if !tier.To.GreaterThan(tier.From) {
				return ierr.NewError("tier upper bound must exceed lower bound").
					WithHint("Tier 'to' must be greater than 'from'").
					WithReportableDetails(map[string]any{"tier": i}).
					Mark(ierr.ErrValidation)
			}
			prev = *tier.To
		} else if i != len(t.Tiers)-1 {
			return ierr.NewError("only the last tier may be unbounded").
				WithHint("Only the final tier may omit 'to'").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
