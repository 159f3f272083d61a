package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/domain/billingrule"
	"github.com/usageline/usageline/internal/types"
	"github.com/usageline/usageline/internal/validator"
)

// CreateBillingRuleRequest defines a new pricing rule.
type CreateBillingRuleRequest struct {
	ServiceType       types.ServiceType       `json:"service_type" validate:"required"`
	ServiceProvider   string                  `json:"service_provider" validate:"required"`
	ModelOrTier       string                  `json:"model_or_tier,omitempty"`
	BillingUnit       types.BillingUnit       `json:"billing_unit" validate:"required"`
	RatePerUnit       decimal.Decimal         `json:"rate_per_unit"`
	TieredRates       *types.TieredRates      `json:"tiered_rates,omitempty"`
	MinimumCharge     decimal.Decimal         `json:"minimum_charge"`
	CalculationMethod types.CalculationMethod `json:"calculation_method"`
	EffectiveFrom     *time.Time              `json:"effective_from,omitempty"`
	EffectiveUntil    *time.Time              `json:"effective_until,omitempty"`
}

func (r *CreateBillingRuleRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ToBillingRule builds the domain rule; full domain validation runs on
// the result.
func (r *CreateBillingRuleRequest) ToBillingRule() *billingrule.BillingRule {
	rule := billingrule.NewBillingRule(r.ServiceType, r.ServiceProvider)
	rule.ModelOrTier = r.ModelOrTier
	rule.BillingUnit = r.BillingUnit
	rule.RatePerUnit = r.RatePerUnit
	rule.TieredRates = r.TieredRates
	rule.MinimumCharge = r.MinimumCharge
	if r.CalculationMethod != "" {
		rule.CalculationMethod = r.CalculationMethod
	}
	if r.EffectiveFrom != nil {
		rule.EffectiveFrom = r.EffectiveFrom.UTC()
	}
	if r.EffectiveUntil != nil {
		until := r.EffectiveUntil.UTC()
		rule.EffectiveUntil = &until
	}
	return rule
}

// UpdateBillingRuleRequest changes mutable rule fields.
type UpdateBillingRuleRequest struct {
	RatePerUnit    *decimal.Decimal   `json:"rate_per_unit,omitempty"`
	TieredRates    *types.TieredRates `json:"tiered_rates,omitempty"`
	MinimumCharge  *decimal.Decimal   `json:"minimum_charge,omitempty"`
	EffectiveUntil *time.Time         `json:"effective_until,omitempty"`
	IsActive       *bool              `json:"is_active,omitempty"`
}

// Apply copies the set fields onto the rule.
func (r *UpdateBillingRuleRequest) Apply(rule *billingrule.BillingRule) {
	if r.RatePerUnit != nil {
		rule.RatePerUnit = *r.RatePerUnit
	}
	if r.TieredRates != nil {
		rule.TieredRates = r.TieredRates
	}
	if r.MinimumCharge != nil {
		rule.MinimumCharge = *r.MinimumCharge
	}
	if r.EffectiveUntil != nil {
		until := r.EffectiveUntil.UTC()
		rule.EffectiveUntil = &until
	}
	if r.IsActive != nil {
		rule.IsActive = *r.IsActive
	}
}
