package billingrule

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// BillingRule prices events for one (service_type, provider) pair. A
// rule with ModelOrTier set applies only to events whose metadata model
// matches; a rule with it empty is the provider default. Rules are
// effective over [EffectiveFrom, EffectiveUntil); a nil EffectiveUntil
// is open-ended.
type BillingRule struct {
	ID string `db:"id" json:"id"`

	ServiceType     types.ServiceType `db:"service_type" json:"service_type"`
	ServiceProvider string            `db:"service_provider" json:"service_provider"`
	ModelOrTier     string            `db:"model_or_tier" json:"model_or_tier,omitempty"`

	BillingUnit       types.BillingUnit       `db:"billing_unit" json:"billing_unit"`
	RatePerUnit       decimal.Decimal         `db:"rate_per_unit" json:"rate_per_unit"`
	TieredRates       *types.TieredRates      `db:"tiered_rates" json:"tiered_rates,omitempty"`
	MinimumCharge     decimal.Decimal         `db:"minimum_charge" json:"minimum_charge"`
	CalculationMethod types.CalculationMethod `db:"calculation_method" json:"calculation_method"`

	EffectiveFrom  time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveUntil *time.Time `db:"effective_until" json:"effective_until,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewBillingRule creates a rule with a generated id, active and
// effective immediately unless overridden.
func NewBillingRule(serviceType types.ServiceType, provider string) *BillingRule {
	now := time.Now().UTC()
	return &BillingRule{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_RULE),
		ServiceType:       serviceType,
		ServiceProvider:   provider,
		CalculationMethod: types.CalculationMethodMultiply,
		RatePerUnit:       decimal.Zero,
		MinimumCharge:     decimal.Zero,
		EffectiveFrom:     now,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// EffectiveAt reports whether the rule's effective interval contains t.
func (r *BillingRule) EffectiveAt(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveUntil != nil && !t.Before(*r.EffectiveUntil) {
		return false
	}
	return true
}

func (r *BillingRule) Validate() error {
	if err := r.ServiceType.Validate(); err != nil {
		return err
	}
	if r.ServiceProvider == "" {
		return ierr.NewError("service provider is required").
			WithHint("Service provider is required").
			Mark(ierr.ErrValidation)
	}
	if err := r.BillingUnit.Validate(); err != nil {
		return err
	}
	if err := r.CalculationMethod.Validate(); err != nil {
		return err
	}
	if r.RatePerUnit.IsNegative() {
		return ierr.NewError("rate per unit must be non-negative").
			WithHint("Rate per unit must be non-negative").
			Mark(ierr.ErrValidation)
	}
	if r.MinimumCharge.IsNegative() {
		return ierr.NewError("minimum charge must be non-negative").
			WithHint("Minimum charge must be non-negative").
			Mark(ierr.ErrValidation)
	}
	if err := r.TieredRates.Validate(); err != nil {
		return err
	}
	if r.EffectiveUntil != nil && !r.EffectiveUntil.After(r.EffectiveFrom) {
		return ierr.NewError("effective_until must be after effective_from").
			WithHint("Effective interval must be non-empty").
			Mark(ierr.ErrValidation)
	}
	return nil
}
