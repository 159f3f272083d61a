package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTieredRatesValidate(t *testing.T) {
	d := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }
	dp := func(v string) *decimal.Decimal {
		out := decimal.RequireFromString(v)
		return &out
	}

	testCases := []struct {
		name    string
		tiers   *TieredRates
		wantErr bool
	}{
		{
			name:  "nil schedule",
			tiers: nil,
		},
		{
			name:  "empty schedule",
			tiers: &TieredRates{},
		},
		{
			name: "contiguous with open tail",
			tiers: &TieredRates{Tiers: []PriceTier{
				{From: decimal.Zero, To: dp("1000"), Rate: d("0.01")},
				{From: d("1000"), To: dp("10000"), Rate: d("0.008")},
				{From: d("10000"), Rate: d("0.005")},
			}},
		},
		{
			name: "single bounded tier",
			tiers: &TieredRates{Tiers: []PriceTier{
				{From: decimal.Zero, To: dp("100"), Rate: d("1")},
			}},
		},
		{
			name: "first tier must start at zero",
			tiers: &TieredRates{Tiers: []PriceTier{
				{From: d("10"), To: dp("100"), Rate: d("1")},
			}},
			wantErr: true,
		},
		{
			name: "gap between tiers",
			tiers: &TieredRates{Tiers: []PriceTier{
				{From: decimal.Zero, To: dp("100"), Rate: d("1")},
				{From: d("200"), Rate: d("0.5")},
			}},
			wantErr: true,
		},
		{
			name: "inverted bounds",
			tiers: &TieredRates{Tiers: []PriceTier{
				{From: decimal.Zero, To: dp("0"), Rate: d("1")},
			}},
			wantErr: true,
		},
		{
			name: "unbounded tier not last",
			tiers: &TieredRates{Tiers: []PriceTier{
				{From: decimal.Zero, Rate: d("1")},
				{From: d("100"), Rate: d("0.5")},
			}},
			wantErr: true,
		},
		{
			name: "negative rate",
			tiers: &TieredRates{Tiers: []PriceTier{
				{From: decimal.Zero, To: dp("100"), Rate: d("-1")},
			}},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tiers.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBillingUnitValidate(t *testing.T) {
	for _, u := range []BillingUnit{BillingUnitTokens, BillingUnitRequests, BillingUnitPages, BillingUnitBytes, BillingUnitMinutes, BillingUnitCustom} {
		assert.NoError(t, u.Validate())
	}
	// Unknown is an output-only marker, never accepted on a rule.
	assert.Error(t, BillingUnitUnknown.Validate())
	assert.Error(t, BillingUnit("gallons").Validate())
}

func TestCalculationMethodValidate(t *testing.T) {
	for _, m := range []CalculationMethod{CalculationMethodMultiply, CalculationMethodSum, CalculationMethodCustom} {
		assert.NoError(t, m.Validate())
	}
	assert.Error(t, CalculationMethodNone.Validate())
}
