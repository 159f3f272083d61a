package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/domain/billingrule"
	"github.com/usageline/usageline/internal/domain/events"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

type PricingServiceSuite struct {
	suite.Suite
	ctx     context.Context
	service PricingService
	store   *testutil.InMemoryBillingRuleStore
}

func TestPricingService(t *testing.T) {
	suite.Run(t, new(PricingServiceSuite))
}

func (s *PricingServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.store = testutil.NewInMemoryBillingRuleStore()
	s.service = NewPricingService(s.store, logger.L)
}

func (s *PricingServiceSuite) newLLMEvent(totalTokens float64, model string) *events.UsageEvent {
	e := events.NewUsageEvent(types.DefaultTenantID, "", time.Now().UTC())
	e.UserID = "user-1"
	e.ServiceType = types.ServiceTypeLLM
	e.ServiceProvider = "openai"
	e.Metrics = types.Metrics{"total_tokens": totalTokens}
	if model != "" {
		e.Metadata = types.Metadata{"model": model}
	}
	return e
}

func (s *PricingServiceSuite) addRule(mutate func(*billingrule.BillingRule)) *billingrule.BillingRule {
	rule := billingrule.NewBillingRule(types.ServiceTypeLLM, "openai")
	rule.BillingUnit = types.BillingUnitTokens
	rule.EffectiveFrom = time.Now().UTC().Add(-time.Hour)
	if mutate != nil {
		mutate(rule)
	}
	s.Require().NoError(s.store.Create(s.ctx, rule))
	return rule
}

func (s *PricingServiceSuite) TestMultiplyPricing() {
	s.addRule(func(r *billingrule.BillingRule) {
		r.RatePerUnit = decimal.RequireFromString("0.00003")
	})

	info, err := s.service.PriceEvent(s.ctx, s.newLLMEvent(1500, ""))
	s.NoError(err)
	s.Equal("0.045", info.TotalCost.String())
	s.Equal(types.BillingUnitTokens, info.BillingUnit)
	s.Equal("1500", info.UnitCount.String())
}

func (s *PricingServiceSuite) TestTieredPricing() {
	to1 := decimal.NewFromInt(1000)
	to2 := decimal.NewFromInt(10000)
	s.addRule(func(r *billingrule.BillingRule) {
		r.TieredRates = &types.TieredRates{Tiers: []types.PriceTier{
			{From: decimal.Zero, To: &to1, Rate: decimal.RequireFromString("0.01")},
			{From: to1, To: &to2, Rate: decimal.RequireFromString("0.008")},
			{From: to2, Rate: decimal.RequireFromString("0.005")},
		}}
	})

	// 1000*0.01 + 9000*0.008 + 5000*0.005
	info, err := s.service.PriceEvent(s.ctx, s.newLLMEvent(15000, ""))
	s.NoError(err)
	s.Equal("107", info.TotalCost.String())
}

func (s *PricingServiceSuite) TestModelSpecificRuleWins() {
	s.addRule(func(r *billingrule.BillingRule) {
		r.RatePerUnit = decimal.RequireFromString("0.00001")
	})
	specific := s.addRule(func(r *billingrule.BillingRule) {
		r.ModelOrTier = "gpt-4"
		r.RatePerUnit = decimal.RequireFromString("0.00006")
	})

	info, err := s.service.PriceEvent(s.ctx, s.newLLMEvent(1000, "gpt-4"))
	s.NoError(err)
	s.Equal(specific.ID, info.RuleID)
	s.Equal("0.06", info.TotalCost.String())

	// An unmatched model falls back to the provider default.
	info, err = s.service.PriceEvent(s.ctx, s.newLLMEvent(1000, "gpt-3.5-turbo"))
	s.NoError(err)
	s.NotEqual(specific.ID, info.RuleID)
	s.Equal("0.01", info.TotalCost.String())
}

func (s *PricingServiceSuite) TestNewestDefaultWins() {
	s.addRule(func(r *billingrule.BillingRule) {
		r.RatePerUnit = decimal.RequireFromString("0.00001")
		r.EffectiveFrom = time.Now().UTC().Add(-48 * time.Hour)
	})
	newer := s.addRule(func(r *billingrule.BillingRule) {
		r.RatePerUnit = decimal.RequireFromString("0.00002")
		r.EffectiveFrom = time.Now().UTC().Add(-time.Hour)
	})

	info, err := s.service.PriceEvent(s.ctx, s.newLLMEvent(1000, ""))
	s.NoError(err)
	s.Equal(newer.ID, info.RuleID)
}

func (s *PricingServiceSuite) TestMinimumCharge() {
	s.addRule(func(r *billingrule.BillingRule) {
		r.RatePerUnit = decimal.RequireFromString("0.00003")
		r.MinimumCharge = decimal.RequireFromString("0.01")
	})

	info, err := s.service.PriceEvent(s.ctx, s.newLLMEvent(10, ""))
	s.NoError(err)
	s.Equal("0.01", info.TotalCost.String())
	s.Equal("0.0003", info.BaseCost.String())
}

func (s *PricingServiceSuite) TestNoRuleYieldsZeroCost() {
	info, err := s.service.PriceEvent(s.ctx, s.newLLMEvent(1500, ""))
	s.NoError(err)
	s.True(info.TotalCost.IsZero())
	s.Equal(types.BillingUnitUnknown, info.BillingUnit)
	s.Equal(types.CalculationMethodNone, info.CalculationMethod)
	s.Empty(info.RuleID)
}

func (s *PricingServiceSuite) TestExpiredRuleIgnored() {
	until := time.Now().UTC().Add(-time.Hour)
	s.addRule(func(r *billingrule.BillingRule) {
		r.RatePerUnit = decimal.RequireFromString("0.00003")
		r.EffectiveFrom = time.Now().UTC().Add(-48 * time.Hour)
		r.EffectiveUntil = &until
	})

	info, err := s.service.PriceEvent(s.ctx, s.newLLMEvent(1500, ""))
	s.NoError(err)
	s.True(info.TotalCost.IsZero())
}

func (s *PricingServiceSuite) TestSumMethod() {
	rule := billingrule.NewBillingRule(types.ServiceTypeCustom, "acme")
	rule.BillingUnit = types.BillingUnitCustom
	rule.CalculationMethod = types.CalculationMethodSum
	rule.RatePerUnit = decimal.RequireFromString("0.5")
	rule.EffectiveFrom = time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(s.store.Create(s.ctx, rule))

	e := events.NewUsageEvent(types.DefaultTenantID, "", time.Now().UTC())
	e.UserID = "user-1"
	e.ServiceType = types.ServiceTypeCustom
	e.ServiceProvider = "acme"
	e.EventType = "render"
	e.Metrics = types.Metrics{"frames": float64(10), "layers": float64(4)}

	info, err := s.service.PriceEvent(s.ctx, e)
	s.NoError(err)
	// (10 + 4) * 0.5
	s.Equal("7", info.TotalCost.String())
}

func (s *PricingServiceSuite) TestCostRounding() {
	s.addRule(func(r *billingrule.BillingRule) {
		r.RatePerUnit = decimal.RequireFromString("0.0000001")
	})

	info, err := s.service.PriceEvent(s.ctx, s.newLLMEvent(3, ""))
	s.NoError(err)
	// 0.0000003 rounds to six decimal places
	s.Equal("0", info.TotalCost.String())
}
