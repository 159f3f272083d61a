package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/domain/billingrule"
	"github.com/usageline/usageline/internal/domain/events"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/types"
)

// CostPrecision is the decimal scale every computed cost is rounded to.
const CostPrecision = 6

// PricingService selects the effective billing rule for an event and
// computes its cost. No rule match is not an error; it yields a
// zero-cost billing info with billing_unit=unknown.
type PricingService interface {
	SelectRule(ctx context.Context, event *events.UsageEvent) (*billingrule.BillingRule, error)
	Price(event *events.UsageEvent, rule *billingrule.BillingRule) *events.BillingInfo
	PriceEvent(ctx context.Context, event *events.UsageEvent) (*events.BillingInfo, error)
}

type pricingService struct {
	ruleRepo billingrule.Repository
	logger   *logger.Logger
}

func NewPricingService(ruleRepo billingrule.Repository, logger *logger.Logger) PricingService {
	return &pricingService{ruleRepo: ruleRepo, logger: logger}
}

// SelectRule picks the most specific effective rule: a model match
// beats a provider default, and the newest effective_from wins within
// each group. Returns nil when nothing matches.
func (s *pricingService) SelectRule(ctx context.Context, event *events.UsageEvent) (*billingrule.BillingRule, error) {
	rules, err := s.ruleRepo.FindEffective(ctx, event.ServiceType, event.ServiceProvider, event.Timestamp)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	model := event.Metadata["model"]

	var fallback *billingrule.BillingRule
	for _, rule := range rules {
		if rule.ModelOrTier != "" {
			if model != "" && rule.ModelOrTier == model {
				return rule, nil
			}
			continue
		}
		if fallback == nil {
			fallback = rule
		}
	}
	return fallback, nil
}

// PriceEvent runs rule selection and cost computation in one call.
func (s *pricingService) PriceEvent(ctx context.Context, event *events.UsageEvent) (*events.BillingInfo, error) {
	rule, err := s.SelectRule(ctx, event)
	if err != nil {
		return nil, err
	}
	return s.Price(event, rule), nil
}

func (s *pricingService) Price(event *events.UsageEvent, rule *billingrule.BillingRule) *events.BillingInfo {
	if rule == nil {
		return events.ZeroCostBillingInfo()
	}

	unitCount := unitCount(event, rule.BillingUnit)

	var baseCost decimal.Decimal
	switch {
	case rule.TieredRates != nil && len(rule.TieredRates.Tiers) > 0:
		baseCost = tieredCost(unitCount, rule.TieredRates)
	case rule.CalculationMethod == types.CalculationMethodSum:
		baseCost = sumMetrics(event.Metrics).Mul(rule.RatePerUnit)
	default:
		baseCost = unitCount.Mul(rule.RatePerUnit)
	}

	total := baseCost
	if rule.MinimumCharge.IsPositive() && total.LessThan(rule.MinimumCharge) {
		total = rule.MinimumCharge
	}
	total = total.Round(CostPrecision)

	return &events.BillingInfo{
		TotalCost:         total,
		BillingUnit:       rule.BillingUnit,
		UnitCount:         unitCount,
		RatePerUnit:       rule.RatePerUnit,
		CalculationMethod: rule.CalculationMethod,
		BaseCost:          baseCost.Round(CostPrecision),
		MinimumCharge:     rule.MinimumCharge,
		RuleID:            rule.ID,
		CalculatedAt:      time.Now().UTC(),
	}
}

// unitCount maps (service_type, billing_unit) to the metered quantity.
func unitCount(event *events.UsageEvent, unit types.BillingUnit) decimal.Decimal {
	one := decimal.NewFromInt(1)

	switch event.ServiceType {
	case types.ServiceTypeLLM:
		switch unit {
		case types.BillingUnitTokens:
			if v, ok := event.Metrics.GetDecimal("total_tokens"); ok {
				return v
			}
			return decimal.Zero
		case types.BillingUnitRequests:
			return one
		}
	case types.ServiceTypeDocumentProcessor:
		switch unit {
		case types.BillingUnitPages:
			if v, ok := event.Metrics.GetDecimal("pages_processed"); ok {
				return v
			}
			return decimal.Zero
		case types.BillingUnitBytes:
			if v, ok := event.Metrics.GetDecimal("file_size_bytes"); ok {
				return v
			}
			return decimal.Zero
		case types.BillingUnitRequests:
			return one
		}
	case types.ServiceTypeAPI:
		switch unit {
		case types.BillingUnitRequests:
			if v, ok := event.Metrics.GetDecimal("request_count"); ok {
				return v
			}
			return one
		case types.BillingUnitBytes:
			payload, _ := event.Metrics.GetDecimal("payload_size_bytes")
			response, _ := event.Metrics.GetDecimal("response_size_bytes")
			return payload.Add(response)
		case types.BillingUnitMinutes:
			if v, ok := event.Metrics.GetDecimal("response_time_ms"); ok {
				return v.Div(decimal.NewFromInt(60_000))
			}
			return decimal.Zero
		}
	}

	return one
}

// tieredCost covers the unit line piecewise: each tier contributes
// width x rate for the portion of [from, to) below unitCount.
func tieredCost(unitCount decimal.Decimal, tiers *types.TieredRates) decimal.Decimal {
	cost := decimal.Zero
	for _, tier := range tiers.Tiers {
		upper := unitCount
		if tier.To != nil && tier.To.LessThan(upper) {
			upper = *tier.To
		}
		width := upper.Sub(tier.From)
		if width.IsNegative() {
			continue
		}
		cost = cost.Add(width.Mul(tier.Rate))
	}
	return cost
}

// sumMetrics adds up every numeric metric value.
func sumMetrics(metrics types.Metrics) decimal.Decimal {
	total := decimal.Zero
	for key := range metrics {
		if v, ok := metrics.GetDecimal(key); ok {
			total = total.Add(v)
		}
	}
	return total
}
