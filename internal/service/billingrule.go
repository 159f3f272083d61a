package service

import (
	"context"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/domain/billingrule"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/types"
)

// BillingRuleService manages the pricing rule catalog.
type BillingRuleService interface {
	Create(ctx context.Context, req *dto.CreateBillingRuleRequest) (*billingrule.BillingRule, error)
	Update(ctx context.Context, id string, req *dto.UpdateBillingRuleRequest) (*billingrule.BillingRule, error)
	Get(ctx context.Context, id string) (*billingrule.BillingRule, error)
	List(ctx context.Context, serviceType types.ServiceType, provider string) ([]*billingrule.BillingRule, error)
}

type billingRuleService struct {
	ruleRepo billingrule.Repository
	logger   *logger.Logger
}

func NewBillingRuleService(ruleRepo billingrule.Repository, logger *logger.Logger) BillingRuleService {
	return &billingRuleService{ruleRepo: ruleRepo, logger: logger}
}

func (s *billingRuleService) Create(ctx context.Context, req *dto.CreateBillingRuleRequest) (*billingrule.BillingRule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule := req.ToBillingRule()
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Infow("billing rule created",
		"rule_id", rule.ID,
		"service_type", rule.ServiceType,
		"provider", rule.ServiceProvider,
		"model_or_tier", rule.ModelOrTier,
	)
	return rule, nil
}

func (s *billingRuleService) Update(ctx context.Context, id string, req *dto.UpdateBillingRuleRequest) (*billingrule.BillingRule, error) {
	rule, err := s.ruleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(rule)
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.ruleRepo.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *billingRuleService) Get(ctx context.Context, id string) (*billingrule.BillingRule, error) {
	return s.ruleRepo.Get(ctx, id)
}

func (s *billingRuleService) List(ctx context.Context, serviceType types.ServiceType, provider string) ([]*billingrule.BillingRule, error) {
	return s.ruleRepo.List(ctx, serviceType, provider)
}
