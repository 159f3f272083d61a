package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/api/dto"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

type BillingRuleServiceSuite struct {
	suite.Suite
	ctx     context.Context
	service BillingRuleService
	store   *testutil.InMemoryBillingRuleStore
}

func TestBillingRuleService(t *testing.T) {
	suite.Run(t, new(BillingRuleServiceSuite))
}

func (s *BillingRuleServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.store = testutil.NewInMemoryBillingRuleStore()
	s.service = NewBillingRuleService(s.store, logger.L)
}

func (s *BillingRuleServiceSuite) createRequest() *dto.CreateBillingRuleRequest {
	return &dto.CreateBillingRuleRequest{
		ServiceType:     types.ServiceTypeLLM,
		ServiceProvider: "openai",
		ModelOrTier:     "gpt-4",
		BillingUnit:     types.BillingUnitTokens,
		RatePerUnit:     decimal.RequireFromString("0.00003"),
	}
}

func (s *BillingRuleServiceSuite) TestCreate() {
	rule, err := s.service.Create(s.ctx, s.createRequest())
	s.NoError(err)
	s.NotEmpty(rule.ID)
	s.Equal(types.CalculationMethodMultiply, rule.CalculationMethod)
	s.True(rule.IsActive)
	s.False(rule.EffectiveFrom.IsZero())

	fetched, err := s.service.Get(s.ctx, rule.ID)
	s.NoError(err)
	s.Equal("gpt-4", fetched.ModelOrTier)
}

func (s *BillingRuleServiceSuite) TestCreateValidation() {
	req := s.createRequest()
	req.ServiceProvider = ""
	_, err := s.service.Create(s.ctx, req)
	s.Error(err)
	s.True(ierr.IsValidation(err))

	req = s.createRequest()
	req.RatePerUnit = decimal.RequireFromString("-0.01")
	_, err = s.service.Create(s.ctx, req)
	s.Error(err)
	s.True(ierr.IsValidation(err))

	req = s.createRequest()
	req.TieredRates = &types.TieredRates{Tiers: []types.PriceTier{
		{From: decimal.NewFromInt(10), Rate: decimal.NewFromInt(1)},
	}}
	_, err = s.service.Create(s.ctx, req)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *BillingRuleServiceSuite) TestUpdate() {
	rule, err := s.service.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	newRate := decimal.RequireFromString("0.00006")
	inactive := false
	updated, err := s.service.Update(s.ctx, rule.ID, &dto.UpdateBillingRuleRequest{
		RatePerUnit: &newRate,
		IsActive:    &inactive,
	})
	s.NoError(err)
	s.Equal("0.00006", updated.RatePerUnit.String())
	s.False(updated.IsActive)

	// Unset fields are untouched.
	s.Equal("gpt-4", updated.ModelOrTier)
}

func (s *BillingRuleServiceSuite) TestUpdateInvalidInterval() {
	rule, err := s.service.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	until := rule.EffectiveFrom.Add(-time.Hour)
	_, err = s.service.Update(s.ctx, rule.ID, &dto.UpdateBillingRuleRequest{EffectiveUntil: &until})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *BillingRuleServiceSuite) TestUpdateNotFound() {
	_, err := s.service.Update(s.ctx, "rule-missing", &dto.UpdateBillingRuleRequest{})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *BillingRuleServiceSuite) TestList() {
	_, err := s.service.Create(s.ctx, s.createRequest())
	s.Require().NoError(err)

	docReq := s.createRequest()
	docReq.ServiceType = types.ServiceTypeDocumentProcessor
	docReq.ServiceProvider = "textract"
	docReq.ModelOrTier = ""
	docReq.BillingUnit = types.BillingUnitPages
	_, err = s.service.Create(s.ctx, docReq)
	s.Require().NoError(err)

	all, err := s.service.List(s.ctx, "", "")
	s.NoError(err)
	s.Len(all, 2)

	llmOnly, err := s.service.List(s.ctx, types.ServiceTypeLLM, "")
	s.NoError(err)
	s.Len(llmOnly, 1)

	none, err := s.service.List(s.ctx, types.ServiceTypeLLM, "anthropic")
	s.NoError(err)
	s.Empty(none)
}
