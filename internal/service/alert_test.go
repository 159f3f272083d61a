package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/domain/alerts"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

type AlertServiceSuite struct {
	suite.Suite
	ctx     context.Context
	service AlertService
	store   *testutil.InMemoryAlertStore
}

func TestAlertService(t *testing.T) {
	suite.Run(t, new(AlertServiceSuite))
}

func (s *AlertServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.store = testutil.NewInMemoryAlertStore()
	s.service = NewAlertService(s.store, logger.L)
}

func (s *AlertServiceSuite) TestCreateConfiguration() {
	cfg, err := s.service.CreateConfiguration(s.ctx, &dto.CreateAlertConfigRequest{
		Name:           "monthly spend",
		AlertType:      alerts.AlertTypeCostThreshold,
		ThresholdValue: decimal.RequireFromString("100"),
		Period:         types.PeriodTypeMonth,
	})
	s.NoError(err)
	s.NotEmpty(cfg.ID)
	s.Equal(types.DefaultTenantID, cfg.TenantID)
	s.Equal(types.PeriodTypeMonth, cfg.Period)
	s.True(cfg.IsActive)

	configs, err := s.service.ListConfigurations(s.ctx)
	s.NoError(err)
	s.Len(configs, 1)
}

func (s *AlertServiceSuite) TestCreateConfigurationValidation() {
	testCases := []struct {
		name string
		req  *dto.CreateAlertConfigRequest
	}{
		{
			name: "missing name",
			req: &dto.CreateAlertConfigRequest{
				AlertType: alerts.AlertTypeCostThreshold,
			},
		},
		{
			name: "bad alert type",
			req: &dto.CreateAlertConfigRequest{
				Name:      "x",
				AlertType: "disk_threshold",
			},
		},
		{
			name: "negative threshold",
			req: &dto.CreateAlertConfigRequest{
				Name:           "x",
				AlertType:      alerts.AlertTypeErrorRate,
				ThresholdValue: decimal.RequireFromString("-1"),
			},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.service.CreateConfiguration(s.ctx, tc.req)
			s.Error(err)
			s.True(ierr.IsValidation(err))
		})
	}
}

func (s *AlertServiceSuite) TestAcknowledge() {
	cfg, err := s.service.CreateConfiguration(s.ctx, &dto.CreateAlertConfigRequest{
		Name:           "error spike",
		AlertType:      alerts.AlertTypeErrorRate,
		ThresholdValue: decimal.RequireFromString("0.05"),
	})
	s.Require().NoError(err)

	inst := alerts.NewAlertInstance(cfg, decimal.RequireFromString("0.12"))
	s.Require().NoError(s.store.CreateInstance(s.ctx, inst))

	acked, err := s.service.Acknowledge(s.ctx, inst.ID, &dto.AcknowledgeAlertRequest{AcknowledgedBy: "ops@acme.example"})
	s.NoError(err)
	s.Equal(alerts.InstanceStatusAcknowledged, acked.Status)
	s.Equal("ops@acme.example", acked.AcknowledgedBy)
	s.NotNil(acked.AcknowledgedAt)

	instances, err := s.service.ListInstances(s.ctx, &alerts.InstanceFilter{Status: alerts.InstanceStatusAcknowledged})
	s.NoError(err)
	s.Len(instances, 1)
}

func (s *AlertServiceSuite) TestAcknowledgeRequiresActor() {
	_, err := s.service.Acknowledge(s.ctx, "alert-1", &dto.AcknowledgeAlertRequest{})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *AlertServiceSuite) TestAcknowledgeUnknownInstance() {
	_, err := s.service.Acknowledge(s.ctx, "alert-missing", &dto.AcknowledgeAlertRequest{AcknowledgedBy: "ops"})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *AlertServiceSuite) TestListInstancesFilter() {
	cfg, err := s.service.CreateConfiguration(s.ctx, &dto.CreateAlertConfigRequest{
		Name:      "usage spike",
		AlertType: alerts.AlertTypeUsageThreshold,
	})
	s.Require().NoError(err)

	for range [3]struct{}{} {
		inst := alerts.NewAlertInstance(cfg, decimal.NewFromInt(1000))
		s.Require().NoError(s.store.CreateInstance(s.ctx, inst))
	}

	instances, err := s.service.ListInstances(s.ctx, &alerts.InstanceFilter{ConfigurationID: cfg.ID})
	s.NoError(err)
	s.Len(instances, 3)

	limited, err := s.service.ListInstances(s.ctx, &alerts.InstanceFilter{Limit: 2})
	s.NoError(err)
	s.Len(limited, 2)
}
