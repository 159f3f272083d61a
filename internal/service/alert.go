package service

import (
	"context"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/domain/alerts"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/types"
)

// AlertService stores alert configurations and fired instances and
// exposes list/acknowledge. Evaluation scheduling and delivery live
// in an external collaborator.
type AlertService interface {
	CreateConfiguration(ctx context.Context, req *dto.CreateAlertConfigRequest) (*alerts.AlertConfiguration, error)
	ListConfigurations(ctx context.Context) ([]*alerts.AlertConfiguration, error)
	ListInstances(ctx context.Context, filter *alerts.InstanceFilter) ([]*alerts.AlertInstance, error)
	Acknowledge(ctx context.Context, instanceID string, req *dto.AcknowledgeAlertRequest) (*alerts.AlertInstance, error)
}

type alertService struct {
	alertRepo alerts.Repository
	logger    *logger.Logger
}

func NewAlertService(alertRepo alerts.Repository, logger *logger.Logger) AlertService {
	return &alertService{alertRepo: alertRepo, logger: logger}
}

func (s *alertService) CreateConfiguration(ctx context.Context, req *dto.CreateAlertConfigRequest) (*alerts.AlertConfiguration, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg := req.ToConfiguration(types.GetTenantID(ctx))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := s.alertRepo.CreateConfiguration(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Infow("alert configuration created",
		"config_id", cfg.ID,
		"tenant_id", cfg.TenantID,
		"alert_type", cfg.AlertType,
	)
	return cfg, nil
}

func (s *alertService) ListConfigurations(ctx context.Context) ([]*alerts.AlertConfiguration, error) {
	return s.alertRepo.ListConfigurations(ctx, types.GetTenantID(ctx))
}

func (s *alertService) ListInstances(ctx context.Context, filter *alerts.InstanceFilter) ([]*alerts.AlertInstance, error) {
	filter.TenantID = types.GetTenantID(ctx)
	return s.alertRepo.ListInstances(ctx, filter)
}

func (s *alertService) Acknowledge(ctx context.Context, instanceID string, req *dto.AcknowledgeAlertRequest) (*alerts.AlertInstance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inst, err := s.alertRepo.GetInstance(ctx, types.GetTenantID(ctx), instanceID)
	if err != nil {
		return nil, err
	}

	inst.Acknowledge(req.AcknowledgedBy)
	if err := s.alertRepo.UpdateInstance(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}
