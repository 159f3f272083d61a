package service

import (
	"context"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/domain/tenant"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
)

// TenantService provisions tenants and resolves api keys at the
// ingest boundary.
type TenantService interface {
	Create(ctx context.Context, req *dto.CreateTenantRequest) (*dto.TenantResponse, error)
	Get(ctx context.Context, id string) (*dto.TenantResponse, error)
	Authenticate(ctx context.Context, apiKey string) (*tenant.Tenant, error)
}

type tenantService struct {
	tenantRepo tenant.Repository
	logger     *logger.Logger
}

func NewTenantService(tenantRepo tenant.Repository, logger *logger.Logger) TenantService {
	return &tenantService{tenantRepo: tenantRepo, logger: logger}
}

func (s *tenantService) Create(ctx context.Context, req *dto.CreateTenantRequest) (*dto.TenantResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := tenant.NewTenant(req.Name)
	t.BillingEmail = req.BillingEmail
	if req.RateLimitPerMinute > 0 {
		t.RateLimitPerMinute = req.RateLimitPerMinute
	}
	if req.MonthlyEventQuota > 0 {
		t.MonthlyEventQuota = req.MonthlyEventQuota
	}

	if err := s.tenantRepo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Infow("tenant created", "tenant_id", t.ID, "name", t.Name)

	// The api key is only ever returned here.
	return dto.NewTenantResponse(t, true), nil
}

func (s *tenantService) Get(ctx context.Context, id string) (*dto.TenantResponse, error) {
	t, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewTenantResponse(t, false), nil
}

func (s *tenantService) Authenticate(ctx context.Context, apiKey string) (*tenant.Tenant, error) {
	if apiKey == "" {
		return nil, ierr.NewError("missing api key").
			WithHint("Authentication required").
			Mark(ierr.ErrAuthRequired)
	}
	return s.tenantRepo.GetByAPIKey(ctx, apiKey)
}
