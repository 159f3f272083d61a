package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/api/dto"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

type TenantServiceSuite struct {
	suite.Suite
	ctx     context.Context
	service TenantService
	store   *testutil.InMemoryTenantStore
}

func TestTenantService(t *testing.T) {
	suite.Run(t, new(TenantServiceSuite))
}

func (s *TenantServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.store = testutil.NewInMemoryTenantStore()
	s.service = NewTenantService(s.store, logger.L)
}

func (s *TenantServiceSuite) TestCreate() {
	resp, err := s.service.Create(s.ctx, &dto.CreateTenantRequest{
		Name:               "acme",
		BillingEmail:       "billing@acme.example",
		RateLimitPerMinute: 500,
	})
	s.NoError(err)
	s.NotEmpty(resp.ID)
	s.NotEmpty(resp.APIKey)
	s.Equal("acme", resp.Name)
	s.Equal(string(types.StatusActive), resp.Status)
	s.Equal(500, resp.RateLimitPerMinute)

	// The key is only revealed at creation time.
	fetched, err := s.service.Get(s.ctx, resp.ID)
	s.NoError(err)
	s.Empty(fetched.APIKey)
}

func (s *TenantServiceSuite) TestCreateValidation() {
	_, err := s.service.Create(s.ctx, &dto.CreateTenantRequest{})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	_, err = s.service.Create(s.ctx, &dto.CreateTenantRequest{Name: "acme", BillingEmail: "not-an-email"})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *TenantServiceSuite) TestGetNotFound() {
	_, err := s.service.Get(s.ctx, "tenant-missing")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *TenantServiceSuite) TestAuthenticate() {
	created, err := s.service.Create(s.ctx, &dto.CreateTenantRequest{Name: "acme"})
	s.Require().NoError(err)

	t, err := s.service.Authenticate(s.ctx, created.APIKey)
	s.NoError(err)
	s.Equal(created.ID, t.ID)

	_, err = s.service.Authenticate(s.ctx, "wrong-key")
	s.Error(err)
	s.Equal(401, ierr.HTTPStatusFromErr(err))

	_, err = s.service.Authenticate(s.ctx, "")
	s.Error(err)
	s.Equal(401, ierr.HTTPStatusFromErr(err))
}

func (s *TenantServiceSuite) TestAuthenticateSuspendedTenant() {
	created, err := s.service.Create(s.ctx, &dto.CreateTenantRequest{Name: "acme"})
	s.Require().NoError(err)

	t, err := s.store.GetByID(s.ctx, created.ID)
	s.Require().NoError(err)
	t.Status = types.StatusInactive
	s.Require().NoError(s.store.Update(s.ctx, t))

	_, err = s.service.Authenticate(s.ctx, created.APIKey)
	s.Error(err)
	s.Equal(401, ierr.HTTPStatusFromErr(err))
}
