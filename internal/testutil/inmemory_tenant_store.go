package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/usageline/usageline/internal/domain/tenant"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// InMemoryTenantStore implements tenant.Repository.
type InMemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenant.Tenant
}

func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{tenants: make(map[string]*tenant.Tenant)}
}

func (s *InMemoryTenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return ierr.NewError("tenant already exists").
			WithHint("Tenant already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	copied := *t
	s.tenants[t.ID] = &copied
	return nil
}

func (s *InMemoryTenantStore) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ierr.NewError("tenant not found").
			WithHint("Tenant not found").
			Mark(ierr.ErrNotFound)
	}
	copied := *t
	return &copied, nil
}

func (s *InMemoryTenantStore) GetByAPIKey(ctx context.Context, apiKey string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.APIKey == apiKey && t.Status == types.StatusActive {
			copied := *t
			return &copied, nil
		}
	}
	return nil, ierr.NewError("unknown api key").
		WithHint("Invalid API key").
		Mark(ierr.ErrInvalidAPIKey)
}

func (s *InMemoryTenantStore) List(ctx context.Context) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		copied := *t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryTenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; !ok {
		return ierr.NewError("tenant not found").
			WithHint("Tenant not found").
			Mark(ierr.ErrNotFound)
	}
	copied := *t
	s.tenants[t.ID] = &copied
	return nil
}
