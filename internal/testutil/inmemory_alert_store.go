package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/usageline/usageline/internal/domain/alerts"
	ierr "github.com/usageline/usageline/internal/errors"
)

// InMemoryAlertStore implements alerts.Repository.
type InMemoryAlertStore struct {
	mu        sync.RWMutex
	configs   map[string]*alerts.AlertConfiguration
	instances map[string]*alerts.AlertInstance
}

func NewInMemoryAlertStore() *InMemoryAlertStore {
	return &InMemoryAlertStore{
		configs:   make(map[string]*alerts.AlertConfiguration),
		instances: make(map[string]*alerts.AlertInstance),
	}
}

func (s *InMemoryAlertStore) CreateConfiguration(ctx context.Context, cfg *alerts.AlertConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cfg
	s.configs[cfg.ID] = &copied
	return nil
}

func (s *InMemoryAlertStore) UpdateConfiguration(ctx context.Context, cfg *alerts.AlertConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[cfg.ID]; !ok {
		return s.notFound("alert configuration")
	}
	copied := *cfg
	s.configs[cfg.ID] = &copied
	return nil
}

func (s *InMemoryAlertStore) GetConfiguration(ctx context.Context, tenantID, id string) (*alerts.AlertConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok || cfg.TenantID != tenantID {
		return nil, s.notFound("alert configuration")
	}
	copied := *cfg
	return &copied, nil
}

func (s *InMemoryAlertStore) ListConfigurations(ctx context.Context, tenantID string) ([]*alerts.AlertConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*alerts.AlertConfiguration
	for _, cfg := range s.configs {
		if cfg.TenantID != tenantID {
			continue
		}
		copied := *cfg
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryAlertStore) CreateInstance(ctx context.Context, inst *alerts.AlertInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *inst
	s.instances[inst.ID] = &copied
	return nil
}

func (s *InMemoryAlertStore) UpdateInstance(ctx context.Context, inst *alerts.AlertInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[inst.ID]; !ok {
		return s.notFound("alert instance")
	}
	copied := *inst
	s.instances[inst.ID] = &copied
	return nil
}

func (s *InMemoryAlertStore) GetInstance(ctx context.Context, tenantID, id string) (*alerts.AlertInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok || inst.TenantID != tenantID {
		return nil, s.notFound("alert instance")
	}
	copied := *inst
	return &copied, nil
}

func (s *InMemoryAlertStore) ListInstances(ctx context.Context, filter *alerts.InstanceFilter) ([]*alerts.AlertInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*alerts.AlertInstance
	for _, inst := range s.instances {
		if inst.TenantID != filter.TenantID {
			continue
		}
		if filter.ConfigurationID != "" && inst.ConfigurationID != filter.ConfigurationID {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		copied := *inst
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryAlertStore) notFound(what string) error {
	return ierr.NewError(what + " not found").
		WithHint("Resource not found").
		Mark(ierr.ErrNotFound)
}
