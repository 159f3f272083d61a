package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/usageline/usageline/internal/domain/registry"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// InMemoryRegistryStore implements registry.Repository keyed on
// service_type.
type InMemoryRegistryStore struct {
	mu      sync.RWMutex
	entries map[types.ServiceType]*registry.ServiceRegistry
}

func NewInMemoryRegistryStore() *InMemoryRegistryStore {
	return &InMemoryRegistryStore{entries: make(map[types.ServiceType]*registry.ServiceRegistry)}
}

func (s *InMemoryRegistryStore) GetByServiceType(ctx context.Context, serviceType types.ServiceType) (*registry.ServiceRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[serviceType]
	if !ok || !entry.IsActive {
		return nil, ierr.NewError("registry entry not found").
			WithHint("Registry entry not found").
			Mark(ierr.ErrNotFound)
	}
	copied := *entry
	return &copied, nil
}

func (s *InMemoryRegistryStore) List(ctx context.Context) ([]*registry.ServiceRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*registry.ServiceRegistry, 0, len(s.entries))
	for _, entry := range s.entries {
		copied := *entry
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceType < out[j].ServiceType })
	return out, nil
}

func (s *InMemoryRegistryStore) Upsert(ctx context.Context, entry *registry.ServiceRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[entry.ServiceType]; ok {
		entry.ID = existing.ID
		entry.Version = existing.Version + 1
		entry.CreatedAt = existing.CreatedAt
	}
	copied := *entry
	s.entries[entry.ServiceType] = &copied
	return nil
}
