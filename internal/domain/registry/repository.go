package registry

import (
	"context"

	"github.com/usageline/usageline/internal/types"
)

// Repository is the persistence contract for service registry entries.
type Repository interface {
	// GetByServiceType fetches the active registry entry for a type.
	GetByServiceType(ctx context.Context, serviceType types.ServiceType) (*ServiceRegistry, error)
	List(ctx context.Context) ([]*ServiceRegistry, error)
	// Upsert creates or replaces the entry keyed on service_type,
	// bumping the version on replace.
	Upsert(ctx context.Context, entry *ServiceRegistry) error
}
