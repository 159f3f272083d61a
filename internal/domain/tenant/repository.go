package tenant

import "context"

// Repository is the persistence contract for tenants.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	// GetByAPIKey resolves an api key to its tenant. Inactive tenants
	// are not returned.
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
}
