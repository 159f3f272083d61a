package alerts

import "context"

// InstanceFilter narrows instance listings.
type InstanceFilter struct {
	TenantID        string
	ConfigurationID string
	Status          InstanceStatus
	Limit           int
	Offset          int
}

// Repository is the persistence contract for alert configurations and
// fired instances.
type Repository interface {
	CreateConfiguration(ctx context.Context, cfg *AlertConfiguration) error
	UpdateConfiguration(ctx context.Context, cfg *AlertConfiguration) error
	GetConfiguration(ctx context.Context, tenantID, id string) (*AlertConfiguration, error)
	ListConfigurations(ctx context.Context, tenantID string) ([]*AlertConfiguration, error)

	CreateInstance(ctx context.Context, inst *AlertInstance) error
	UpdateInstance(ctx context.Context, inst *AlertInstance) error
	GetInstance(ctx context.Context, tenantID, id string) (*AlertInstance, error)
	ListInstances(ctx context.Context, filter *InstanceFilter) ([]*AlertInstance, error)
}
