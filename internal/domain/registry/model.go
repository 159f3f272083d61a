package registry

import (
	"time"

	"github.com/usageline/usageline/internal/types"
)

// ServiceRegistry is the per-service-type configuration record:
// which providers are known, which event fields are required, and
// which enrichment derivations the processor applies.
type ServiceRegistry struct {
	ID          string            `db:"id" json:"id"`
	ServiceType types.ServiceType `db:"service_type" json:"service_type"`

	Providers      StringList    `db:"providers" json:"providers"`
	RequiredFields StringList    `db:"required_fields" json:"required_fields"`
	OptionalFields StringList    `db:"optional_fields" json:"optional_fields"`
	BillingConfig  types.Metrics `db:"billing_config" json:"billing_config"`

	AggregationRules AggregationRules `db:"aggregation_rules" json:"aggregation_rules"`
	ValidationSchema types.Metrics    `db:"validation_schema" json:"validation_schema"`

	IsActive bool `db:"is_active" json:"is_active"`
	Version  int  `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AggregationRules carries the enrichment derivations the processor
// applies for this service type. Calculate names a supported
// derivation such as "total_tokens" or "cost_per_token".
type AggregationRules struct {
	Enrichment []EnrichmentRule `json:"enrichment,omitempty"`
	SumFields  []string         `json:"sum_fields,omitempty"`
	AvgFields  []string         `json:"avg_fields,omitempty"`
}

type EnrichmentRule struct {
	Field     string `json:"field"`
	Calculate string `json:"calculate"`
}

// NewServiceRegistry creates an active version-1 registry entry.
func NewServiceRegistry(serviceType types.ServiceType) *ServiceRegistry {
	now := time.Now().UTC()
	return &ServiceRegistry{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SERVICE),
		ServiceType: serviceType,
		IsActive:    true,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
