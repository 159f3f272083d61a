package billingrule

import (
	"context"
	"time"

	"github.com/usageline/usageline/internal/types"
)

// Repository is the persistence contract for billing rules.
type Repository interface {
	Create(ctx context.Context, rule *BillingRule) error
	Update(ctx context.Context, rule *BillingRule) error
	Get(ctx context.Context, id string) (*BillingRule, error)
	List(ctx context.Context, serviceType types.ServiceType, provider string) ([]*BillingRule, error)

	// FindEffective returns active rules for (serviceType, provider)
	// whose effective interval contains at, ordered model-specific
	// first, then most recent effective_from. The caller takes the
	// first rule matching the event's model, falling back to the
	// first provider-default rule.
	FindEffective(ctx context.Context, serviceType types.ServiceType, provider string, at time.Time) ([]*BillingRule, error)
}
