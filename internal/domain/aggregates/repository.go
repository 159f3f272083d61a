package aggregates

import (
	"context"
	"time"

	"github.com/usageline/usageline/internal/types"
)

// QueryParams filters aggregate reads.
type QueryParams struct {
	TenantID        string
	PeriodType      types.PeriodType
	StartTime       time.Time
	EndTime         time.Time
	ServiceType     types.ServiceType
	ServiceProvider string
	UserID          string
	Limit           int
	Offset          int
}

// Repository is the persistence contract for aggregate cells and
// billing summaries. All writes are upserts on the composite identity.
type Repository interface {
	// UpsertAggregates persists the batch, overwriting counters for
	// existing cells with the same composite key.
	UpsertAggregates(ctx context.Context, aggs []*UsageAggregate) error

	// QueryAggregates returns cells sorted by period_start ascending.
	QueryAggregates(ctx context.Context, params *QueryParams) ([]*UsageAggregate, error)

	// UpsertBillingSummary persists one tenant-month summary keyed on
	// (tenant_id, billing_year, billing_month). Finalized summaries
	// are left untouched.
	UpsertBillingSummary(ctx context.Context, summary *BillingSummary) error

	// GetBillingSummary fetches one tenant-month summary.
	GetBillingSummary(ctx context.Context, tenantID string, year, month int) (*BillingSummary, error)
}
