package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/types"
)

// QueryParams filters event reads. TenantID is required; zero time
// bounds mean "unbounded" and are defaulted by the caller.
type QueryParams struct {
	TenantID        string
	StartTime       time.Time
	EndTime         time.Time
	ServiceType     types.ServiceType
	ServiceProvider string
	UserID          string
	Status          types.EventStatus
	Limit           int
	Offset          int
}

// CellParams identifies one aggregation cell: a tenant-period slice
// optionally narrowed by service type, provider, or user.
type CellParams struct {
	TenantID        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	ServiceType     types.ServiceType // empty = all
	ServiceProvider string            // empty = all
	UserID          string            // empty = all
}

// CellStats is the computed content of one aggregate row.
type CellStats struct {
	EventCount   int             `db:"event_count"`
	UniqueUsers  int             `db:"unique_users"`
	TotalCost    decimal.Decimal `db:"total_cost"`
	ErrorCount   int             `db:"error_count"`
	AvgLatencyMs decimal.Decimal `db:"avg_latency_ms"`
	P95LatencyMs decimal.Decimal `db:"p95_latency_ms"`
	// Service-specific sums over metrics, keyed per service type.
	AggregatedMetrics types.Metrics
}

// ServiceBreakdownRow is one (service_type, provider) group in a
// usage breakdown.
type ServiceBreakdownRow struct {
	ServiceType     types.ServiceType `db:"service_type"`
	ServiceProvider string            `db:"service_provider"`
	EventCount      int               `db:"event_count"`
	TotalCost       decimal.Decimal   `db:"total_cost"`
	UniqueUsers     int               `db:"unique_users"`
}

// CostByPeriodRow is one period bucket in a cost analysis.
type CostByPeriodRow struct {
	PeriodStart time.Time       `db:"period_start"`
	TotalCost   decimal.Decimal `db:"total_cost"`
	EventCount  int             `db:"event_count"`
}

// UserCostRow is one user's cost total within a billing month.
type UserCostRow struct {
	UserID    string          `db:"user_id"`
	TotalCost decimal.Decimal `db:"total_cost"`
}

// ServiceCostRow is one "<type>:<provider>" cost total within a
// billing month.
type ServiceCostRow struct {
	ServiceType     types.ServiceType `db:"service_type"`
	ServiceProvider string            `db:"service_provider"`
	TotalCost       decimal.Decimal   `db:"total_cost"`
}

// MonthlyTotals is the headline of one tenant's billing month.
type MonthlyTotals struct {
	TotalCost   decimal.Decimal `db:"total_cost"`
	TotalEvents int             `db:"total_events"`
	ActiveUsers int             `db:"active_users"`
}

// Repository is the persistence contract for usage events. All writes
// go through Upsert keyed on event_id.
type Repository interface {
	// Upsert persists the batch in one transaction with
	// ON CONFLICT (event_id) DO UPDATE semantics.
	Upsert(ctx context.Context, events []*UsageEvent) error

	// GetByEventID fetches one event by its idempotency key.
	GetByEventID(ctx context.Context, tenantID, eventID string) (*UsageEvent, error)

	// Query returns filtered events sorted by timestamp descending,
	// with the total matching count for pagination.
	Query(ctx context.Context, params *QueryParams) ([]*UsageEvent, int, error)

	// DistinctTenants lists tenants with completed events in the window.
	DistinctTenants(ctx context.Context, start, end time.Time) ([]string, error)

	// DistinctServiceTypes lists service types with completed events
	// for the tenant in the window.
	DistinctServiceTypes(ctx context.Context, tenantID string, start, end time.Time) ([]types.ServiceType, error)

	// DistinctProviders lists providers for one service type with
	// completed events for the tenant in the window.
	DistinctProviders(ctx context.Context, tenantID string, serviceType types.ServiceType, start, end time.Time) ([]string, error)

	// TopUsersByEventCount returns up to limit user ids ranked by
	// completed event count in the tenant window.
	TopUsersByEventCount(ctx context.Context, tenantID string, start, end time.Time, limit int) ([]string, error)

	// AggregateCell computes the counters for one aggregation cell
	// over completed events.
	AggregateCell(ctx context.Context, params *CellParams) (*CellStats, error)

	// ServiceBreakdown groups completed events by (service_type,
	// provider) for the tenant window, ordered by event count desc.
	ServiceBreakdown(ctx context.Context, tenantID string, start, end time.Time) ([]*ServiceBreakdownRow, error)

	// CostByPeriod buckets completed-event cost by aligned period.
	CostByPeriod(ctx context.Context, tenantID string, start, end time.Time, period types.PeriodType) ([]*CostByPeriodRow, error)

	// MonthlyTotals computes the headline numbers for a billing month.
	MonthlyTotals(ctx context.Context, tenantID string, monthStart, monthEnd time.Time) (*MonthlyTotals, error)

	// CostByService breaks a billing month's cost down per
	// (service_type, provider).
	CostByService(ctx context.Context, tenantID string, monthStart, monthEnd time.Time) ([]*ServiceCostRow, error)

	// TopUsersByCost ranks users by cost within a billing month.
	TopUsersByCost(ctx context.Context, tenantID string, monthStart, monthEnd time.Time, limit int) ([]*UserCostRow, error)
}
