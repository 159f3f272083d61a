package aggregates

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// UsageAggregate is one rolled-up cell: a tenant-period slice with
// optional service type, provider, and user dimensions. Empty dimension
// values mean "all" and map to NULL in the unique key.
type UsageAggregate struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`

	PeriodStart time.Time        `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time        `db:"period_end" json:"period_end"`
	PeriodType  types.PeriodType `db:"period_type" json:"period_type"`

	ServiceType     types.ServiceType `db:"service_type" json:"service_type,omitempty"`
	ServiceProvider string            `db:"service_provider" json:"service_provider,omitempty"`
	UserID          string            `db:"user_id" json:"user_id,omitempty"`

	EventCount  int             `db:"event_count" json:"event_count"`
	UniqueUsers int             `db:"unique_users" json:"unique_users"`
	TotalCost   decimal.Decimal `db:"total_cost" json:"total_cost"`

	ErrorCount int             `db:"error_count" json:"error_count"`
	ErrorRate  decimal.Decimal `db:"error_rate" json:"error_rate"`

	AvgLatencyMs decimal.Decimal `db:"avg_latency_ms" json:"avg_latency_ms"`
	P95LatencyMs decimal.Decimal `db:"p95_latency_ms" json:"p95_latency_ms"`

	AggregatedMetrics types.Metrics `db:"aggregated_metrics" json:"aggregated_metrics"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewUsageAggregate creates an aggregate cell shell with identifiers
// and timestamps set. Counters are filled by the aggregation engine.
func NewUsageAggregate(tenantID string, periodType types.PeriodType, periodStart time.Time) *UsageAggregate {
	now := time.Now().UTC()
	return &UsageAggregate{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AGGREGATE),
		TenantID:          tenantID,
		PeriodStart:       periodStart,
		PeriodEnd:         periodType.Next(periodStart),
		PeriodType:        periodType,
		TotalCost:         decimal.Zero,
		ErrorRate:         decimal.Zero,
		AvgLatencyMs:      decimal.Zero,
		P95LatencyMs:      decimal.Zero,
		AggregatedMetrics: types.Metrics{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// BillingSummary is the per-month rollup for one tenant, keyed on
// (tenant_id, billing_year, billing_month).
type BillingSummary struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`

	BillingYear  int `db:"billing_year" json:"billing_year"`
	BillingMonth int `db:"billing_month" json:"billing_month"`

	TotalCost     decimal.Decimal `db:"total_cost" json:"total_cost"`
	CostByService CostMap         `db:"cost_by_service" json:"cost_by_service"`
	CostByUser    CostMap         `db:"cost_by_user" json:"cost_by_user"`
	TotalEvents   int             `db:"total_events" json:"total_events"`
	ActiveUsers   int             `db:"active_users" json:"active_users"`

	IsFinalized bool       `db:"is_finalized" json:"is_finalized"`
	FinalizedAt *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewBillingSummary creates an unfinalized summary shell for a month.
func NewBillingSummary(tenantID string, year, month int) *BillingSummary {
	now := time.Now().UTC()
	return &BillingSummary{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AGGREGATE),
		TenantID:      tenantID,
		BillingYear:   year,
		BillingMonth:  month,
		TotalCost:     decimal.Zero,
		CostByService: CostMap{},
		CostByUser:    CostMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CostMap is a JSONB map of label to cost, e.g. "llm_service:openai"
// or a user id.
type CostMap map[string]decimal.Decimal

func (m CostMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *CostMap) Scan(src interface{}) error {
	if src == nil {
		*m = CostMap{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported scan type for cost map").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, m)
}
