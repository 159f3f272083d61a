package dto

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// AggregateUsageRequest reads pre-computed aggregate cells.
type AggregateUsageRequest struct {
	Period          types.PeriodType  `form:"period" json:"period"`
	StartDate       *time.Time        `form:"start_date" json:"start_date,omitempty"`
	EndDate         *time.Time        `form:"end_date" json:"end_date,omitempty"`
	ServiceType     types.ServiceType `form:"service_type" json:"service_type,omitempty"`
	ServiceProvider string            `form:"service_provider" json:"service_provider,omitempty"`
	UserID          string            `form:"user_id" json:"user_id,omitempty"`
}

func (r *AggregateUsageRequest) Normalize(now time.Time) error {
	if r.Period == "" {
		r.Period = types.PeriodTypeDay
	}
	if err := r.Period.Validate(); err != nil {
		return err
	}
	if r.EndDate == nil {
		end := now
		r.EndDate = &end
	}
	if r.StartDate == nil {
		start := r.EndDate.Add(-DefaultUsageWindow)
		r.StartDate = &start
	}
	if r.StartDate.After(*r.EndDate) {
		return ierr.NewError("start_date after end_date").
			WithHint("start_date must not be after end_date").
			Mark(ierr.ErrValidation)
	}
	if r.ServiceType != "" {
		return r.ServiceType.Validate()
	}
	return nil
}

// AggregateRow is one aggregate cell on the wire.
type AggregateRow struct {
	PeriodStart       time.Time         `json:"period_start"`
	PeriodEnd         time.Time         `json:"period_end"`
	PeriodType        types.PeriodType  `json:"period_type"`
	ServiceType       types.ServiceType `json:"service_type,omitempty"`
	ServiceProvider   string            `json:"service_provider,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	EventCount        int               `json:"event_count"`
	UniqueUsers       int               `json:"unique_users"`
	TotalCost         decimal.Decimal   `json:"total_cost"`
	ErrorCount        int               `json:"error_count"`
	ErrorRate         decimal.Decimal   `json:"error_rate"`
	AvgLatencyMs      decimal.Decimal   `json:"avg_latency_ms"`
	P95LatencyMs      decimal.Decimal   `json:"p95_latency_ms"`
	AggregatedMetrics types.Metrics     `json:"aggregated_metrics,omitempty"`
}

// AggregateUsageResponse is the aggregate read payload.
type AggregateUsageResponse struct {
	Period     types.PeriodType `json:"period"`
	StartDate  time.Time        `json:"start_date"`
	EndDate    time.Time        `json:"end_date"`
	Aggregates []*AggregateRow  `json:"aggregates"`
}

// BreakdownRange defaults start/end for breakdown style queries.
type BreakdownRange struct {
	StartDate *time.Time `form:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `form:"end_date" json:"end_date,omitempty"`
}

func (r *BreakdownRange) Normalize(now time.Time) error {
	if r.EndDate == nil {
		end := now
		r.EndDate = &end
	}
	if r.StartDate == nil {
		start := r.EndDate.Add(-DefaultUsageWindow)
		r.StartDate = &start
	}
	if r.StartDate.After(*r.EndDate) {
		return ierr.NewError("start_date after end_date").
			WithHint("start_date must not be after end_date").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ServiceBreakdownRow is one (service_type, provider) slice of usage.
type ServiceBreakdownRow struct {
	ServiceType       types.ServiceType `json:"service_type"`
	ServiceProvider   string            `json:"service_provider,omitempty"`
	EventCount        int               `json:"event_count"`
	TotalCost         decimal.Decimal   `json:"total_cost"`
	UniqueUsers       int               `json:"unique_users"`
	PercentageOfTotal decimal.Decimal   `json:"percentage_of_total"`
}

// ServiceBreakdownResponse groups usage by service and provider,
// sorted by event count descending.
type ServiceBreakdownResponse struct {
	StartDate   time.Time              `json:"start_date"`
	EndDate     time.Time              `json:"end_date"`
	TotalEvents int                    `json:"total_events"`
	Services    []*ServiceBreakdownRow `json:"services"`
}

// CostAnalysisRequest reads cost grouped by period.
type CostAnalysisRequest struct {
	BreakdownRange
	GroupBy types.PeriodType `form:"group_by" json:"group_by"`
}

func (r *CostAnalysisRequest) Normalize(now time.Time) error {
	if r.GroupBy == "" {
		r.GroupBy = types.PeriodTypeDay
	}
	if err := r.GroupBy.Validate(); err != nil {
		return err
	}
	return r.BreakdownRange.Normalize(now)
}

// CostPeriodRow is one period bucket of cost.
type CostPeriodRow struct {
	PeriodStart time.Time       `json:"period_start"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	EventCount  int             `json:"event_count"`
}

// CostAnalysisResponse is the cost analysis payload.
type CostAnalysisResponse struct {
	StartDate     time.Time                  `json:"start_date"`
	EndDate       time.Time                  `json:"end_date"`
	GroupBy       types.PeriodType           `json:"group_by"`
	TotalCost     decimal.Decimal            `json:"total_cost"`
	CostByService map[string]decimal.Decimal `json:"cost_by_service"`
	CostByPeriod  []*CostPeriodRow           `json:"cost_by_period"`
}

// TrendMetric selects the aggregate series to analyze.
type TrendMetric string

const (
	TrendMetricEventCount  TrendMetric = "event_count"
	TrendMetricTotalCost   TrendMetric = "total_cost"
	TrendMetricUniqueUsers TrendMetric = "unique_users"
)

func (m TrendMetric) Validate() error {
	switch m {
	case TrendMetricEventCount, TrendMetricTotalCost, TrendMetricUniqueUsers:
		return nil
	default:
		return ierr.NewError("invalid trend metric").
			WithHint("Invalid trend metric").
			WithReportableDetails(map[string]any{
				"metric":  m,
				"allowed": []TrendMetric{TrendMetricEventCount, TrendMetricTotalCost, TrendMetricUniqueUsers},
			}).
			Mark(ierr.ErrValidation)
	}
}

// TrendsRequest analyzes an aggregate series for direction.
type TrendsRequest struct {
	BreakdownRange
	Metric TrendMetric      `form:"metric" json:"metric"`
	Period types.PeriodType `form:"period" json:"period"`
}

func (r *TrendsRequest) Normalize(now time.Time) error {
	if r.Metric == "" {
		r.Metric = TrendMetricEventCount
	}
	if err := r.Metric.Validate(); err != nil {
		return err
	}
	if r.Period == "" {
		r.Period = types.PeriodTypeDay
	}
	if err := r.Period.Validate(); err != nil {
		return err
	}
	return r.BreakdownRange.Normalize(now)
}

// TrendPoint is one point in the analyzed series.
type TrendPoint struct {
	PeriodStart time.Time       `json:"period_start"`
	Value       decimal.Decimal `json:"value"`
}

// TrendsResponse reports the detected direction of a metric.
type TrendsResponse struct {
	Metric           TrendMetric      `json:"metric"`
	Period           types.PeriodType `json:"period"`
	StartDate        time.Time        `json:"start_date"`
	EndDate          time.Time        `json:"end_date"`
	TrendDirection   string           `json:"trend_direction"`
	PercentageChange decimal.Decimal  `json:"percentage_change"`
	Series           []*TrendPoint    `json:"series"`
}
