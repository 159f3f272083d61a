package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/cache"
	"github.com/usageline/usageline/internal/domain/aggregates"
	"github.com/usageline/usageline/internal/domain/events"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/types"
)

// trendDeadBand is the relative change below which a trend counts as
// stable: first-half vs second-half means within 5%.
var trendDeadBand = decimal.NewFromFloat(0.05)

// QueryService is the analytical read surface over aggregates and
// events, with a best-effort cache in front of the expensive queries.
type QueryService interface {
	GetAggregates(ctx context.Context, req *dto.AggregateUsageRequest) (*dto.AggregateUsageResponse, error)
	GetServiceBreakdown(ctx context.Context, req *dto.BreakdownRange) (*dto.ServiceBreakdownResponse, error)
	GetCostAnalysis(ctx context.Context, req *dto.CostAnalysisRequest) (*dto.CostAnalysisResponse, error)
	GetTrends(ctx context.Context, req *dto.TrendsRequest) (*dto.TrendsResponse, error)
}

type queryService struct {
	eventRepo events.Repository
	aggRepo   aggregates.Repository
	cache     cache.Cache
	logger    *logger.Logger
}

func NewQueryService(
	eventRepo events.Repository,
	aggRepo aggregates.Repository,
	c cache.Cache,
	logger *logger.Logger,
) QueryService {
	return &queryService{
		eventRepo: eventRepo,
		aggRepo:   aggRepo,
		cache:     c,
		logger:    logger,
	}
}

func (s *queryService) GetAggregates(ctx context.Context, req *dto.AggregateUsageRequest) (*dto.AggregateUsageResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(time.Now().UTC()); err != nil {
		return nil, err
	}

	key := cache.GenerateKey(cache.PrefixUsageAggregate, tenantID, req.Period,
		req.StartDate.Unix(), req.EndDate.Unix(),
		req.ServiceType, req.ServiceProvider, req.UserID)
	if cached, ok := cacheGet[dto.AggregateUsageResponse](ctx, s.cache, key); ok {
		return cached, nil
	}

	aggs, err := s.aggRepo.QueryAggregates(ctx, &aggregates.QueryParams{
		TenantID:        tenantID,
		PeriodType:      req.Period,
		StartTime:       *req.StartDate,
		EndTime:         *req.EndDate,
		ServiceType:     req.ServiceType,
		ServiceProvider: req.ServiceProvider,
		UserID:          req.UserID,
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.AggregateUsageResponse{
		Period:    req.Period,
		StartDate: *req.StartDate,
		EndDate:   *req.EndDate,
		Aggregates: lo.Map(aggs, func(a *aggregates.UsageAggregate, _ int) *dto.AggregateRow {
			return &dto.AggregateRow{
				PeriodStart:       a.PeriodStart,
				PeriodEnd:         a.PeriodEnd,
				PeriodType:        a.PeriodType,
				ServiceType:       a.ServiceType,
				ServiceProvider:   a.ServiceProvider,
				UserID:            a.UserID,
				EventCount:        a.EventCount,
				UniqueUsers:       a.UniqueUsers,
				TotalCost:         a.TotalCost,
				ErrorCount:        a.ErrorCount,
				ErrorRate:         a.ErrorRate,
				AvgLatencyMs:      a.AvgLatencyMs,
				P95LatencyMs:      a.P95LatencyMs,
				AggregatedMetrics: a.AggregatedMetrics,
			}
		}),
	}

	s.cache.Set(ctx, key, resp, cache.TTLAggregate)
	return resp, nil
}

func (s *queryService) GetServiceBreakdown(ctx context.Context, req *dto.BreakdownRange) (*dto.ServiceBreakdownResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(time.Now().UTC()); err != nil {
		return nil, err
	}

	key := cache.GenerateKey(cache.PrefixServiceBreakdown, tenantID,
		req.StartDate.Unix(), req.EndDate.Unix())
	if cached, ok := cacheGet[dto.ServiceBreakdownResponse](ctx, s.cache, key); ok {
		return cached, nil
	}

	rows, err := s.eventRepo.ServiceBreakdown(ctx, tenantID, *req.StartDate, *req.EndDate)
	if err != nil {
		return nil, err
	}

	totalEvents := lo.SumBy(rows, func(r *events.ServiceBreakdownRow) int { return r.EventCount })

	resp := &dto.ServiceBreakdownResponse{
		StartDate:   *req.StartDate,
		EndDate:     *req.EndDate,
		TotalEvents: totalEvents,
		Services:    make([]*dto.ServiceBreakdownRow, len(rows)),
	}
	for i, row := range rows {
		percentage := decimal.Zero
		if totalEvents > 0 {
			percentage = decimal.NewFromInt(int64(row.EventCount)).
				Div(decimal.NewFromInt(int64(totalEvents))).
				Mul(decimal.NewFromInt(100)).
				Round(2)
		}
		resp.Services[i] = &dto.ServiceBreakdownRow{
			ServiceType:       row.ServiceType,
			ServiceProvider:   row.ServiceProvider,
			EventCount:        row.EventCount,
			TotalCost:         row.TotalCost,
			UniqueUsers:       row.UniqueUsers,
			PercentageOfTotal: percentage,
		}
	}

	s.cache.Set(ctx, key, resp, cache.TTLBreakdown)
	return resp, nil
}

func (s *queryService) GetCostAnalysis(ctx context.Context, req *dto.CostAnalysisRequest) (*dto.CostAnalysisResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(time.Now().UTC()); err != nil {
		return nil, err
	}

	key := cache.GenerateKey(cache.PrefixCostAnalysis, tenantID, req.GroupBy,
		req.StartDate.Unix(), req.EndDate.Unix())
	if cached, ok := cacheGet[dto.CostAnalysisResponse](ctx, s.cache, key); ok {
		return cached, nil
	}

	periodRows, err := s.eventRepo.CostByPeriod(ctx, tenantID, *req.StartDate, *req.EndDate, req.GroupBy)
	if err != nil {
		return nil, err
	}
	serviceRows, err := s.eventRepo.CostByService(ctx, tenantID, *req.StartDate, *req.EndDate)
	if err != nil {
		return nil, err
	}

	resp := &dto.CostAnalysisResponse{
		StartDate:     *req.StartDate,
		EndDate:       *req.EndDate,
		GroupBy:       req.GroupBy,
		TotalCost:     decimal.Zero,
		CostByService: make(map[string]decimal.Decimal, len(serviceRows)),
		CostByPeriod:  make([]*dto.CostPeriodRow, len(periodRows)),
	}
	for i, row := range periodRows {
		resp.TotalCost = resp.TotalCost.Add(row.TotalCost)
		resp.CostByPeriod[i] = &dto.CostPeriodRow{
			PeriodStart: row.PeriodStart,
			TotalCost:   row.TotalCost,
			EventCount:  row.EventCount,
		}
	}
	for _, row := range serviceRows {
		resp.CostByService[string(row.ServiceType)+":"+row.ServiceProvider] = row.TotalCost
	}

	s.cache.Set(ctx, key, resp, cache.TTLCost)
	return resp, nil
}

func (s *queryService) GetTrends(ctx context.Context, req *dto.TrendsRequest) (*dto.TrendsResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(time.Now().UTC()); err != nil {
		return nil, err
	}

	key := cache.GenerateKey(cache.PrefixTrends, tenantID, req.Metric, req.Period,
		req.StartDate.Unix(), req.EndDate.Unix())
	if cached, ok := cacheGet[dto.TrendsResponse](ctx, s.cache, key); ok {
		return cached, nil
	}

	aggs, err := s.aggRepo.QueryAggregates(ctx, &aggregates.QueryParams{
		TenantID:   tenantID,
		PeriodType: req.Period,
		StartTime:  *req.StartDate,
		EndTime:    *req.EndDate,
	})
	if err != nil {
		return nil, err
	}

	series := make([]*dto.TrendPoint, len(aggs))
	values := make([]decimal.Decimal, len(aggs))
	for i, a := range aggs {
		var v decimal.Decimal
		switch req.Metric {
		case dto.TrendMetricTotalCost:
			v = a.TotalCost
		case dto.TrendMetricUniqueUsers:
			v = decimal.NewFromInt(int64(a.UniqueUsers))
		default:
			v = decimal.NewFromInt(int64(a.EventCount))
		}
		values[i] = v
		series[i] = &dto.TrendPoint{PeriodStart: a.PeriodStart, Value: v}
	}

	direction, change := detectTrend(values)

	resp := &dto.TrendsResponse{
		Metric:           req.Metric,
		Period:           req.Period,
		StartDate:        *req.StartDate,
		EndDate:          *req.EndDate,
		TrendDirection:   direction,
		PercentageChange: change,
		Series:           series,
	}

	s.cache.Set(ctx, key, resp, cache.TTLTrends)
	return resp, nil
}

// detectTrend compares the first-half mean against the second-half
// mean with a 5% dead band. percentage_change is relative to the
// first half.
func detectTrend(values []decimal.Decimal) (string, decimal.Decimal) {
	if len(values) < 2 {
		return "stable", decimal.Zero
	}

	half := len(values) / 2
	firstMean := mean(values[:half])
	secondMean := mean(values[len(values)-half:])

	if firstMean.IsZero() {
		if secondMean.IsZero() {
			return "stable", decimal.Zero
		}
		return "up", decimal.NewFromInt(100)
	}

	change := secondMean.Sub(firstMean).Div(firstMean)
	percentage := change.Mul(decimal.NewFromInt(100)).Round(2)

	switch {
	case change.GreaterThan(trendDeadBand):
		return "up", percentage
	case change.LessThan(trendDeadBand.Neg()):
		return "down", percentage
	default:
		return "stable", percentage
	}
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total.Div(decimal.NewFromInt(int64(len(values))))
}

func (s *queryService) tenantID(ctx context.Context) (string, error) {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return "", ierr.WithError(err).
			WithHint("Authentication required").
			Mark(ierr.ErrAuthRequired)
	}
	return types.GetTenantID(ctx), nil
}

// cacheGet reads a typed value back out of the cache. In-process
// caches hold the struct itself; the Redis cache hands back raw JSON.
func cacheGet[T any](ctx context.Context, c cache.Cache, key string) (*T, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case *T:
		return v, true
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, false
		}
		return &out, true
	default:
		return nil, false
	}
}
