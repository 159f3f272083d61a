package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/cache"
	"github.com/usageline/usageline/internal/domain/aggregates"
	"github.com/usageline/usageline/internal/domain/events"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

type QueryServiceSuite struct {
	suite.Suite
	ctx     context.Context
	service QueryService
	events  *testutil.InMemoryEventStore
	aggs    *testutil.InMemoryAggregateStore
}

func TestQueryService(t *testing.T) {
	suite.Run(t, new(QueryServiceSuite))
}

func (s *QueryServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.events = testutil.NewInMemoryEventStore()
	s.aggs = testutil.NewInMemoryAggregateStore()
	s.service = NewQueryService(s.events, s.aggs, cache.NewInMemoryCache(), logger.L)
}

func (s *QueryServiceSuite) addDailyAggregate(daysAgo int, eventCount int, cost string) {
	periodStart := types.PeriodTypeDay.Truncate(time.Now().UTC().AddDate(0, 0, -daysAgo))
	agg := aggregates.NewUsageAggregate(types.DefaultTenantID, types.PeriodTypeDay, periodStart)
	agg.EventCount = eventCount
	agg.UniqueUsers = 1
	agg.TotalCost = decimal.RequireFromString(cost)
	s.Require().NoError(s.aggs.UpsertAggregates(s.ctx, []*aggregates.UsageAggregate{agg}))
}

func (s *QueryServiceSuite) addCompletedEvent(eventID, userID string, serviceType types.ServiceType, provider, cost string) {
	e := events.NewUsageEvent(types.DefaultTenantID, eventID, time.Now().UTC().Add(-time.Hour))
	e.UserID = userID
	e.ServiceType = serviceType
	e.ServiceProvider = provider
	e.MarkCompleted(nil)
	e.TotalCost = decimal.RequireFromString(cost)
	s.Require().NoError(s.events.Upsert(s.ctx, []*events.UsageEvent{e}))
}

func (s *QueryServiceSuite) TestGetAggregates() {
	s.addDailyAggregate(2, 10, "1.50")
	s.addDailyAggregate(1, 20, "3.00")

	resp, err := s.service.GetAggregates(s.ctx, &dto.AggregateUsageRequest{Period: types.PeriodTypeDay})
	s.NoError(err)
	s.Require().Len(resp.Aggregates, 2)
	// Ascending by period start.
	s.Equal(10, resp.Aggregates[0].EventCount)
	s.Equal(20, resp.Aggregates[1].EventCount)
	s.Equal("3", resp.Aggregates[1].TotalCost.String())
}

func (s *QueryServiceSuite) TestGetAggregatesCached() {
	s.addDailyAggregate(1, 10, "1.00")

	req := &dto.AggregateUsageRequest{Period: types.PeriodTypeDay}
	first, err := s.service.GetAggregates(s.ctx, req)
	s.NoError(err)
	s.Len(first.Aggregates, 1)

	// A write after the first read is invisible until the cache entry
	// expires.
	s.addDailyAggregate(2, 99, "9.00")
	second, err := s.service.GetAggregates(s.ctx, &dto.AggregateUsageRequest{
		Period:    types.PeriodTypeDay,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	s.NoError(err)
	s.Len(second.Aggregates, 1)
}

func (s *QueryServiceSuite) TestGetAggregatesWithoutTenant() {
	_, err := s.service.GetAggregates(context.Background(), &dto.AggregateUsageRequest{})
	s.Error(err)
}

func (s *QueryServiceSuite) TestGetServiceBreakdown() {
	s.addCompletedEvent("evt-1", "user-1", types.ServiceTypeLLM, "openai", "0.30")
	s.addCompletedEvent("evt-2", "user-2", types.ServiceTypeLLM, "openai", "0.20")
	s.addCompletedEvent("evt-3", "user-1", types.ServiceTypeLLM, "anthropic", "0.10")
	s.addCompletedEvent("evt-4", "user-1", types.ServiceTypeAPI, "gateway", "0.05")

	resp, err := s.service.GetServiceBreakdown(s.ctx, &dto.BreakdownRange{})
	s.NoError(err)
	s.Equal(4, resp.TotalEvents)
	s.Require().Len(resp.Services, 3)

	// Largest slice first.
	top := resp.Services[0]
	s.Equal(types.ServiceTypeLLM, top.ServiceType)
	s.Equal("openai", top.ServiceProvider)
	s.Equal(2, top.EventCount)
	s.Equal(2, top.UniqueUsers)
	s.Equal("0.5", top.TotalCost.String())
	s.Equal("50", top.PercentageOfTotal.String())
}

func (s *QueryServiceSuite) TestGetCostAnalysis() {
	s.addCompletedEvent("evt-1", "user-1", types.ServiceTypeLLM, "openai", "0.30")
	s.addCompletedEvent("evt-2", "user-2", types.ServiceTypeAPI, "gateway", "0.20")

	resp, err := s.service.GetCostAnalysis(s.ctx, &dto.CostAnalysisRequest{})
	s.NoError(err)
	s.Equal(types.PeriodTypeDay, resp.GroupBy)
	s.Equal("0.5", resp.TotalCost.String())
	s.Equal("0.3", resp.CostByService["llm_service:openai"].String())
	s.Equal("0.2", resp.CostByService["api_service:gateway"].String())
	s.Require().Len(resp.CostByPeriod, 1)
	s.Equal(2, resp.CostByPeriod[0].EventCount)
}

func (s *QueryServiceSuite) TestGetTrends() {
	counts := []int{10, 10, 10, 10, 100, 100, 100, 100}
	for i, count := range counts {
		s.addDailyAggregate(len(counts)-i, count, "1.00")
	}

	resp, err := s.service.GetTrends(s.ctx, &dto.TrendsRequest{
		Metric: dto.TrendMetricEventCount,
		Period: types.PeriodTypeDay,
	})
	s.NoError(err)
	s.Equal("up", resp.TrendDirection)
	s.Equal("900", resp.PercentageChange.String())
	s.Len(resp.Series, len(counts))
}

func (s *QueryServiceSuite) TestGetTrendsInvalidMetric() {
	_, err := s.service.GetTrends(s.ctx, &dto.TrendsRequest{Metric: "latency"})
	s.Error(err)
}

func (s *QueryServiceSuite) TestDetectTrend() {
	d := func(values ...float64) []decimal.Decimal {
		out := make([]decimal.Decimal, len(values))
		for i, v := range values {
			out[i] = decimal.NewFromFloat(v)
		}
		return out
	}

	testCases := []struct {
		name          string
		values        []decimal.Decimal
		wantDirection string
		wantChange    string
	}{
		{
			name:          "empty series",
			values:        nil,
			wantDirection: "stable",
			wantChange:    "0",
		},
		{
			name:          "single point",
			values:        d(5),
			wantDirection: "stable",
			wantChange:    "0",
		},
		{
			name:          "clear increase",
			values:        d(10, 10, 100, 100),
			wantDirection: "up",
			wantChange:    "900",
		},
		{
			name:          "clear decrease",
			values:        d(100, 100, 50, 50),
			wantDirection: "down",
			wantChange:    "-50",
		},
		{
			name:          "within dead band",
			values:        d(100, 100, 103, 103),
			wantDirection: "stable",
			wantChange:    "3",
		},
		{
			name:          "zero first half",
			values:        d(0, 0, 10, 10),
			wantDirection: "up",
			wantChange:    "100",
		},
		{
			name:          "all zero",
			values:        d(0, 0, 0, 0),
			wantDirection: "stable",
			wantChange:    "0",
		},
		{
			name:          "odd length ignores middle",
			values:        d(10, 10, 50, 100, 100),
			wantDirection: "up",
			wantChange:    "900",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			direction, change := detectTrend(tc.values)
			s.Equal(tc.wantDirection, direction)
			s.Equal(tc.wantChange, change.String())
		})
	}
}
