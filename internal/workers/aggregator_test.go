package workers

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/domain/aggregates"
	"github.com/usageline/usageline/internal/domain/events"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

type AggregatorSuite struct {
	suite.Suite
	ctx        context.Context
	aggregator *Aggregator
	events     *testutil.InMemoryEventStore
	aggs       *testutil.InMemoryAggregateStore
}

func TestAggregator(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.events = testutil.NewInMemoryEventStore()
	s.aggs = testutil.NewInMemoryAggregateStore()
	s.aggregator = NewAggregator(s.events, s.aggs, config.GetDefaultConfig(), logger.L)
}

func (s *AggregatorSuite) addCompletedEvent(eventID, userID string, serviceType types.ServiceType, provider string, cost string, latencyMs float64, failed bool) {
	e := events.NewUsageEvent(types.DefaultTenantID, eventID, time.Now().UTC().Add(-time.Minute))
	e.UserID = userID
	e.ServiceType = serviceType
	e.ServiceProvider = provider
	e.Metrics = types.Metrics{"latency_ms": latencyMs}
	e.MarkCompleted(nil)
	e.TotalCost = decimal.RequireFromString(cost)
	if failed {
		e.ErrorMessage = "upstream timeout"
	}
	s.Require().NoError(s.events.Upsert(s.ctx, []*events.UsageEvent{e}))
}

func (s *AggregatorSuite) hourCells(serviceType types.ServiceType, provider, userID string) []*aggregates.UsageAggregate {
	now := time.Now().UTC()
	cells, err := s.aggs.QueryAggregates(s.ctx, &aggregates.QueryParams{
		TenantID:        types.DefaultTenantID,
		PeriodType:      types.PeriodTypeHour,
		StartTime:       types.PeriodTypeHour.Truncate(now.Add(-2 * time.Hour)),
		EndTime:         now.Add(time.Hour),
		ServiceType:     serviceType,
		ServiceProvider: provider,
		UserID:          userID,
	})
	s.Require().NoError(err)
	return cells
}

func (s *AggregatorSuite) TestRunCycleBuildsCells() {
	s.addCompletedEvent("evt-1", "user-1", types.ServiceTypeLLM, "openai", "0.05", 100, false)
	s.addCompletedEvent("evt-2", "user-2", types.ServiceTypeLLM, "openai", "0.15", 300, false)
	s.addCompletedEvent("evt-3", "user-1", types.ServiceTypeAPI, "gateway", "0.01", 50, true)

	s.aggregator.RunCycle(s.ctx)

	overall := s.hourCells("", "", "")
	s.Require().Len(overall, 1)
	cell := overall[0]
	s.Equal(3, cell.EventCount)
	s.Equal(2, cell.UniqueUsers)
	s.Equal("0.21", cell.TotalCost.String())
	s.Equal(1, cell.ErrorCount)
	s.Equal("0.3333", cell.ErrorRate.String())
	s.Equal("150", cell.AvgLatencyMs.String())

	llm := s.hourCells(types.ServiceTypeLLM, "", "")
	s.Require().Len(llm, 1)
	s.Equal(2, llm[0].EventCount)
	s.Equal("0.2", llm[0].TotalCost.String())
	s.Equal("0", llm[0].ErrorRate.String())

	byProvider := s.hourCells(types.ServiceTypeLLM, "openai", "")
	s.Require().Len(byProvider, 1)
	s.Equal(2, byProvider[0].EventCount)

	perUser := s.hourCells("", "", "user-1")
	s.Require().Len(perUser, 1)
	s.Equal(2, perUser[0].EventCount)
	s.Equal(1, perUser[0].UniqueUsers)
}

func (s *AggregatorSuite) TestPendingEventsExcluded() {
	e := events.NewUsageEvent(types.DefaultTenantID, "evt-1", time.Now().UTC())
	e.UserID = "user-1"
	e.ServiceType = types.ServiceTypeLLM
	e.ServiceProvider = "openai"
	s.Require().NoError(s.events.Upsert(s.ctx, []*events.UsageEvent{e}))

	s.aggregator.RunCycle(s.ctx)

	s.Equal(0, s.aggs.CellCount())
}

func (s *AggregatorSuite) TestReplayOverwritesCells() {
	s.addCompletedEvent("evt-1", "user-1", types.ServiceTypeLLM, "openai", "0.05", 100, false)
	s.aggregator.RunCycle(s.ctx)
	firstCount := s.aggs.CellCount()

	// A late arrival lands in the same period; the next cycle folds it
	// into the existing cells instead of duplicating them.
	s.addCompletedEvent("evt-2", "user-1", types.ServiceTypeLLM, "openai", "0.10", 200, false)
	s.aggregator.RunCycle(s.ctx)

	s.Equal(firstCount, s.aggs.CellCount())
	overall := s.hourCells("", "", "")
	s.Require().Len(overall, 1)
	s.Equal(2, overall[0].EventCount)
	s.Equal("0.15", overall[0].TotalCost.String())
}

func (s *AggregatorSuite) TestBillingSummary() {
	s.addCompletedEvent("evt-1", "user-1", types.ServiceTypeLLM, "openai", "1.25", 100, false)
	s.addCompletedEvent("evt-2", "user-2", types.ServiceTypeAPI, "gateway", "0.75", 50, false)

	s.aggregator.RunCycle(s.ctx)

	now := time.Now().UTC()
	summary, err := s.aggs.GetBillingSummary(s.ctx, types.DefaultTenantID, now.Year(), int(now.Month()))
	s.NoError(err)
	s.Equal("2", summary.TotalCost.String())
	s.Equal(2, summary.TotalEvents)
	s.Equal(2, summary.ActiveUsers)
	s.Equal("1.25", summary.CostByService["llm_service:openai"].String())
	s.Equal("0.75", summary.CostByService["api_service:gateway"].String())
	s.Equal("1.25", summary.CostByUser["user-1"].String())
	s.False(summary.IsFinalized)
}

func (s *AggregatorSuite) TestFinalizedSummaryUntouched() {
	now := time.Now().UTC()
	finalized := aggregates.NewBillingSummary(types.DefaultTenantID, now.Year(), int(now.Month()))
	finalized.TotalCost = decimal.RequireFromString("99.99")
	finalized.IsFinalized = true
	s.Require().NoError(s.aggs.UpsertBillingSummary(s.ctx, finalized))

	s.addCompletedEvent("evt-1", "user-1", types.ServiceTypeLLM, "openai", "1.25", 100, false)
	s.aggregator.RunCycle(s.ctx)

	summary, err := s.aggs.GetBillingSummary(s.ctx, types.DefaultTenantID, now.Year(), int(now.Month()))
	s.NoError(err)
	s.Equal("99.99", summary.TotalCost.String())
	s.True(summary.IsFinalized)
}

func (s *AggregatorSuite) TestTenantIsolation() {
	s.addCompletedEvent("evt-1", "user-1", types.ServiceTypeLLM, "openai", "0.05", 100, false)

	other := events.NewUsageEvent("tenant-other", "evt-2", time.Now().UTC().Add(-time.Minute))
	other.UserID = "user-9"
	other.ServiceType = types.ServiceTypeLLM
	other.ServiceProvider = "anthropic"
	other.MarkCompleted(nil)
	other.TotalCost = decimal.RequireFromString("0.30")
	s.Require().NoError(s.events.Upsert(s.ctx, []*events.UsageEvent{other}))

	s.aggregator.RunCycle(s.ctx)

	overall := s.hourCells("", "", "")
	s.Require().Len(overall, 1)
	s.Equal(1, overall[0].EventCount)
	s.Equal("0.05", overall[0].TotalCost.String())
}
