package workers

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/domain/billingrule"
	"github.com/usageline/usageline/internal/domain/events"
	"github.com/usageline/usageline/internal/domain/registry"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/queue"
	"github.com/usageline/usageline/internal/service"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

type ProcessorSuite struct {
	suite.Suite
	ctx       context.Context
	processor *Processor
	store     *testutil.InMemoryEventStore
	queue     *testutil.InMemoryQueue
	rules     *testutil.InMemoryBillingRuleStore
	registry  *testutil.InMemoryRegistryStore
}

func TestProcessor(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.store = testutil.NewInMemoryEventStore()
	s.queue = testutil.NewInMemoryQueue()
	s.rules = testutil.NewInMemoryBillingRuleStore()
	s.registry = testutil.NewInMemoryRegistryStore()
	s.processor = NewProcessor(
		s.queue,
		s.store,
		s.registry,
		service.NewPricingService(s.rules, logger.L),
		config.GetDefaultConfig(),
		logger.L,
	)
}

func (s *ProcessorSuite) addTokenRule() {
	rule := billingrule.NewBillingRule(types.ServiceTypeLLM, "openai")
	rule.BillingUnit = types.BillingUnitTokens
	rule.RatePerUnit = decimal.RequireFromString("0.00003")
	rule.EffectiveFrom = time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(s.rules.Create(s.ctx, rule))
}

func (s *ProcessorSuite) llmEvent(eventID string) *events.UsageEvent {
	e := events.NewUsageEvent(types.DefaultTenantID, eventID, time.Now().UTC())
	e.UserID = "user-1"
	e.ServiceType = types.ServiceTypeLLM
	e.ServiceProvider = "openai"
	e.Metadata = types.Metadata{"model": "gpt-4"}
	e.Metrics = types.Metrics{"input_tokens": float64(1000), "output_tokens": float64(500)}
	return e
}

func (s *ProcessorSuite) payload(e *events.UsageEvent) []byte {
	data, err := e.Marshal()
	s.Require().NoError(err)
	return data
}

func (s *ProcessorSuite) queueLen(name string) int64 {
	n, err := s.queue.Len(s.ctx, name)
	s.Require().NoError(err)
	return n
}

func (s *ProcessorSuite) TestProcessBatch() {
	s.addTokenRule()

	s.processor.processBatch(s.ctx, [][]byte{
		s.payload(s.llmEvent("evt-1")),
		s.payload(s.llmEvent("evt-2")),
	})

	s.Equal(2, s.store.Count())
	stored, err := s.store.GetByEventID(s.ctx, types.DefaultTenantID, "evt-1")
	s.NoError(err)
	s.Equal(types.EventStatusCompleted, stored.Status)
	s.NotNil(stored.ProcessedAt)

	// 1500 tokens at 0.00003 per token, total_tokens derived before
	// pricing.
	s.Equal("0.045", stored.TotalCost.String())
	total, ok := stored.Metrics.GetInt("total_tokens")
	s.True(ok)
	s.Equal(int64(1500), total)
	s.Equal(int64(0), s.queueLen(queue.QueueDeadLetter))
}

func (s *ProcessorSuite) TestReprocessingIsIdempotent() {
	s.addTokenRule()
	payload := s.payload(s.llmEvent("evt-1"))

	s.processor.processBatch(s.ctx, [][]byte{payload})
	s.processor.processBatch(s.ctx, [][]byte{payload})

	s.Equal(1, s.store.Count())
}

func (s *ProcessorSuite) TestFailedEventRetriesToTail() {
	e := s.llmEvent("evt-1")
	e.UserID = ""

	s.processor.processBatch(s.ctx, [][]byte{s.payload(e)})

	// Not persisted, pushed back for another attempt with the retry
	// counter bumped.
	s.Equal(0, s.store.Count())
	s.Equal(int64(1), s.queueLen(queue.QueueUsageEvents))

	payload, err := s.queue.PopNoWait(s.ctx, queue.QueueUsageEvents)
	s.NoError(err)
	requeued, err := events.Unmarshal(payload)
	s.NoError(err)
	s.Equal(types.EventStatusRetrying, requeued.Status)
	s.Equal(1, requeued.RetryCount)
	s.NotEmpty(requeued.ErrorMessage)
}

func (s *ProcessorSuite) TestExhaustedRetriesDeadLetter() {
	e := s.llmEvent("evt-1")
	e.UserID = ""
	e.RetryCount = 2

	s.processor.processBatch(s.ctx, [][]byte{s.payload(e)})

	s.Equal(int64(0), s.queueLen(queue.QueueUsageEvents))
	s.Equal(int64(1), s.queueLen(queue.QueueDeadLetter))

	stored, err := s.store.GetByEventID(s.ctx, types.DefaultTenantID, "evt-1")
	s.NoError(err)
	s.Equal(types.EventStatusDeadLetter, stored.Status)
	s.NotNil(stored.DeadLetterAt)
	s.Equal(3, stored.RetryCount)
}

func (s *ProcessorSuite) TestStoreFailureRequeuesBatch() {
	s.addTokenRule()
	s.store.FailUpserts = true

	payloads := [][]byte{
		s.payload(s.llmEvent("evt-1")),
		s.payload(s.llmEvent("evt-2")),
	}
	s.processor.processBatch(s.ctx, payloads)

	// Both original payloads are back at the head, in order.
	s.Equal(int64(2), s.queueLen(queue.QueueUsageEvents))
	payload, err := s.queue.PopNoWait(s.ctx, queue.QueueUsageEvents)
	s.NoError(err)
	first, err := events.Unmarshal(payload)
	s.NoError(err)
	s.Equal("evt-1", first.EventID)
	s.Equal(types.EventStatusPending, first.Status)
}

func (s *ProcessorSuite) TestUndecodablePayloadDropped() {
	s.addTokenRule()

	s.processor.processBatch(s.ctx, [][]byte{
		[]byte("not json"),
		s.payload(s.llmEvent("evt-1")),
	})

	s.Equal(1, s.store.Count())
	s.Equal(int64(0), s.queueLen(queue.QueueUsageEvents))
	s.Equal(int64(0), s.queueLen(queue.QueueDeadLetter))
}

func (s *ProcessorSuite) TestNoRuleStillCompletes() {
	s.processor.processBatch(s.ctx, [][]byte{s.payload(s.llmEvent("evt-1"))})

	stored, err := s.store.GetByEventID(s.ctx, types.DefaultTenantID, "evt-1")
	s.NoError(err)
	s.Equal(types.EventStatusCompleted, stored.Status)
	s.True(stored.TotalCost.IsZero())
	s.Require().NotNil(stored.BillingInfo)
	s.Equal(types.BillingUnitUnknown, stored.BillingInfo.BillingUnit)
}

func (s *ProcessorSuite) TestRegistryDerivations() {
	s.addTokenRule()

	entry := registry.NewServiceRegistry(types.ServiceTypeLLM)
	entry.AggregationRules = registry.AggregationRules{Enrichment: []registry.EnrichmentRule{
		{Field: "cost_per_token", Calculate: "cost_per_token"},
	}}
	s.Require().NoError(s.registry.Upsert(s.ctx, entry))

	s.processor.processBatch(s.ctx, [][]byte{s.payload(s.llmEvent("evt-1"))})

	stored, err := s.store.GetByEventID(s.ctx, types.DefaultTenantID, "evt-1")
	s.NoError(err)
	perToken, ok := stored.Metrics.GetFloat("cost_per_token")
	s.True(ok)
	// 0.045 / 1500
	s.InDelta(0.00003, perToken, 1e-12)
}

func (s *ProcessorSuite) TestSessionDurationEnrichment() {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	e := s.llmEvent("evt-1")
	e.Metrics["session_start"] = start.Format(time.RFC3339)
	e.Metrics["session_end"] = start.Add(90 * time.Second).Format(time.RFC3339)

	s.processor.processBatch(s.ctx, [][]byte{s.payload(e)})

	stored, err := s.store.GetByEventID(s.ctx, types.DefaultTenantID, "evt-1")
	s.NoError(err)
	duration, ok := stored.Metrics.GetFloat("session_duration_ms")
	s.True(ok)
	s.Equal(float64(90000), duration)
}

func (s *ProcessorSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.NoError(s.processor.Run(ctx))
}
