package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/domain/events"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/queue"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

type EventServiceSuite struct {
	suite.Suite
	ctx     context.Context
	service EventService
	store   *testutil.InMemoryEventStore
	queue   *testutil.InMemoryQueue
}

func TestEventService(t *testing.T) {
	suite.Run(t, new(EventServiceSuite))
}

func (s *EventServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.store = testutil.NewInMemoryEventStore()
	s.queue = testutil.NewInMemoryQueue()
	s.service = NewEventService(s.store, s.queue, NewValidationService(), config.GetDefaultConfig(), logger.L)
}

func (s *EventServiceSuite) queueLen(name string) int64 {
	n, err := s.queue.Len(s.ctx, name)
	s.Require().NoError(err)
	return n
}

func (s *EventServiceSuite) popPayload(name string) []byte {
	payload, err := s.queue.PopNoWait(s.ctx, name)
	s.Require().NoError(err)
	s.Require().NotNil(payload)
	return payload
}

func (s *EventServiceSuite) llmRequest(eventID string) dto.IngestEventRequest {
	return dto.IngestEventRequest{
		EventID:         eventID,
		UserID:          "user-1",
		ServiceType:     types.ServiceTypeLLM,
		ServiceProvider: "openai",
		Metadata:        map[string]string{"model": "gpt-4"},
		Metrics:         map[string]interface{}{"input_tokens": float64(100), "output_tokens": float64(50)},
	}
}

func (s *EventServiceSuite) TestIngest() {
	req := s.llmRequest("evt-1")
	resp, err := s.service.Ingest(s.ctx, &req)
	s.NoError(err)
	s.True(resp.Success)
	s.Equal("evt-1", resp.EventID)

	s.Equal(int64(1), s.queueLen(queue.QueueUsageEvents))
	payload := s.popPayload(queue.QueueUsageEvents)

	e, err := events.Unmarshal(payload)
	s.NoError(err)
	s.Equal("evt-1", e.EventID)
	s.Equal(types.DefaultTenantID, e.TenantID)
	s.Equal(types.EventStatusPending, e.Status)
	s.NotEmpty(e.RequestID)
	s.False(e.Timestamp.IsZero())
}

func (s *EventServiceSuite) TestIngestGeneratesEventID() {
	req := s.llmRequest("")
	resp, err := s.service.Ingest(s.ctx, &req)
	s.NoError(err)
	s.NotEmpty(resp.EventID)
}

func (s *EventServiceSuite) TestIngestWithoutTenant() {
	req := s.llmRequest("evt-1")
	_, err := s.service.Ingest(context.Background(), &req)
	s.Error(err)
	s.Equal(401, ierr.HTTPStatusFromErr(err))
}

func (s *EventServiceSuite) TestIngestInvalidEvent() {
	req := s.llmRequest("evt-1")
	req.Metadata = nil

	_, err := s.service.Ingest(s.ctx, &req)
	s.Error(err)
	s.True(ierr.IsValidation(err))
	s.Equal(int64(0), s.queueLen(queue.QueueUsageEvents))
}

func (s *EventServiceSuite) TestIngestQueueDownFallsBackToStore() {
	s.queue.Down = true

	req := s.llmRequest("evt-1")
	resp, err := s.service.Ingest(s.ctx, &req)
	s.NoError(err)
	s.True(resp.Success)

	// The event was written directly instead of queued.
	s.Equal(1, s.store.Count())
	stored, err := s.store.GetByEventID(s.ctx, types.DefaultTenantID, "evt-1")
	s.NoError(err)
	s.Equal(types.EventStatusPending, stored.Status)
}

func (s *EventServiceSuite) TestIngestBatch() {
	bad := s.llmRequest("evt-2")
	bad.Metadata = nil

	req := &dto.BatchIngestRequest{Events: []dto.IngestEventRequest{
		s.llmRequest("evt-1"),
		bad,
		s.llmRequest("evt-3"),
	}}

	resp, err := s.service.IngestBatch(s.ctx, req)
	s.NoError(err)
	s.Equal(2, resp.ProcessedCount)
	s.Equal(1, resp.FailedCount)
	s.Require().Len(resp.FailedEvents, 1)
	s.Equal(1, resp.FailedEvents[0].Index)
	s.Equal("evt-2", resp.FailedEvents[0].EventData.EventID)

	s.Equal(int64(2), s.queueLen(queue.QueueUsageEvents))
	payload := s.popPayload(queue.QueueUsageEvents)
	e, err := events.Unmarshal(payload)
	s.NoError(err)
	s.Equal("evt-1", e.EventID)
	s.Equal("0", e.Metadata["batch_index"])
}

func (s *EventServiceSuite) TestIngestBatchTooLarge() {
	cfg := config.GetDefaultConfig()
	cfg.API.MaxBatchSize = 2
	service := NewEventService(s.store, s.queue, NewValidationService(), cfg, logger.L)

	req := &dto.BatchIngestRequest{Events: []dto.IngestEventRequest{
		s.llmRequest("evt-1"),
		s.llmRequest("evt-2"),
		s.llmRequest("evt-3"),
	}}

	_, err := service.IngestBatch(s.ctx, req)
	s.Error(err)
	s.True(ierr.IsValidation(err))
	s.Equal(int64(0), s.queueLen(queue.QueueUsageEvents))
}

func (s *EventServiceSuite) TestGetUsage() {
	now := time.Now().UTC()
	var stored []*events.UsageEvent
	for i, id := range []string{"evt-1", "evt-2", "evt-3"} {
		e := events.NewUsageEvent(types.DefaultTenantID, id, now.Add(-time.Duration(i)*time.Minute))
		e.UserID = "user-1"
		e.ServiceType = types.ServiceTypeLLM
		e.ServiceProvider = "openai"
		stored = append(stored, e)
	}
	s.Require().NoError(s.store.Upsert(s.ctx, stored))

	resp, err := s.service.GetUsage(s.ctx, &dto.GetUsageRequest{Limit: 2})
	s.NoError(err)
	s.Equal(3, resp.TotalCount)
	s.True(resp.HasMore)
	s.Require().Len(resp.Events, 2)
	// Newest first.
	s.Equal("evt-1", resp.Events[0].EventID)
	s.Equal("evt-2", resp.Events[1].EventID)
	s.Nil(resp.Events[0].BillingInfo)

	resp, err = s.service.GetUsage(s.ctx, &dto.GetUsageRequest{Limit: 2, Offset: 2})
	s.NoError(err)
	s.False(resp.HasMore)
	s.Len(resp.Events, 1)
}

func (s *EventServiceSuite) TestGetUsageEndDateExclusive() {
	now := time.Now().UTC()
	older := events.NewUsageEvent(types.DefaultTenantID, "evt-old", now.Add(-2*time.Hour))
	older.UserID = "user-1"
	older.ServiceType = types.ServiceTypeLLM
	boundary := events.NewUsageEvent(types.DefaultTenantID, "evt-boundary", now.Add(-time.Hour))
	boundary.UserID = "user-1"
	boundary.ServiceType = types.ServiceTypeLLM
	s.Require().NoError(s.store.Upsert(s.ctx, []*events.UsageEvent{older, boundary}))

	start := now.Add(-3 * time.Hour)
	end := boundary.Timestamp
	resp, err := s.service.GetUsage(s.ctx, &dto.GetUsageRequest{StartDate: &start, EndDate: &end})
	s.NoError(err)
	s.Require().Len(resp.Events, 1)
	s.Equal("evt-old", resp.Events[0].EventID)
}

func (s *EventServiceSuite) TestGetUsageInvalidRange() {
	start := time.Now().UTC()
	end := start.Add(-time.Hour)
	_, err := s.service.GetUsage(s.ctx, &dto.GetUsageRequest{StartDate: &start, EndDate: &end})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}
