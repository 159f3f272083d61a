package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/domain/events"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/queue"
	"github.com/usageline/usageline/internal/types"
)

// EventService is the ingest and raw-read surface: validate, enrich
// with request context, and hand off durably to the work queue. When
// the queue is down, accepted events are persisted directly so steady
// queue failure alone never loses an event.
type EventService interface {
	Ingest(ctx context.Context, req *dto.IngestEventRequest) (*dto.IngestEventResponse, error)
	IngestBatch(ctx context.Context, req *dto.BatchIngestRequest) (*dto.BatchIngestResponse, error)
	GetUsage(ctx context.Context, req *dto.GetUsageRequest) (*dto.UsageResponse, error)
}

type eventService struct {
	eventRepo  events.Repository
	queue      queue.Queue
	validation ValidationService
	cfg        *config.Configuration
	logger     *logger.Logger
}

func NewEventService(
	eventRepo events.Repository,
	q queue.Queue,
	validation ValidationService,
	cfg *config.Configuration,
	logger *logger.Logger,
) EventService {
	return &eventService{
		eventRepo:  eventRepo,
		queue:      q,
		validation: validation,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *eventService) Ingest(ctx context.Context, req *dto.IngestEventRequest) (*dto.IngestEventResponse, error) {
	tenantID := types.GetTenantID(ctx)
	if tenantID == "" {
		return nil, ierr.NewError("missing tenant context").
			WithHint("Authentication required").
			Mark(ierr.ErrAuthRequired)
	}

	e, err := s.validation.ValidateEvent(tenantID, req)
	if err != nil {
		return nil, err
	}
	s.enrichFromRequest(ctx, e)

	if err := s.publish(ctx, e); err != nil {
		return nil, err
	}

	return &dto.IngestEventResponse{
		Success: true,
		EventID: e.EventID,
		Message: "Event accepted for processing",
	}, nil
}

func (s *eventService) IngestBatch(ctx context.Context, req *dto.BatchIngestRequest) (*dto.BatchIngestResponse, error) {
	tenantID := types.GetTenantID(ctx)
	if tenantID == "" {
		return nil, ierr.NewError("missing tenant context").
			WithHint("Authentication required").
			Mark(ierr.ErrAuthRequired)
	}

	if err := req.Validate(s.cfg.API.MaxBatchSize); err != nil {
		return nil, err
	}

	resp := &dto.BatchIngestResponse{}
	var accepted []*events.UsageEvent

	for i := range req.Events {
		eventReq := req.Events[i]
		e, err := s.validation.ValidateEvent(tenantID, &eventReq)
		if err != nil {
			resp.FailedCount++
			resp.FailedEvents = append(resp.FailedEvents, dto.FailedEvent{
				Index:     i,
				Error:     err.Error(),
				EventData: &eventReq,
			})
			continue
		}
		s.enrichFromRequest(ctx, e)
		e.Metadata["batch_index"] = strconv.Itoa(i)
		accepted = append(accepted, e)
	}

	if len(accepted) > 0 {
		if err := s.publishBatch(ctx, accepted); err != nil {
			return nil, err
		}
		resp.ProcessedCount = len(accepted)
	}

	resp.Message = fmt.Sprintf("Accepted %d events, rejected %d", resp.ProcessedCount, resp.FailedCount)
	return resp, nil
}

// enrichFromRequest attaches the request-scoped context: request id,
// client ip, and user agent.
func (s *eventService) enrichFromRequest(ctx context.Context, e *events.UsageEvent) {
	StampReceiptDefaults(e, time.Now())
	if e.RequestID == "" {
		e.RequestID = types.GetRequestID(ctx)
	}
	if ip := types.GetClientIP(ctx); ip != "" {
		e.Metadata["client_ip"] = ip
	}
	if ua := types.GetUserAgent(ctx); ua != "" {
		e.Metadata["user_agent"] = ua
	}
}

// publish pushes one event to the queue with bounded retries, falling
// back to a direct store write when the queue stays unreachable.
func (s *eventService) publish(ctx context.Context, e *events.UsageEvent) error {
	payload, err := e.Marshal()
	if err != nil {
		return err
	}

	pushErr := s.withPublishRetry(ctx, func() error {
		return s.queue.Push(ctx, queue.QueueUsageEvents, payload)
	})
	if pushErr == nil {
		return nil
	}

	s.logger.Warnw("queue push failed, falling back to direct store write",
		"event_id", e.EventID,
		"error", pushErr,
	)
	if err := s.eventRepo.Upsert(ctx, []*events.UsageEvent{e}); err != nil {
		return ierr.WithError(err).
			WithHint("Service is temporarily unavailable").
			Mark(ierr.ErrServiceUnavailable)
	}
	return nil
}

func (s *eventService) publishBatch(ctx context.Context, evs []*events.UsageEvent) error {
	payloads := make([][]byte, len(evs))
	for i, e := range evs {
		payload, err := e.Marshal()
		if err != nil {
			return err
		}
		payloads[i] = payload
	}

	pushErr := s.withPublishRetry(ctx, func() error {
		return s.queue.PushBatch(ctx, queue.QueueUsageEvents, payloads)
	})
	if pushErr == nil {
		return nil
	}

	s.logger.Warnw("queue batch push failed, falling back to direct store write",
		"count", len(evs),
		"error", pushErr,
	)
	if err := s.eventRepo.Upsert(ctx, evs); err != nil {
		return ierr.WithError(err).
			WithHint("Service is temporarily unavailable").
			Mark(ierr.ErrServiceUnavailable)
	}
	return nil
}

func (s *eventService) withPublishRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(),
			uint64(s.cfg.Processor.PublishMaxAttempts),
		),
		ctx,
	)
	return backoff.Retry(op, policy)
}

func (s *eventService) GetUsage(ctx context.Context, req *dto.GetUsageRequest) (*dto.UsageResponse, error) {
	tenantID := types.GetTenantID(ctx)
	if err := types.ValidateTenantContext(ctx); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Authentication required").
			Mark(ierr.ErrAuthRequired)
	}

	if err := req.Normalize(time.Now().UTC()); err != nil {
		return nil, err
	}

	params := &events.QueryParams{
		TenantID:        tenantID,
		StartTime:       *req.StartDate,
		EndTime:         *req.EndDate,
		ServiceType:     req.ServiceType,
		ServiceProvider: req.ServiceProvider,
		UserID:          req.UserID,
		Limit:           req.Limit,
		Offset:          req.Offset,
	}

	evs, total, err := s.eventRepo.Query(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &dto.UsageResponse{
		Events:     make([]*dto.UsageEventResponse, len(evs)),
		TotalCount: total,
		HasMore:    req.Offset+len(evs) < total,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}
	for i, e := range evs {
		resp.Events[i] = dto.NewUsageEventResponse(e, req.IncludeBilling)
	}
	return resp, nil
}
