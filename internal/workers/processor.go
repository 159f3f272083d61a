package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/usageline/usageline/internal/cache"
	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/domain/events"
	"github.com/usageline/usageline/internal/domain/registry"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/queue"
	"github.com/usageline/usageline/internal/service"
	"github.com/usageline/usageline/internal/types"
)

// registryCacheTTL bounds how stale the processor's view of
// per-service enrichment rules may be.
const registryCacheTTL = 5 * time.Minute

// Processor is the queue consumer: it pops batches from usage_events,
// enriches and prices each event, and upserts the results. Failed
// events retry up to MaxRetries before moving to the dead letter
// queue.
type Processor struct {
	queue        queue.Queue
	eventRepo    events.Repository
	registryRepo registry.Repository
	pricing      service.PricingService
	registryCch  cache.Cache
	cfg          *config.Configuration
	logger       *logger.Logger
}

func NewProcessor(
	q queue.Queue,
	eventRepo events.Repository,
	registryRepo registry.Repository,
	pricing service.PricingService,
	cfg *config.Configuration,
	logger *logger.Logger,
) *Processor {
	return &Processor{
		queue:        q,
		eventRepo:    eventRepo,
		registryRepo: registryRepo,
		pricing:      pricing,
		registryCch:  cache.NewInMemoryCache(),
		cfg:          cfg,
		logger:       logger,
	}
}

// Run consumes until the context is cancelled. The current batch is
// always finished before exit.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Infow("event processor started",
		"batch_size", p.cfg.Processor.BatchSize,
		"pop_timeout_seconds", p.cfg.Processor.PopTimeoutSeconds,
	)

	popTimeout := time.Duration(p.cfg.Processor.PopTimeoutSeconds) * time.Second
	reconnect := backoff.NewExponentialBackOff()
	reconnect.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			p.logger.Infow("event processor stopping")
			return nil
		default:
		}

		msg, err := p.queue.PopBlocking(ctx, []string{queue.QueueUsageEvents}, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := reconnect.NextBackOff()
			p.logger.Errorw("queue pop failed, backing off",
				"error", err,
				"wait", wait,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		reconnect.Reset()

		if msg == nil {
			continue
		}

		batch := p.drainBatch(ctx, msg.Payload)
		p.processBatch(ctx, batch)
	}
}

// drainBatch collects up to batch_size-1 more payloads without
// blocking.
func (p *Processor) drainBatch(ctx context.Context, first []byte) [][]byte {
	batch := [][]byte{first}
	for len(batch) < p.cfg.Processor.BatchSize {
		payload, err := p.queue.PopNoWait(ctx, queue.QueueUsageEvents)
		if err != nil || payload == nil {
			break
		}
		batch = append(batch, payload)
	}
	return batch
}

func (p *Processor) processBatch(ctx context.Context, payloads [][]byte) {
	var succeeded []*events.UsageEvent
	var failed []*events.UsageEvent

	for _, payload := range payloads {
		e, err := events.Unmarshal(payload)
		if err != nil {
			// Undecodable payloads carry no event identity to retry
			// under; log and drop.
			p.logger.Errorw("dropping undecodable queue payload", "error", err)
			continue
		}

		if err := p.processEvent(ctx, e); err != nil {
			e.MarkFailed(err.Error())
			failed = append(failed, e)
			continue
		}
		succeeded = append(succeeded, e)
	}

	if len(succeeded) > 0 {
		if err := p.eventRepo.Upsert(ctx, succeeded); err != nil {
			p.logger.Errorw("batch upsert failed, requeueing batch",
				"count", len(payloads),
				"error", err,
			)
			// The whole batch goes back to the head; idempotent
			// upsert makes the redo harmless.
			if reqErr := p.queue.RequeueFront(ctx, queue.QueueUsageEvents, payloads); reqErr != nil {
				p.logger.Errorw("requeue after store failure also failed", "error", reqErr)
			}
			return
		}
	}

	for _, e := range failed {
		p.handleFailure(ctx, e)
	}
}

func (p *Processor) processEvent(ctx context.Context, e *events.UsageEvent) error {
	e.MarkProcessing()

	if err := p.checkRequired(e); err != nil {
		return err
	}

	p.enrich(ctx, e)

	info, err := p.pricing.PriceEvent(ctx, e)
	if err != nil {
		return fmt.Errorf("price event: %w", err)
	}

	e.MarkCompleted(info)
	p.applyDerivations(ctx, e)
	return nil
}

func (p *Processor) checkRequired(e *events.UsageEvent) error {
	if e.EventID == "" {
		return ierr.NewError("event_id is required").Mark(ierr.ErrValidation)
	}
	if e.TenantID == "" {
		return ierr.NewError("tenant_id is required").Mark(ierr.ErrValidation)
	}
	if e.UserID == "" {
		return ierr.NewError("user_id is required").Mark(ierr.ErrValidation)
	}
	return e.ServiceType.Validate()
}

// enrich stamps derived metrics before pricing.
func (p *Processor) enrich(ctx context.Context, e *events.UsageEvent) {
	if e.ServiceType == types.ServiceTypeLLM {
		input, inputOK := e.Metrics.GetInt("input_tokens")
		output, outputOK := e.Metrics.GetInt("output_tokens")
		if inputOK && outputOK {
			e.Metrics["total_tokens"] = float64(input + output)
		}
	}

	start, startOK := e.Metrics.GetString("session_start")
	end, endOK := e.Metrics.GetString("session_end")
	if startOK && endOK {
		if startT, err := time.Parse(time.RFC3339, start); err == nil {
			if endT, err := time.Parse(time.RFC3339, end); err == nil {
				e.Metrics["session_duration_ms"] = float64(endT.Sub(startT).Milliseconds())
			}
		}
	}
}

// applyDerivations runs the registry's calculate rules after pricing,
// when the cost is known.
func (p *Processor) applyDerivations(ctx context.Context, e *events.UsageEvent) {
	entry := p.registryEntry(ctx, e.ServiceType)
	if entry == nil {
		return
	}

	for _, rule := range entry.AggregationRules.Enrichment {
		switch rule.Calculate {
		case "total_tokens":
			input, inputOK := e.Metrics.GetInt("input_tokens")
			output, outputOK := e.Metrics.GetInt("output_tokens")
			if inputOK && outputOK {
				e.Metrics[rule.Field] = float64(input + output)
			}
		case "cost_per_token":
			if tokens, ok := e.Metrics.GetDecimal("total_tokens"); ok && tokens.IsPositive() {
				e.Metrics[rule.Field] = e.TotalCost.Div(tokens).InexactFloat64()
			}
		}
	}
}

func (p *Processor) registryEntry(ctx context.Context, serviceType types.ServiceType) *registry.ServiceRegistry {
	key := cache.GenerateKey("registry:v1:", serviceType)
	if cached, ok := p.registryCch.Get(ctx, key); ok {
		if entry, ok := cached.(*registry.ServiceRegistry); ok {
			return entry
		}
	}

	entry, err := p.registryRepo.GetByServiceType(ctx, serviceType)
	if err != nil {
		if !ierr.IsNotFound(err) {
			p.logger.Warnw("registry lookup failed", "service_type", serviceType, "error", err)
		}
		return nil
	}

	p.registryCch.Set(ctx, key, entry, registryCacheTTL)
	return entry
}

// handleFailure routes a failed event: under the retry budget it goes
// back to the work queue, otherwise to the dead letter queue.
func (p *Processor) handleFailure(ctx context.Context, e *events.UsageEvent) {
	if e.RetryCount < p.cfg.Processor.MaxRetries {
		e.MarkRetrying()
		payload, err := e.Marshal()
		if err != nil {
			p.logger.Errorw("marshal for retry failed", "event_id", e.EventID, "error", err)
			return
		}
		if err := p.queue.Push(ctx, queue.QueueUsageEvents, payload); err != nil {
			p.logger.Errorw("retry push failed", "event_id", e.EventID, "error", err)
		}
		return
	}

	e.MarkDeadLetter()
	p.logger.Warnw("event moved to dead letter queue",
		"event_id", e.EventID,
		"tenant_id", e.TenantID,
		"retry_count", e.RetryCount,
		"error", e.ErrorMessage,
	)

	if err := p.eventRepo.Upsert(ctx, []*events.UsageEvent{e}); err != nil {
		p.logger.Errorw("dead letter upsert failed", "event_id", e.EventID, "error", err)
	}

	payload, err := e.Marshal()
	if err != nil {
		p.logger.Errorw("marshal for dead letter failed", "event_id", e.EventID, "error", err)
		return
	}
	if err := p.queue.Push(ctx, queue.QueueDeadLetter, payload); err != nil {
		p.logger.Errorw("dead letter push failed", "event_id", e.EventID, "error", err)
	}
}
