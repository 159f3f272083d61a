package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/domain/events"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
	"github.com/usageline/usageline/internal/validator"
)

// IngestEventRequest is the wire shape of one submitted usage event.
type IngestEventRequest struct {
	EventID         string                 `json:"event_id,omitempty"`
	Timestamp       *time.Time             `json:"timestamp,omitempty"`
	UserID          string                 `json:"user_id" validate:"required"`
	ServiceType     types.ServiceType      `json:"service_type" validate:"required"`
	ServiceProvider string                 `json:"service_provider,omitempty"`
	EventType       string                 `json:"event_type,omitempty"`
	Metrics         map[string]interface{} `json:"metrics,omitempty"`
	Metadata        map[string]string      `json:"metadata,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	SessionID       string                 `json:"session_id,omitempty"`
	RequestID       string                 `json:"request_id,omitempty"`
}

func (r *IngestEventRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.ServiceType.Validate()
}

// ToUsageEvent builds the pending domain event carrying the request's
// payload. Service-specific validation happens separately.
func (r *IngestEventRequest) ToUsageEvent(tenantID string) *events.UsageEvent {
	var ts time.Time
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}

	e := events.NewUsageEvent(tenantID, r.EventID, ts)
	e.UserID = r.UserID
	e.ServiceType = r.ServiceType
	e.ServiceProvider = r.ServiceProvider
	e.EventType = r.EventType
	e.SessionID = r.SessionID
	e.RequestID = r.RequestID
	if r.Metrics != nil {
		e.Metrics = types.Metrics(r.Metrics)
	}
	if r.Metadata != nil {
		e.Metadata = types.Metadata(r.Metadata)
	}
	if r.Tags != nil {
		e.Tags = events.Tags(r.Tags)
	}
	return e
}

// IngestEventResponse acknowledges one accepted event.
type IngestEventResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id"`
	Message string `json:"message"`
}

// BatchIngestRequest carries up to MaxBatchSize events.
type BatchIngestRequest struct {
	Events []IngestEventRequest `json:"events" validate:"required,min=1"`
}

func (r *BatchIngestRequest) Validate(maxBatchSize int) error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if len(r.Events) > maxBatchSize {
		return ierr.NewError("batch too large").
			WithHintf("Batch size exceeds the maximum of %d events", maxBatchSize).
			WithReportableDetails(map[string]any{
				"batch_size": len(r.Events),
				"max":        maxBatchSize,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// FailedEvent reports one rejected event within a batch.
type FailedEvent struct {
	Index     int                 `json:"index"`
	Error     string              `json:"error"`
	EventData *IngestEventRequest `json:"event_data,omitempty"`
}

// BatchIngestResponse accounts for every event in the batch.
type BatchIngestResponse struct {
	ProcessedCount int           `json:"processed_count"`
	FailedCount    int           `json:"failed_count"`
	FailedEvents   []FailedEvent `json:"failed_events,omitempty"`
	Message        string        `json:"message"`
}

// GetUsageRequest filters the raw event read path.
type GetUsageRequest struct {
	StartDate       *time.Time        `form:"start_date" json:"start_date,omitempty"`
	EndDate         *time.Time        `form:"end_date" json:"end_date,omitempty"`
	ServiceType     types.ServiceType `form:"service_type" json:"service_type,omitempty"`
	ServiceProvider string            `form:"service_provider" json:"service_provider,omitempty"`
	UserID          string            `form:"user_id" json:"user_id,omitempty"`
	Limit           int               `form:"limit" json:"limit,omitempty"`
	Offset          int               `form:"offset" json:"offset,omitempty"`
	IncludeBilling  bool              `form:"include_billing" json:"include_billing,omitempty"`
}

const (
	DefaultUsageLimit  = 100
	MaxUsageLimit      = 10000
	DefaultUsageWindow = 30 * 24 * time.Hour
)

// Normalize applies defaults and bounds in place.
func (r *GetUsageRequest) Normalize(now time.Time) error {
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
	if r.Limit <= 0 {
		r.Limit = DefaultUsageLimit
	}
	if r.Limit > MaxUsageLimit {
		return ierr.NewError("limit too large").
			WithHintf("Limit must be at most %d", MaxUsageLimit).
			WithReportableDetails(map[string]any{"limit": r.Limit}).
			Mark(ierr.ErrValidation)
	}
	if r.Offset < 0 {
		return ierr.NewError("offset must be non-negative").
			WithHint("Offset must be non-negative").
			Mark(ierr.ErrValidation)
	}
	if r.ServiceType != "" {
		return r.ServiceType.Validate()
	}
	return nil
}

// UsageEventResponse is the wire shape of one stored event.
type UsageEventResponse struct {
	EventID         string              `json:"event_id"`
	Timestamp       time.Time           `json:"timestamp"`
	UserID          string              `json:"user_id"`
	ServiceType     types.ServiceType   `json:"service_type"`
	ServiceProvider string              `json:"service_provider,omitempty"`
	EventType       string              `json:"event_type,omitempty"`
	Metrics         types.Metrics       `json:"metrics"`
	Metadata        types.Metadata      `json:"metadata"`
	Tags            []string            `json:"tags,omitempty"`
	Status          types.EventStatus   `json:"status"`
	TotalCost       decimal.Decimal     `json:"total_cost"`
	BillingInfo     *events.BillingInfo `json:"billing_info,omitempty"`
	SessionID       string              `json:"session_id,omitempty"`
	RequestID       string              `json:"request_id,omitempty"`
}

// NewUsageEventResponse converts a domain event, optionally including
// the billing detail.
func NewUsageEventResponse(e *events.UsageEvent, includeBilling bool) *UsageEventResponse {
	resp := &UsageEventResponse{
		EventID:         e.EventID,
		Timestamp:       e.Timestamp,
		UserID:          e.UserID,
		ServiceType:     e.ServiceType,
		ServiceProvider: e.ServiceProvider,
		EventType:       e.EventType,
		Metrics:         e.Metrics,
		Metadata:        e.Metadata,
		Tags:            e.Tags,
		Status:          e.Status,
		TotalCost:       e.TotalCost,
		SessionID:       e.SessionID,
		RequestID:       e.RequestID,
	}
	if includeBilling {
		resp.BillingInfo = e.BillingInfo
	}
	return resp
}

// UsageResponse pages through stored events, newest first.
type UsageResponse struct {
	Events     []*UsageEventResponse `json:"events"`
	TotalCount int                   `json:"total_count"`
	HasMore    bool                  `json:"has_more"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
}
