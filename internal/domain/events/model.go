package events

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// UsageEvent is the fact row for one recorded unit of service usage.
// EventID is the client-supplied idempotency key; the processor upserts
// on it so at-least-once delivery collapses to one effective row.
type UsageEvent struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	EventID  string `db:"event_id" json:"event_id"`

	Timestamp       time.Time         `db:"timestamp" json:"timestamp"`
	UserID          string            `db:"user_id" json:"user_id"`
	ServiceType     types.ServiceType `db:"service_type" json:"service_type"`
	ServiceProvider string            `db:"service_provider" json:"service_provider"`
	EventType       string            `db:"event_type" json:"event_type"`

	Metrics  types.Metrics  `db:"metrics" json:"metrics"`
	Metadata types.Metadata `db:"metadata" json:"metadata"`
	Tags     Tags           `db:"tags" json:"tags"`

	BillingInfo  *BillingInfo      `db:"billing_info" json:"billing_info,omitempty"`
	TotalCost    decimal.Decimal   `db:"total_cost" json:"total_cost"`
	Status       types.EventStatus `db:"status" json:"status"`
	ErrorMessage string            `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int               `db:"retry_count" json:"retry_count"`

	SessionID string `db:"session_id" json:"session_id,omitempty"`
	RequestID string `db:"request_id" json:"request_id,omitempty"`

	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	DeadLetterAt *time.Time `db:"dead_letter_at" json:"dead_letter_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BillingInfo is the pricing outcome attached to an event by the
// processor. Persisted as JSONB alongside total_cost.
type BillingInfo struct {
	TotalCost         decimal.Decimal         `json:"total_cost"`
	BillingUnit       types.BillingUnit       `json:"billing_unit"`
	UnitCount         decimal.Decimal         `json:"unit_count"`
	RatePerUnit       decimal.Decimal         `json:"rate_per_unit"`
	CalculationMethod types.CalculationMethod `json:"calculation_method"`
	BaseCost          decimal.Decimal         `json:"base_cost"`
	MinimumCharge     decimal.Decimal         `json:"minimum_charge"`
	RuleID            string                  `json:"rule_id,omitempty"`
	CalculatedAt      time.Time               `json:"calculated_at"`
}

// ZeroCostBillingInfo is returned when no billing rule matches an event.
func ZeroCostBillingInfo() *BillingInfo {
	return &BillingInfo{
		TotalCost:         decimal.Zero,
		BillingUnit:       types.BillingUnitUnknown,
		UnitCount:         decimal.Zero,
		RatePerUnit:       decimal.Zero,
		CalculationMethod: types.CalculationMethodNone,
		BaseCost:          decimal.Zero,
		MinimumCharge:     decimal.Zero,
		CalculatedAt:      time.Now().UTC(),
	}
}

// Value implements driver.Valuer so BillingInfo persists as JSONB.
func (b *BillingInfo) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner for JSONB columns.
func (b *BillingInfo) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported scan type for billing info").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, b)
}

// Tags is a set of free-form labels, persisted as a JSONB array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

func (t *Tags) Scan(src interface{}) error {
	if src == nil {
		*t = Tags{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported scan type for tags").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, t)
}

// NewUsageEvent creates a pending event with generated identifiers and
// UTC timestamps filled in.
func NewUsageEvent(tenantID string, eventID string, timestamp time.Time) *UsageEvent {
	if eventID == "" {
		eventID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT)
	}

	now := time.Now().UTC()
	if timestamp.IsZero() {
		timestamp = now
	} else {
		timestamp = timestamp.UTC()
	}

	return &UsageEvent{
		ID:        types.GenerateUUID(),
		TenantID:  tenantID,
		EventID:   eventID,
		Timestamp: timestamp,
		Status:    types.EventStatusPending,
		TotalCost: decimal.Zero,
		Metrics:   types.Metrics{},
		Metadata:  types.Metadata{},
		Tags:      Tags{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessing transitions the event into the processor's hands.
func (e *UsageEvent) MarkProcessing() {
	e.Status = types.EventStatusProcessing
	e.UpdatedAt = time.Now().UTC()
}

// MarkCompleted stamps the pricing outcome and terminal success state.
func (e *UsageEvent) MarkCompleted(info *BillingInfo) {
	now := time.Now().UTC()
	e.Status = types.EventStatusCompleted
	e.BillingInfo = info
	if info != nil {
		e.TotalCost = info.TotalCost
	}
	e.ErrorMessage = ""
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records the failure and increments the retry counter.
func (e *UsageEvent) MarkFailed(errMsg string) {
	e.Status = types.EventStatusFailed
	e.ErrorMessage = errMsg
	e.RetryCount++
	e.UpdatedAt = time.Now().UTC()
}

// MarkRetrying flags the event for another pass through the queue.
func (e *UsageEvent) MarkRetrying() {
	e.Status = types.EventStatusRetrying
	e.UpdatedAt = time.Now().UTC()
}

// MarkDeadLetter moves the event to its terminal failure state. Dead
// lettered events are preserved for review and never reprocessed.
func (e *UsageEvent) MarkDeadLetter() {
	now := time.Now().UTC()
	e.Status = types.EventStatusDeadLetter
	e.DeadLetterAt = &now
	e.UpdatedAt = now
}

// Marshal serializes the event for the queue payload.
func (e *UsageEvent) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to serialize event").
			Mark(ierr.ErrSystem)
	}
	return data, nil
}

// Unmarshal deserializes a queue payload back into an event.
func Unmarshal(data []byte) (*UsageEvent, error) {
	var e UsageEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to deserialize event").
			Mark(ierr.ErrSystem)
	}
	return &e, nil
}
