package alerts

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// AlertType is the quantity an alert configuration watches.
type AlertType string

const (
	AlertTypeCostThreshold  AlertType = "cost_threshold"
	AlertTypeUsageThreshold AlertType = "usage_threshold"
	AlertTypeErrorRate      AlertType = "error_rate"
)

func (t AlertType) Validate() error {
	switch t {
	case AlertTypeCostThreshold, AlertTypeUsageThreshold, AlertTypeErrorRate:
		return nil
	default:
		return ierr.NewError("invalid alert type").
			WithHint("Invalid alert type").
			WithReportableDetails(map[string]any{"alert_type": t}).
			Mark(ierr.ErrValidation)
	}
}

// InstanceStatus tracks a fired alert instance.
type InstanceStatus string

const (
	InstanceStatusTriggered    InstanceStatus = "triggered"
	InstanceStatusAcknowledged InstanceStatus = "acknowledged"
	InstanceStatusResolved     InstanceStatus = "resolved"
)

// AlertConfiguration is a tenant-scoped threshold definition.
// Evaluation and notification delivery happen outside this service;
// the core stores configurations and fired instances.
type AlertConfiguration struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`

	Name           string           `db:"name" json:"name"`
	AlertType      AlertType        `db:"alert_type" json:"alert_type"`
	ThresholdValue decimal.Decimal  `db:"threshold_value" json:"threshold_value"`
	Period         types.PeriodType `db:"period" json:"period"`

	NotificationChannels NotificationChannels `db:"notification_channels" json:"notification_channels"`
	IsActive             bool                 `db:"is_active" json:"is_active"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (c *AlertConfiguration) Validate() error {
	if c.Name == "" {
		return ierr.NewError("alert name is required").
			WithHint("Alert name is required").
			Mark(ierr.ErrValidation)
	}
	if err := c.AlertType.Validate(); err != nil {
		return err
	}
	if c.ThresholdValue.IsNegative() {
		return ierr.NewError("threshold must be non-negative").
			WithHint("Threshold must be non-negative").
			Mark(ierr.ErrValidation)
	}
	return c.Period.Validate()
}

// AlertInstance is one firing of a configuration.
type AlertInstance struct {
	ID              string `db:"id" json:"id"`
	TenantID        string `db:"tenant_id" json:"tenant_id"`
	ConfigurationID string `db:"configuration_id" json:"configuration_id"`

	TriggeredAt   time.Time       `db:"triggered_at" json:"triggered_at"`
	ObservedValue decimal.Decimal `db:"observed_value" json:"observed_value"`
	Status        InstanceStatus  `db:"status" json:"status"`

	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `db:"acknowledged_by" json:"acknowledged_by,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewAlertConfiguration creates an active configuration shell.
func NewAlertConfiguration(tenantID, name string, alertType AlertType) *AlertConfiguration {
	now := time.Now().UTC()
	return &AlertConfiguration{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALERT),
		TenantID:       tenantID,
		Name:           name,
		AlertType:      alertType,
		ThresholdValue: decimal.Zero,
		Period:         types.PeriodTypeDay,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewAlertInstance records one firing of a configuration.
func NewAlertInstance(cfg *AlertConfiguration, observed decimal.Decimal) *AlertInstance {
	now := time.Now().UTC()
	return &AlertInstance{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALERT),
		TenantID:        cfg.TenantID,
		ConfigurationID: cfg.ID,
		TriggeredAt:     now,
		ObservedValue:   observed,
		Status:          InstanceStatusTriggered,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Acknowledge marks the instance handled by a human reviewer.
func (i *AlertInstance) Acknowledge(by string) {
	now := time.Now().UTC()
	i.Status = InstanceStatusAcknowledged
	i.AcknowledgedAt = &now
	i.AcknowledgedBy = by
	i.UpdatedAt = now
}
