package dto

import (
	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/domain/alerts"
	"github.com/usageline/usageline/internal/types"
	"github.com/usageline/usageline/internal/validator"
)

// CreateAlertConfigRequest defines a new threshold alert.
type CreateAlertConfigRequest struct {
	Name                 string           `json:"name" validate:"required"`
	AlertType            alerts.AlertType `json:"alert_type" validate:"required"`
	ThresholdValue       decimal.Decimal  `json:"threshold_value"`
	Period               types.PeriodType `json:"period,omitempty"`
	NotificationChannels []string         `json:"notification_channels,omitempty"`
}

func (r *CreateAlertConfigRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ToConfiguration builds the domain configuration; domain validation
// runs on the result.
func (r *CreateAlertConfigRequest) ToConfiguration(tenantID string) *alerts.AlertConfiguration {
	cfg := alerts.NewAlertConfiguration(tenantID, r.Name, r.AlertType)
	cfg.ThresholdValue = r.ThresholdValue
	if r.Period != "" {
		cfg.Period = r.Period
	}
	if r.NotificationChannels != nil {
		cfg.NotificationChannels = alerts.NotificationChannels(r.NotificationChannels)
	}
	return cfg
}

// AcknowledgeAlertRequest marks a fired instance as handled.
type AcknowledgeAlertRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" validate:"required"`
}

func (r *AcknowledgeAlertRequest) Validate() error {
	return validator.ValidateRequest(r)
}
