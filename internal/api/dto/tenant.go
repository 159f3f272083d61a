package dto

import (
	"time"

	"github.com/usageline/usageline/internal/domain/tenant"
	"github.com/usageline/usageline/internal/validator"
)

// CreateTenantRequest provisions a new tenant.
type CreateTenantRequest struct {
	Name               string `json:"name" validate:"required"`
	BillingEmail       string `json:"billing_email,omitempty" validate:"omitempty,email"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute,omitempty" validate:"omitempty,min=1"`
	MonthlyEventQuota  int    `json:"monthly_event_quota,omitempty" validate:"omitempty,min=1"`
}

func (r *CreateTenantRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// TenantResponse is the tenant wire shape. The API key is included
// only on creation.
type TenantResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	APIKey             string    `json:"api_key,omitempty"`
	Status             string    `json:"status"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	MonthlyEventQuota  int       `json:"monthly_event_quota"`
	BillingEmail       string    `json:"billing_email,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewTenantResponse converts a domain tenant, revealing the api key
// only when requested.
func NewTenantResponse(t *tenant.Tenant, withKey bool) *TenantResponse {
	resp := &TenantResponse{
		ID:                 t.ID,
		Name:               t.Name,
		Status:             string(t.Status),
		RateLimitPerMinute: t.RateLimitPerMinute,
		MonthlyEventQuota:  t.MonthlyEventQuota,
		BillingEmail:       t.BillingEmail,
		CreatedAt:          t.CreatedAt,
	}
	if withKey {
		resp.APIKey = t.APIKey
	}
	return resp
}

// HealthResponse reports component reachability.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"services"`
	Timestamp  time.Time         `json:"timestamp"`
}
