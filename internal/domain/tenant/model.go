package tenant

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// Tenant is the top-level billing and isolation boundary. API keys
// resolve to a tenant at the ingest boundary.
type Tenant struct {
	ID     string       `db:"id" json:"id"`
	Name   string       `db:"name" json:"name"`
	APIKey string       `db:"api_key" json:"-"`
	Status types.Status `db:"status" json:"status"`

	RateLimitPerMinute int `db:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	MonthlyEventQuota  int `db:"monthly_event_quota" json:"monthly_event_quota"`

	BillingEmail string   `db:"billing_email" json:"billing_email,omitempty"`
	Settings     Settings `db:"settings" json:"settings"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Settings is free-form tenant configuration persisted as JSONB.
type Settings map[string]interface{}

func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

func (s *Settings) Scan(src interface{}) error {
	if src == nil {
		*s = Settings{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported scan type for settings").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, s)
}

// NewTenant creates an active tenant with generated id and api key.
func NewTenant(name string) *Tenant {
	now := time.Now().UTC()
	return &Tenant{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TENANT),
		Name:      name,
		APIKey:    types.GenerateUUID(),
		Status:    types.StatusActive,
		Settings:  Settings{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
