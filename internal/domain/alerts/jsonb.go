package alerts

import (
	"database/sql/driver"
	"encoding/json"

	ierr "github.com/usageline/usageline/internal/errors"
)

// NotificationChannels is a JSONB array of delivery targets, e.g.
// ["email:ops@example.com", "webhook:https://..."]. Delivery itself is
// an external collaborator.
type NotificationChannels []string

func (c NotificationChannels) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

func (c *NotificationChannels) Scan(src interface{}) error {
	if src == nil {
		*c = NotificationChannels{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported scan type for notification channels").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, c)
}
