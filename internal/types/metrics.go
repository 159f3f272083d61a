package types

import (
	"database/sql/driver"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	ierr "github.com/usageline/usageline/internal/errors"
)

// Metrics is the free-form measurement payload reported with a usage
// event, e.g. {"input_tokens": 1500, "output_tokens": 500}. Values are
// whatever JSON produced, so the accessors normalize numeric types.
type Metrics map[string]interface{}

// Metadata carries arbitrary caller-supplied context on an event.
type Metadata map[string]string

func (m Metrics) GetFloat(key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case decimal.Decimal:
		return n.InexactFloat64(), true
	default:
		return 0, false
	}
}

// GetInt returns the value as an int64. JSON numbers arrive as
// float64, so a fractional value is not an integer and reports false.
func (m Metrics) GetInt(key string) (int64, bool) {
	f, ok := m.GetFloat(key)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func (m Metrics) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetDecimal returns the value as a decimal for cost arithmetic.
func (m Metrics) GetDecimal(key string) (decimal.Decimal, bool) {
	f, ok := m.GetFloat(key)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// Value implements driver.Valuer so Metrics persists as JSONB.
func (m Metrics) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metrics) Scan(src interface{}) error {
	if src == nil {
		*m = Metrics{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported scan type for metrics").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer so Metadata persists as JSONB.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported scan type for metadata").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, m)
}
