package registry

import (
	"database/sql/driver"
	"encoding/json"

	ierr "github.com/usageline/usageline/internal/errors"
)

// StringList is a JSONB array of strings.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func (r AggregationRules) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *AggregationRules) Scan(src interface{}) error {
	return scanJSON(src, r)
}

func scanJSON(src, dst interface{}) error {
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
		return ierr.NewError("unsupported scan type for jsonb column").
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, dst)
}
