package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex rule_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_EVENT        = "event"
	UUID_PREFIX_BILLING_RULE = "rule"
	UUID_PREFIX_TENANT       = "tenant"
	UUID_PREFIX_AGGREGATE    = "agg"
	UUID_PREFIX_ALERT        = "alert"
	UUID_PREFIX_SERVICE      = "svc"
)
