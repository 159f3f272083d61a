package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorBuilder provides a fluent interface for building errors
// but does not implement the error interface. This is intentional.
// Mark must be the last call in the chain when using the builder.
type ErrorBuilder struct {
	err error
}

// NewError starts a new error builder chain
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

// WithError starts a builder chain with an existing error
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// WithMessage adds context to the error
// this is for the internal error messages
func (b *ErrorBuilder) WithMessage(msg string) *ErrorBuilder {
	b.err = errors.WithMessage(b.err, msg)
	return b
}

// WithHint adds context to the error
// this is for the frontend error messages
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

// WithHintf is a helper for WithHint that allows for formatting
func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithReportableDetails adds structured details
func (b *ErrorBuilder) WithReportableDetails(details map[string]any) *ErrorBuilder {
	marshaled, err := json.Marshal(details)
	if err != nil {
		return b
	}
	b.err = errors.WithSafeDetails(b.err, "__json__:%s", errors.Safe(string(marshaled)))
	return b
}

// Mark marks the error with a sentinel error
// should be the last call in the chain
func (b *ErrorBuilder) Mark(reference error) error {
	b.err = errors.Mark(b.err, reference)
	return b.err
}

// ReportableDetails extracts the structured details attached with
// WithReportableDetails, or nil when none are present.
func ReportableDetails(err error) map[string]any {
	for _, payload := range errors.GetAllSafeDetails(err) {
		for _, detail := range payload.SafeDetails {
			if !strings.HasPrefix(detail, "__json__:") {
				continue
			}
			var details map[string]any
			if jsonErr := json.Unmarshal([]byte(strings.TrimPrefix(detail, "__json__:")), &details); jsonErr == nil {
				return details
			}
		}
	}
	return nil
}

// Err returns the error string
func (b *ErrorBuilder) Error() error {
	return b.err
}
