package validator

import (
	"github.com/go-playground/validator/v10"

	ierr "github.com/usageline/usageline/internal/errors"
)

// validate is shared by every request path, so it is built with the
// package rather than waiting on dependency wiring.
var validate = validator.New()

func NewValidator() *validator.Validate {
	return validate
}

func GetValidator() *validator.Validate {
	return validate
}

func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, err := range validateErrs {
				details[err.Field()] = err.Error()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
