package types

import ierr "github.com/usageline/usageline/internal/errors"

// ServiceType identifies the taxonomy an event is validated and billed under.
type ServiceType string

const (
	ServiceTypeLLM               ServiceType = "llm_service"
	ServiceTypeDocumentProcessor ServiceType = "document_processor"
	ServiceTypeAPI               ServiceType = "api_service"
	ServiceTypeCustom            ServiceType = "custom"
)

func (s ServiceType) Validate() error {
	switch s {
	case ServiceTypeLLM, ServiceTypeDocumentProcessor, ServiceTypeAPI, ServiceTypeCustom:
		return nil
	default:
		return ierr.NewError("invalid service type").
			WithHint("Invalid service type").
			WithReportableDetails(map[string]any{
				"service_type": s,
				"allowed":      []ServiceType{ServiceTypeLLM, ServiceTypeDocumentProcessor, ServiceTypeAPI, ServiceTypeCustom},
			}).
			Mark(ierr.ErrValidation)
	}
}

func (s ServiceType) String() string {
	return string(s)
}
