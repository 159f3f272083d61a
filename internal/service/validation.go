package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/domain/events"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// ValidationService enforces per-service-type schemas and produces the
// normalized pending event. Validation is pure; it never touches the
// store or the queue.
type ValidationService interface {
	ValidateEvent(tenantID string, req *dto.IngestEventRequest) (*events.UsageEvent, error)
}

type validationService struct{}

func NewValidationService() ValidationService {
	return &validationService{}
}

func (s *validationService) ValidateEvent(tenantID string, req *dto.IngestEventRequest) (*events.UsageEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e := req.ToUsageEvent(tenantID)

	fieldErrors := map[string]any{}
	switch e.ServiceType {
	case types.ServiceTypeLLM:
		s.validateLLM(e, fieldErrors)
	case types.ServiceTypeDocumentProcessor:
		s.validateDocumentProcessor(e, fieldErrors)
	case types.ServiceTypeAPI:
		s.validateAPI(e, fieldErrors)
	case types.ServiceTypeCustom:
		s.validateCustom(e, fieldErrors)
	}

	if len(fieldErrors) > 0 {
		return nil, ierr.NewError("event validation failed").
			WithHint("Event validation failed").
			WithReportableDetails(fieldErrors).
			Mark(ierr.ErrValidation)
	}

	return e, nil
}

func (s *validationService) validateLLM(e *events.UsageEvent, fieldErrors map[string]any) {
	if _, ok := e.Metadata["model"]; !ok {
		fieldErrors["model"] = "model is required for llm_service events"
	}

	input, inputOK := requireNonNegativeInt(e.Metrics, "input_tokens", fieldErrors)
	output, outputOK := requireNonNegativeInt(e.Metrics, "output_tokens", fieldErrors)

	if temp, ok := e.Metrics.GetFloat("temperature"); ok {
		if temp < 0 || temp > 2 {
			fieldErrors["temperature"] = "temperature must be between 0 and 2"
		}
	}

	// Derive total_tokens when absent so pricing and aggregation see
	// a consistent value.
	if inputOK && outputOK {
		if _, ok := e.Metrics.GetInt("total_tokens"); !ok {
			e.Metrics["total_tokens"] = float64(input + output)
		}
	}
}

func (s *validationService) validateDocumentProcessor(e *events.UsageEvent, fieldErrors map[string]any) {
	if e.ServiceProvider == "" {
		fieldErrors["service_provider"] = "service_provider is required for document_processor events"
	}
	if _, ok := e.Metadata["document_type"]; !ok {
		fieldErrors["document_type"] = "document_type is required for document_processor events"
	}
	if _, ok := e.Metadata["processing_type"]; !ok {
		fieldErrors["processing_type"] = "processing_type is required for document_processor events"
	}

	pages, ok := e.Metrics.GetInt("pages_processed")
	if !ok {
		fieldErrors["pages_processed"] = "pages_processed is required for document_processor events"
	} else if pages < 1 {
		fieldErrors["pages_processed"] = "pages_processed must be at least 1"
	}
}

func (s *validationService) validateAPI(e *events.UsageEvent, fieldErrors map[string]any) {
	if e.ServiceProvider == "" {
		fieldErrors["service_provider"] = "service_provider is required for api_service events"
	}
	if _, ok := e.Metadata["endpoint"]; !ok {
		fieldErrors["endpoint"] = "endpoint is required for api_service events"
	}

	if method, ok := e.Metadata["method"]; ok {
		e.Metadata["method"] = strings.ToUpper(method)
	}

	if code, ok := e.Metrics.GetInt("status_code"); ok {
		if code < 100 || code > 599 {
			fieldErrors["status_code"] = "status_code must be between 100 and 599"
		}
	}

	count, ok := e.Metrics.GetInt("request_count")
	switch {
	case !ok:
		e.Metrics["request_count"] = float64(1)
	case count < 1:
		fieldErrors["request_count"] = "request_count must be at least 1"
	}
}

func (s *validationService) validateCustom(e *events.UsageEvent, fieldErrors map[string]any) {
	if e.ServiceProvider == "" {
		fieldErrors["service_provider"] = "service_provider is required for custom events"
	}
	if e.EventType == "" {
		fieldErrors["event_type"] = "event_type is required for custom events"
	}
}

// requireNonNegativeInt records a field error when the metric is
// missing, non-numeric, or negative. Zero is allowed.
func requireNonNegativeInt(metrics types.Metrics, key string, fieldErrors map[string]any) (int64, bool) {
	raw, present := metrics[key]
	if !present {
		fieldErrors[key] = fmt.Sprintf("%s is required", key)
		return 0, false
	}
	value, ok := metrics.GetInt(key)
	if !ok {
		fieldErrors[key] = fmt.Sprintf("%s must be an integer, got %T", key, raw)
		return 0, false
	}
	if value < 0 {
		fieldErrors[key] = fmt.Sprintf("%s must be non-negative", key)
		return 0, false
	}
	return value, true
}

// StampReceiptDefaults fills receipt-side fields the validator leaves
// open: request id and receipt timestamp.
func StampReceiptDefaults(e *events.UsageEvent, now time.Time) {
	if e.RequestID == "" {
		e.RequestID = types.GenerateUUID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
}
