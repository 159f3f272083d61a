package service

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/usageline/usageline/internal/api/dto"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

type ValidationServiceSuite struct {
	suite.Suite
	service ValidationService
}

func TestValidationService(t *testing.T) {
	suite.Run(t, new(ValidationServiceSuite))
}

func (s *ValidationServiceSuite) SetupTest() {
	s.service = NewValidationService()
}

func (s *ValidationServiceSuite) TestValidateEvent() {
	testCases := []struct {
		name      string
		req       *dto.IngestEventRequest
		wantErr   bool
		wantField string
		check     func(metrics types.Metrics, metadata types.Metadata)
	}{
		{
			name: "valid llm event",
			req: &dto.IngestEventRequest{
				UserID:          "user-1",
				ServiceType:     types.ServiceTypeLLM,
				ServiceProvider: "openai",
				Metadata:        map[string]string{"model": "gpt-4"},
				Metrics:         map[string]interface{}{"input_tokens": float64(100), "output_tokens": float64(50)},
			},
		},
		{
			name: "llm derives total_tokens",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: types.ServiceTypeLLM,
				Metadata:    map[string]string{"model": "gpt-4"},
				Metrics:     map[string]interface{}{"input_tokens": float64(100), "output_tokens": float64(50)},
			},
			check: func(metrics types.Metrics, metadata types.Metadata) {
				total, ok := metrics.GetInt("total_tokens")
				s.True(ok)
				s.Equal(int64(150), total)
			},
		},
		{
			name: "llm keeps explicit total_tokens",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: types.ServiceTypeLLM,
				Metadata:    map[string]string{"model": "gpt-4"},
				Metrics: map[string]interface{}{
					"input_tokens":  float64(100),
					"output_tokens": float64(50),
					"total_tokens":  float64(200),
				},
			},
			check: func(metrics types.Metrics, metadata types.Metadata) {
				total, _ := metrics.GetInt("total_tokens")
				s.Equal(int64(200), total)
			},
		},
		{
			name: "llm missing model",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: types.ServiceTypeLLM,
				Metrics:     map[string]interface{}{"input_tokens": float64(100), "output_tokens": float64(50)},
			},
			wantErr:   true,
			wantField: "model",
		},
		{
			name: "llm missing token counts",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: types.ServiceTypeLLM,
				Metadata:    map[string]string{"model": "gpt-4"},
			},
			wantErr:   true,
			wantField: "input_tokens",
		},
		{
			name: "llm negative tokens",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: types.ServiceTypeLLM,
				Metadata:    map[string]string{"model": "gpt-4"},
				Metrics:     map[string]interface{}{"input_tokens": float64(-5), "output_tokens": float64(50)},
			},
			wantErr:   true,
			wantField: "input_tokens",
		},
		{
			name: "llm fractional tokens",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: types.ServiceTypeLLM,
				Metadata:    map[string]string{"model": "gpt-4"},
				Metrics:     map[string]interface{}{"input_tokens": float64(10.5), "output_tokens": float64(50)},
			},
			wantErr:   true,
			wantField: "input_tokens",
		},
		{
			name: "llm temperature out of range",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: types.ServiceTypeLLM,
				Metadata:    map[string]string{"model": "gpt-4"},
				Metrics: map[string]interface{}{
					"input_tokens":  float64(100),
					"output_tokens": float64(50),
					"temperature":   float64(2.5),
				},
			},
			wantErr:   true,
			wantField: "temperature",
		},
		{
			name: "valid document event",
			req: &dto.IngestEventRequest{
				UserID:          "user-1",
				ServiceType:     types.ServiceTypeDocumentProcessor,
				ServiceProvider: "textract",
				Metadata:        map[string]string{"document_type": "pdf", "processing_type": "ocr"},
				Metrics:         map[string]interface{}{"pages_processed": float64(12)},
			},
		},
		{
			name: "document zero pages",
			req: &dto.IngestEventRequest{
				UserID:          "user-1",
				ServiceType:     types.ServiceTypeDocumentProcessor,
				ServiceProvider: "textract",
				Metadata:        map[string]string{"document_type": "pdf", "processing_type": "ocr"},
				Metrics:         map[string]interface{}{"pages_processed": float64(0)},
			},
			wantErr:   true,
			wantField: "pages_processed",
		},
		{
			name: "document missing provider",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: types.ServiceTypeDocumentProcessor,
				Metadata:    map[string]string{"document_type": "pdf", "processing_type": "ocr"},
				Metrics:     map[string]interface{}{"pages_processed": float64(3)},
			},
			wantErr:   true,
			wantField: "service_provider",
		},
		{
			name: "api method upper cased and request_count defaulted",
			req: &dto.IngestEventRequest{
				UserID:          "user-1",
				ServiceType:     types.ServiceTypeAPI,
				ServiceProvider: "gateway",
				Metadata:        map[string]string{"endpoint": "/v1/users", "method": "get"},
			},
			check: func(metrics types.Metrics, metadata types.Metadata) {
				s.Equal("GET", metadata["method"])
				count, ok := metrics.GetInt("request_count")
				s.True(ok)
				s.Equal(int64(1), count)
			},
		},
		{
			name: "api status code out of range",
			req: &dto.IngestEventRequest{
				UserID:          "user-1",
				ServiceType:     types.ServiceTypeAPI,
				ServiceProvider: "gateway",
				Metadata:        map[string]string{"endpoint": "/v1/users"},
				Metrics:         map[string]interface{}{"status_code": float64(700)},
			},
			wantErr:   true,
			wantField: "status_code",
		},
		{
			name: "custom requires event_type",
			req: &dto.IngestEventRequest{
				UserID:          "user-1",
				ServiceType:     types.ServiceTypeCustom,
				ServiceProvider: "acme",
			},
			wantErr:   true,
			wantField: "event_type",
		},
		{
			name: "unknown service type",
			req: &dto.IngestEventRequest{
				UserID:      "user-1",
				ServiceType: "video_service",
			},
			wantErr: true,
		},
		{
			name: "missing user id",
			req: &dto.IngestEventRequest{
				ServiceType: types.ServiceTypeLLM,
				Metadata:    map[string]string{"model": "gpt-4"},
				Metrics:     map[string]interface{}{"input_tokens": float64(1), "output_tokens": float64(1)},
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			event, err := s.service.ValidateEvent(types.DefaultTenantID, tc.req)
			if tc.wantErr {
				s.Error(err)
				s.True(ierr.IsValidation(err))
				if tc.wantField != "" {
					details := ierr.ReportableDetails(err)
					s.Contains(details, tc.wantField)
				}
				return
			}
			s.NoError(err)
			s.Require().NotNil(event)
			s.Equal(types.DefaultTenantID, event.TenantID)
			s.Equal(types.EventStatusPending, event.Status)
			if tc.check != nil {
				tc.check(event.Metrics, event.Metadata)
			}
		})
	}
}
