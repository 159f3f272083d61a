package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/rest/middleware"
	"github.com/usageline/usageline/internal/service"
	"github.com/usageline/usageline/internal/testutil"
	"github.com/usageline/usageline/internal/types"
)

func newEventsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	eventService := service.NewEventService(
		testutil.NewInMemoryEventStore(),
		testutil.NewInMemoryQueue(),
		service.NewValidationService(),
		config.GetDefaultConfig(),
		logger.L,
	)
	handler := NewEventsHandler(eventService, logger.L)

	router := gin.New()
	router.Use(middleware.ErrorHandler(), func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), types.CtxTenantID, types.DefaultTenantID)
		c.Request = c.Request.WithContext(ctx)
	})
	router.POST("/events", handler.IngestEvent)
	router.POST("/events/batch", handler.IngestBatch)
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

const validEventBody = `{
	"event_id": "evt-1",
	"user_id": "user-1",
	"service_type": "llm_service",
	"service_provider": "openai",
	"metadata": {"model": "gpt-4"},
	"metrics": {"input_tokens": 100, "output_tokens": 50}
}`

func TestIngestEventStatusCodes(t *testing.T) {
	router := newEventsRouter()

	w := postJSON(router, "/events", validEventBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"event_id":"evt-1"`)

	// Missing user_id fails request validation.
	w = postJSON(router, "/events", `{"service_type": "llm_service"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(router, "/events", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestBatchStatusCodes(t *testing.T) {
	router := newEventsRouter()

	w := postJSON(router, "/events/batch", `{"events": [`+validEventBody+`]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed_count":1`)

	w = postJSON(router, "/events/batch", `{"events": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
