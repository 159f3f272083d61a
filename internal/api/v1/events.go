package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usageline/usageline/internal/api/dto"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/service"
)

type EventsHandler struct {
	eventService service.EventService
	log          *logger.Logger
}

func NewEventsHandler(eventService service.EventService, log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		eventService: eventService,
		log:          log,
	}
}

// @Summary Ingest event
// @Description Accept one usage event for asynchronous processing
// @Tags Events
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param event body dto.IngestEventRequest true "Event data"
// @Success 200 {object} dto.IngestEventResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Router /events [post]
func (h *EventsHandler) IngestEvent(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.eventService.Ingest(ctx, &req)
	if err != nil {
		h.log.Error("Failed to ingest event", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Ingest event batch
// @Description Accept up to the configured maximum of events in one request
// @Tags Events
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param batch body dto.BatchIngestRequest true "Event batch"
// @Success 200 {object} dto.BatchIngestResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Router /events/batch [post]
func (h *EventsHandler) IngestBatch(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.BatchIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.eventService.IngestBatch(ctx, &req)
	if err != nil {
		h.log.Error("Failed to ingest batch", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get raw events
// @Description Retrieve stored events with pagination and filtering, newest first
// @Tags Events
// @Produce json
// @Security ApiKeyAuth
// @Param start_date query string false "Start Date (RFC3339)"
// @Param end_date query string false "End Date (RFC3339)"
// @Param service_type query string false "Service Type"
// @Param service_provider query string false "Service Provider"
// @Param user_id query string false "User ID"
// @Param limit query int false "Limit (default 100, max 10000)"
// @Param offset query int false "Offset"
// @Param include_billing query bool false "Include billing detail"
// @Success 200 {object} dto.UsageResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Router /usage [get]
func (h *EventsHandler) GetUsage(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.GetUsageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Error("Failed to bind query", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.eventService.GetUsage(ctx, &req)
	if err != nil {
		h.log.Error("Failed to get usage", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
