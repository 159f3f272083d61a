package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/domain/alerts"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/service"
	"github.com/usageline/usageline/internal/types"
)

type AlertHandler struct {
	service service.AlertService
	log     *logger.Logger
}

func NewAlertHandler(service service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{service: service, log: log}
}

func (h *AlertHandler) CreateConfiguration(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.CreateAlertConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	cfg, err := h.service.CreateConfiguration(ctx, &req)
	if err != nil {
		h.log.Error("Failed to create alert configuration", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

func (h *AlertHandler) ListConfigurations(c *gin.Context) {
	ctx := c.Request.Context()
	configs, err := h.service.ListConfigurations(ctx)
	if err != nil {
		h.log.Error("Failed to list alert configurations", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, types.NewListResponse(configs, len(configs), len(configs), 0))
}

func (h *AlertHandler) ListInstances(c *gin.Context) {
	ctx := c.Request.Context()
	filter := &alerts.InstanceFilter{
		ConfigurationID: c.Query("configuration_id"),
		Status:          alerts.InstanceStatus(c.Query("status")),
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	instances, err := h.service.ListInstances(ctx, filter)
	if err != nil {
		h.log.Error("Failed to list alert instances", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, types.NewListResponse(instances, len(instances), filter.Limit, filter.Offset))
}

func (h *AlertHandler) AcknowledgeInstance(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("instance ID is required").
			WithHint("Instance ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	var req dto.AcknowledgeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	inst, err := h.service.Acknowledge(ctx, id, &req)
	if err != nil {
		h.log.Error("Failed to acknowledge alert", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, inst)
}
