package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usageline/usageline/internal/api/dto"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/service"
	"github.com/usageline/usageline/internal/types"
)

type BillingRuleHandler struct {
	service service.BillingRuleService
	log     *logger.Logger
}

func NewBillingRuleHandler(service service.BillingRuleService, log *logger.Logger) *BillingRuleHandler {
	return &BillingRuleHandler{service: service, log: log}
}

func (h *BillingRuleHandler) CreateRule(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.CreateBillingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	rule, err := h.service.Create(ctx, &req)
	if err != nil {
		h.log.Error("Failed to create billing rule", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

func (h *BillingRuleHandler) UpdateRule(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("rule ID is required").
			WithHint("Rule ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	var req dto.UpdateBillingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	rule, err := h.service.Update(ctx, id, &req)
	if err != nil {
		h.log.Error("Failed to update billing rule", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

func (h *BillingRuleHandler) GetRule(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	rule, err := h.service.Get(ctx, id)
	if err != nil {
		h.log.Error("Failed to get billing rule", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *BillingRuleHandler) ListRules(c *gin.Context) {
	ctx := c.Request.Context()
	serviceType := types.ServiceType(c.Query("service_type"))
	if serviceType != "" {
		if err := serviceType.Validate(); err != nil {
			c.Error(err)
			return
		}
	}

	rules, err := h.service.List(ctx, serviceType, c.Query("service_provider"))
	if err != nil {
		h.log.Error("Failed to list billing rules", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, types.NewListResponse(rules, len(rules), len(rules), 0))
}
