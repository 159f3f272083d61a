package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usageline/usageline/internal/api/dto"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/service"
)

type QueryHandler struct {
	queryService service.QueryService
	log          *logger.Logger
}

func NewQueryHandler(queryService service.QueryService, log *logger.Logger) *QueryHandler {
	return &QueryHandler{queryService: queryService, log: log}
}

// @Summary Get aggregated usage
// @Description Read pre-computed aggregate cells for a period granularity
// @Tags Analytics
// @Produce json
// @Security ApiKeyAuth
// @Param period query string false "Period (hour|day|week|month, default day)"
// @Param start_date query string false "Start Date (RFC3339)"
// @Param end_date query string false "End Date (RFC3339)"
// @Param service_type query string false "Service Type"
// @Param service_provider query string false "Service Provider"
// @Param user_id query string false "User ID"
// @Success 200 {object} dto.AggregateUsageResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /usage/aggregate [get]
func (h *QueryHandler) GetAggregates(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.AggregateUsageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Error("Failed to bind query", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.queryService.GetAggregates(ctx, &req)
	if err != nil {
		h.log.Error("Failed to get aggregates", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get service breakdown
// @Description Group usage by service type and provider over a window
// @Tags Analytics
// @Produce json
// @Security ApiKeyAuth
// @Param start_date query string false "Start Date (RFC3339)"
// @Param end_date query string false "End Date (RFC3339)"
// @Success 200 {object} dto.ServiceBreakdownResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /usage/by-service [get]
func (h *QueryHandler) GetServiceBreakdown(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.BreakdownRange
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Error("Failed to bind query", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.queryService.GetServiceBreakdown(ctx, &req)
	if err != nil {
		h.log.Error("Failed to get service breakdown", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get cost analysis
// @Description Break cost down by aligned period and by service
// @Tags Analytics
// @Produce json
// @Security ApiKeyAuth
// @Param group_by query string false "Group By (hour|day|week|month, default day)"
// @Param start_date query string false "Start Date (RFC3339)"
// @Param end_date query string false "End Date (RFC3339)"
// @Success 200 {object} dto.CostAnalysisResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /usage/costs [get]
func (h *QueryHandler) GetCostAnalysis(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.CostAnalysisRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Error("Failed to bind query", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.queryService.GetCostAnalysis(ctx, &req)
	if err != nil {
		h.log.Error("Failed to get cost analysis", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get usage trends
// @Description Detect the direction of an aggregate metric over a window
// @Tags Analytics
// @Produce json
// @Security ApiKeyAuth
// @Param metric query string false "Metric (event_count|total_cost|unique_users)"
// @Param period query string false "Period (hour|day|week|month, default day)"
// @Param start_date query string false "Start Date (RFC3339)"
// @Param end_date query string false "End Date (RFC3339)"
// @Success 200 {object} dto.TrendsResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /analytics/trends [get]
func (h *QueryHandler) GetTrends(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.TrendsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Error("Failed to bind query", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.queryService.GetTrends(ctx, &req)
	if err != nil {
		h.log.Error("Failed to get trends", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
