package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usageline/usageline/internal/api/dto"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/service"
)

type TenantHandler struct {
	service service.TenantService
	log     *logger.Logger
}

func NewTenantHandler(service service.TenantService, log *logger.Logger) *TenantHandler {
	return &TenantHandler{service: service, log: log}
}

// CreateTenant provisions a tenant. The response is the only place the
// api key ever appears.
func (h *TenantHandler) CreateTenant(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Create(ctx, &req)
	if err != nil {
		h.log.Error("Failed to create tenant", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *TenantHandler) GetTenant(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	resp, err := h.service.Get(ctx, id)
	if err != nil {
		h.log.Error("Failed to get tenant", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
