package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usageline/usageline/internal/service"
)

type HealthHandler struct {
	service service.HealthService
}

func NewHealthHandler(service service.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Health reports component reachability. Unhealthy components turn the
// overall status and response code.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := h.service.Check(c.Request.Context())
	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
