package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetDashboard handles GET /api/dashboard.
func (h *Handler) GetDashboard(c *gin.Context) {
	counts, err := h.resolver.DashboardCounts(c.Request.Context(), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// GetAvailableMachines handles GET /api/machines/available.
func (h *Handler) GetAvailableMachines(c *gin.Context) {
	machines, err := h.resolver.AvailableMachines(c.Request.Context(), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}
