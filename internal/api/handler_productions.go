package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"production-status-backend/internal/lifecycle"
	"production-status-backend/internal/model"
)

type createProductionRequest struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	MachineIDs  []int64 `json:"machine_ids"`
}

// ListProductions handles GET /api/productions.
func (h *Handler) ListProductions(c *gin.Context) {
	runs, err := h.engine.List(c.Request.Context(), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// CreateProduction handles POST /api/productions.
func (h *Handler) CreateProduction(c *gin.Context) {
	var req createProductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.engine.Create(c.Request.Context(), ownerID(c), lifecycle.CreateInput{
		Description: req.Description,
		Quantity:    req.Quantity,
		MachineIDs:  req.MachineIDs,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetProduction handles GET /api/productions/:id.
func (h *Handler) GetProduction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.engine.Get(c.Request.Context(), ownerID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// DeleteProduction handles DELETE /api/productions/:id.
func (h *Handler) DeleteProduction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Delete(c.Request.Context(), ownerID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CanFinish handles GET /api/productions/:id/can_finish.
func (h *Handler) CanFinish(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	can, err := h.engine.CanFinish(c.Request.Context(), ownerID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_finish": can})
}

type productionTransition func(ctx context.Context, ownerID, productionID int64) (*model.Production, error)

// transitionProduction adapts one run-level engine operation to a handler.
func (h *Handler) transitionProduction(op productionTransition) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		p, err := op(c.Request.Context(), ownerID(c), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// StartProduction handles POST /api/productions/:id/start.
func (h *Handler) StartProduction(c *gin.Context) {
	h.transitionProduction(h.engine.Start)(c)
}

// CancelProduction handles POST /api/productions/:id/cancel.
func (h *Handler) CancelProduction(c *gin.Context) {
	h.transitionProduction(h.engine.Cancel)(c)
}

// FinishProduction handles POST /api/productions/:id/finish.
func (h *Handler) FinishProduction(c *gin.Context) {
	h.transitionProduction(h.engine.Finish)(c)
}
