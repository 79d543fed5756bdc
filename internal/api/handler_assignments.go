package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"production-status-backend/internal/model"
)

type assignmentTransition func(ctx context.Context, ownerID, productionID, pmID int64) (*model.ProductionMachine, error)

func (h *Handler) transitionAssignment(op assignmentTransition) gin.HandlerFunc {
	return func(c *gin.Context) {
		productionID, ok := pathID(c, "id")
		if !ok {
			return
		}
		pmID, ok := pathID(c, "pm_id")
		if !ok {
			return
		}
		pm, err := op(c.Request.Context(), ownerID(c), productionID, pmID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pm)
	}
}

// StartAssignment handles POST /api/productions/:id/machines/:pm_id/start.
func (h *Handler) StartAssignment(c *gin.Context) {
	h.transitionAssignment(h.engine.StartAssignment)(c)
}

// HaltAssignment handles POST /api/productions/:id/machines/:pm_id/halt.
func (h *Handler) HaltAssignment(c *gin.Context) {
	h.transitionAssignment(h.engine.HaltAssignment)(c)
}

// ResumeAssignment handles POST /api/productions/:id/machines/:pm_id/resume.
func (h *Handler) ResumeAssignment(c *gin.Context) {
	h.transitionAssignment(h.engine.ResumeAssignment)(c)
}

// FinishAssignment handles POST /api/productions/:id/machines/:pm_id/finish.
func (h *Handler) FinishAssignment(c *gin.Context) {
	h.transitionAssignment(h.engine.FinishAssignment)(c)
}

// CancelAssignment handles POST /api/productions/:id/machines/:pm_id/cancel.
func (h *Handler) CancelAssignment(c *gin.Context) {
	h.transitionAssignment(h.engine.CancelAssignment)(c)
}
