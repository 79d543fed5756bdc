package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"production-status-backend/internal/apperr"
)

var kindStatus = map[apperr.Kind]int{
	apperr.NotFound:            http.StatusNotFound,
	apperr.Forbidden:           http.StatusForbidden,
	apperr.InvalidInput:        http.StatusBadRequest,
	apperr.EmptyMachineSet:     http.StatusBadRequest,
	apperr.InvalidQuantity:     http.StatusBadRequest,
	apperr.MachineNotOwned:     http.StatusBadRequest,
	apperr.QuotaExceeded:       http.StatusUnprocessableEntity,
	apperr.DuplicateSerial:     http.StatusConflict,
	apperr.MachineBusy:         http.StatusConflict,
	apperr.InvalidTransition:   http.StatusConflict,
	apperr.AlreadyTerminal:     http.StatusConflict,
	apperr.ParentTerminal:      http.StatusConflict,
	apperr.MachinesStillActive: http.StatusConflict,
}

type errorResponse struct {
	Error      string  `json:"error"`
	Message    string  `json:"message"`
	Limit      int     `json:"limit,omitempty"`
	Status     string  `json:"status,omitempty"`
	MachineIDs []int64 `json:"machine_ids,omitempty"`
}

// writeError renders err. Domain failures keep their kind; anything else is a 500.
func writeError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
		return
	}
	status, ok := kindStatus[e.Kind]
	if !ok {
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:      string(e.Kind),
		Message:    e.Message,
		Limit:      e.Limit,
		Status:     e.Status,
		MachineIDs: e.MachineIDs,
	})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: string(apperr.InvalidInput), Message: err.Error()})
}
