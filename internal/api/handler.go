package api

import (
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"production-status-backend/internal/availability"
	"production-status-backend/internal/lifecycle"
	"production-status-backend/internal/mw"
	"production-status-backend/internal/registry"
	"production-status-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    *store.Store
	registry *registry.Registry
	engine   *lifecycle.Engine
	resolver *availability.Resolver
	webpush  *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s *store.Store, reg *registry.Registry, engine *lifecycle.Engine, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:    s,
		registry: reg,
		engine:   engine,
		resolver: availability.NewResolver(s),
		webpush:  webpushOptions,
	}
}

func ownerID(c *gin.Context) int64 {
	return mw.CurrentOwner(c).ID
}

// pathID parses a positive int64 path parameter, writing a 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "invalid " + name})
		return 0, false
	}
	return id, true
}
