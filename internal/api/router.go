package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"production-status-backend/config"
	"production-status-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(log), mw.Metrics())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Dashboard counts may be stale for one TTL.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Owner(h.store.Owners.FindLive))
	{
		api.GET("/machines", h.ListMachines)
		api.GET("/machines/available", h.GetAvailableMachines)
		api.POST("/machines", h.RegisterMachine)
		api.DELETE("/machines/:id", h.DeleteMachine)

		api.GET("/productions", h.ListProductions)
		api.POST("/productions", h.CreateProduction)
		api.GET("/productions/:id", h.GetProduction)
		api.DELETE("/productions/:id", h.DeleteProduction)
		api.GET("/productions/:id/can_finish", h.CanFinish)
		api.POST("/productions/:id/start", h.StartProduction)
		api.POST("/productions/:id/cancel", h.CancelProduction)
		api.POST("/productions/:id/finish", h.FinishProduction)

		pm := api.Group("/productions/:id/machines/:pm_id")
		pm.POST("/start", h.StartAssignment)
		pm.POST("/halt", h.HaltAssignment)
		pm.POST("/resume", h.ResumeAssignment)
		pm.POST("/finish", h.FinishAssignment)
		pm.POST("/cancel", h.CancelAssignment)

		api.GET("/dashboard", caching, h.GetDashboard)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
