package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"attendance-backend/config"
	"attendance-backend/internal/logger"
	"attendance-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(logger.Component("http")))

	if d.EventTimeout <= 0 {
		d.EventTimeout = cfg.EventTimeout
	}
	handler := NewHandler(d)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	cacheStore := cache.New(ttl, 10*time.Minute)
	caching := mw.Cache(cacheStore, ttl)
	invalidate := mw.Invalidate(cacheStore)

	// The device pushes here; it must never be throttled.
	r.POST("/event", invalidate, handler.ReceiveEvent)

	api := r.Group("/api")
	api.Use(rateLimiter, invalidate)
	{
		api.GET("/events/stream", handler.StreamEvents)

		api.GET("/employees", caching, handler.ListEmployees)
		api.GET("/employees/:id", handler.GetEmployee)
		api.POST("/employees/register", handler.RegisterEmployee)
		api.PUT("/employees/:id", handler.UpdateEmployee)
		api.DELETE("/employees/:id", handler.DeactivateEmployee)

		api.GET("/attendance/daily", caching, handler.GetDailyAttendance)
		api.GET("/attendance/logs", caching, handler.GetAttendanceLogs)
		api.GET("/attendance/missed-checkout", caching, handler.GetMissedCheckouts)
		api.POST("/attendance/manual-checkout", handler.ManualCheckout)

		api.GET("/dashboard/stats", caching, handler.GetDashboardStats)

		api.GET("/system/health", handler.Health)
		api.POST("/system/sync", handler.TriggerSync)
		api.GET("/system/departments", caching, handler.ListDepartments)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
