package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	v1 := r.Group("/api")
	{
		// Health check (handle both GET and HEAD)
		v1.GET("/health", h.HealthCheck)
		v1.HEAD("/health", h.HealthCheck)

		// History
		v1.GET("/history", h.GetHistory)
		v1.DELETE("/history", h.ClearHistory)

		// Scanning
		v1.POST("/scan", h.Scan)
		v1.GET("/scan", h.GetScanStatus)

		// Product detail
		v1.GET("/products/:code", h.GetProduct)

		// Server-sent events
		v1.GET("/events", h.Events)

		// Admin operations (no authentication, bind to localhost in production)
		v1.POST("/admin/flush", h.Flush)
	}
}
