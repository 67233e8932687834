package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sla-monitor/internal/logging"
)

func NewRouter(h *Handler, logger *logging.Logger, basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger.Component("http")))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if basePath == "" {
		basePath = "/api/v0"
	}
	api := r.Group(basePath)
	{
		// SLA view
		api.GET("/sla/view", h.GetView)
		api.GET("/sla/health", h.GetHealth)
		api.GET("/sla/alerts", h.GetAlerts)
		api.POST("/sla/alerts/:id/acknowledge", h.AcknowledgeAlert)
		api.POST("/sla/refresh", h.Refresh)
		api.POST("/sla/connect", h.Connect)
		api.POST("/sla/disconnect", h.Disconnect)
		api.GET("/sla/ws", h.StreamView)

		// Sessions
		api.GET("/sessions", h.ListSessions)
		api.DELETE("/sessions/:id", h.RevokeSession)
	}
	return r
}
