package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/webrtc-signaling/config"
	"github.com/mossy-p/webrtc-signaling/internal/middleware"
)

// SetupRouter wires the HTTP and WebSocket routes.
func SetupRouter(cfg *config.Config, h *Handler) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestLogger(), gin.Recovery())

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middleware.JWTAuth(cfg.JWTSecret)

	api := router.Group("/api", auth)
	{
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms/:roomId", h.GetRoom)
		api.DELETE("/rooms/:roomId", h.DeleteRoom)
	}

	ws := router.Group("/ws", auth)
	{
		ws.GET("/call/:roomId", h.HandleCall)
	}

	return router
}
