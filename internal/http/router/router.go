package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"notulis.app/bot/internal/http/handler"
	"notulis.app/bot/internal/http/middleware"
)

type RouterConfig struct {
	WebhookSecret string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func SetupRoutes(router *gin.Engine, webhook *handler.WebhookHandler, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	WebhookRouter(router.Group("/webhooks", middleware.RequireWebhookSecret(cfg.WebhookSecret)), webhook)
}

func WebhookRouter(router *gin.RouterGroup, handler *handler.WebhookHandler) {
	router.POST("/messages", handler.HandleEvent)
}
