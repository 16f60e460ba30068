// Package api exposes the HTTP surface (webhook, contacts, messages) and the
// gRPC event service used by wphookctl.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wphook/internal/conversation"
	"github.com/matheus3301/wphook/internal/webhook"
	"go.uber.org/zap"
)

// NewRouter wires every HTTP route onto a gin engine.
func NewRouter(hook *webhook.Handler, svc *conversation.Service, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery(), cors())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	contacts := &ContactHandler{svc: svc, logger: logger}
	messages := &MessageHandler{svc: svc, logger: logger}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/webhook", hook.Verify)
		apiGroup.POST("/webhook", hook.Receive)

		contactGroup := apiGroup.Group("/contacts")
		{
			contactGroup.GET("", contacts.List)
			contactGroup.POST("", contacts.Create)
			contactGroup.GET("/:waId", contacts.Get)
			contactGroup.PUT("/:waId", contacts.Update)
			contactGroup.DELETE("/:waId", contacts.Delete)
			contactGroup.PATCH("/:waId/toggle/:action", contacts.Toggle)
			contactGroup.PATCH("/:waId/status", contacts.SetStatus)
			contactGroup.POST("/demo/online/:waId", contacts.DemoOnline)
			contactGroup.POST("/demo/offline/:waId", contacts.DemoOffline)
		}

		messageGroup := apiGroup.Group("/messages")
		{
			messageGroup.GET("/conversations", messages.Conversations)
			messageGroup.GET("/conversation/:waId", messages.Conversation)
			messageGroup.POST("/send", messages.Send)
			messageGroup.GET("/status-updates/:waId", messages.StatusUpdates)
			messageGroup.GET("/stats", messages.Stats)
		}
	}
	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Hub-Signature-256")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
