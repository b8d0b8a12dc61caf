package router

import (
	"github.com/gin-gonic/gin"

	"askhub.app/askhub/internal/http/handler"
)

type Handlers struct {
	Slack      *handler.SlackHandler
	Teams      *handler.TeamsHandler
	GoogleChat *handler.GoogleChatHandler
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	webhooks := router.Group("/webhooks")
	{
		SlackRouter(webhooks.Group("/slack"), h.Slack)
		TeamsRouter(webhooks.Group("/teams"), h.Teams)
		GoogleChatRouter(webhooks.Group("/googlechat"), h.GoogleChat)
	}
}
