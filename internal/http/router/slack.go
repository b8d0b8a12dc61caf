package router

import (
	"github.com/gin-gonic/gin"

	"askhub.app/askhub/internal/http/handler"
)

func SlackRouter(rg *gin.RouterGroup, h *handler.SlackHandler) {
	rg.POST("/events", h.HandleEvent)
	rg.POST("/actions", h.HandleAction)
}
