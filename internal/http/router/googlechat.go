package router

import (
	"github.com/gin-gonic/gin"

	"askhub.app/askhub/internal/http/handler"
)

func GoogleChatRouter(rg *gin.RouterGroup, h *handler.GoogleChatHandler) {
	rg.POST("/events", h.HandleEvent)
}
