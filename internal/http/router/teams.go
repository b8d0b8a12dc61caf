package router

import (
	"github.com/gin-gonic/gin"

	"askhub.app/askhub/internal/http/handler"
)

func TeamsRouter(rg *gin.RouterGroup, h *handler.TeamsHandler) {
	rg.POST("/messages", h.HandleActivity)
}
