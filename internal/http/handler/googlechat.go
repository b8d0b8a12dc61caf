package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"askhub.app/askhub/internal/pipeline"
	chatadapter "askhub.app/askhub/internal/platform/googlechat"
)

type GoogleChatHandler struct {
	adapter  *chatadapter.Adapter
	pipeline *pipeline.Pipeline
}

func NewGoogleChatHandler(adapter *chatadapter.Adapter, p *pipeline.Pipeline) *GoogleChatHandler {
	return &GoogleChatHandler{adapter: adapter, pipeline: p}
}

// HandleEvent answers synchronously: Google Chat delivers the reply from the
// webhook response body, so the question runs inline under the pipeline's
// query timeout.
func (h *GoogleChatHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	event, err := h.adapter.ParseEvent(body)
	if err != nil {
		slog.WarnContext(ctx, "google chat event rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if event == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	text := h.pipeline.Answer(ctx, h.adapter, *event)
	c.JSON(http.StatusOK, chatadapter.Response{Text: text})
}
