package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"askhub.app/askhub/internal/domain"
	"askhub.app/askhub/internal/feedback"
	"askhub.app/askhub/internal/pipeline"
	teamsadapter "askhub.app/askhub/internal/platform/teams"
)

type TeamsHandler struct {
	adapter  *teamsadapter.Adapter
	pipeline *pipeline.Pipeline
	recorder *feedback.Recorder
}

func NewTeamsHandler(adapter *teamsadapter.Adapter, p *pipeline.Pipeline, recorder *feedback.Recorder) *TeamsHandler {
	return &TeamsHandler{adapter: adapter, pipeline: p, recorder: recorder}
}

// HandleActivity acknowledges a Bot Framework activity immediately. Feedback
// button presses arrive as message activities carrying the feedback marker
// and are confirmed with a posted reply; questions go to the pipeline.
func (h *TeamsHandler) HandleActivity(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	inbound, err := h.adapter.ParseActivity(body)
	if err != nil {
		slog.WarnContext(ctx, "teams activity rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	switch {
	case inbound.Feedback != nil:
		confirmation, err := h.recorder.Record(ctx, *inbound.Feedback)
		if err != nil {
			slog.ErrorContext(ctx, "recording feedback failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record feedback"})
			return
		}
		if err := h.adapter.Deliver(ctx, domain.OutboundAnswer{
			ConversationID: inbound.Feedback.ConversationID,
			ThreadID:       inbound.Feedback.ThreadID,
			Text:           confirmation,
		}); err != nil {
			slog.WarnContext(ctx, "posting feedback confirmation failed", "error", err)
		}
		c.JSON(http.StatusOK, gin.H{})

	case inbound.Event != nil:
		workID, err := h.pipeline.Enqueue(*inbound.Event)
		if err != nil {
			slog.WarnContext(ctx, "teams activity dropped, queue full",
				"conversation_id", inbound.Event.ConversationID)
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		slog.InfoContext(ctx, "teams activity enqueued",
			"work_id", workID,
			"conversation_id", inbound.Event.ConversationID)
		c.JSON(http.StatusOK, gin.H{})

	default:
		// Typing indicators, membership changes and the like.
		c.JSON(http.StatusOK, gin.H{})
	}
}
