package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"askhub.app/askhub/internal/dedup"
	"askhub.app/askhub/internal/feedback"
	"askhub.app/askhub/internal/pipeline"
	slackadapter "askhub.app/askhub/internal/platform/slack"
)

// noRetryHeader tells Slack not to redeliver this event: the ack is final
// even when the answer pipeline later fails.
const noRetryHeader = "X-Slack-No-Retry"

type SlackHandler struct {
	adapter  *slackadapter.Adapter
	pipeline *pipeline.Pipeline
	recorder *feedback.Recorder
	deduper  dedup.Deduper
}

func NewSlackHandler(adapter *slackadapter.Adapter, p *pipeline.Pipeline, recorder *feedback.Recorder, deduper dedup.Deduper) *SlackHandler {
	return &SlackHandler{
		adapter:  adapter,
		pipeline: p,
		recorder: recorder,
		deduper:  deduper,
	}
}

// HandleEvent acknowledges an Events API delivery within Slack's 3-second
// deadline. Anything slow (retrieval, generation, posting the answer) happens
// in the pipeline after the ack.
func (h *SlackHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if err := h.adapter.VerifySignature(c.Request.Header, body); err != nil {
		slog.WarnContext(ctx, "slack signature rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	inbound, err := h.adapter.ParseEvent(body)
	if err != nil {
		slog.WarnContext(ctx, "slack payload rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	// Handshake: echo the challenge and nothing else.
	if inbound.Challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": inbound.Challenge})
		return
	}

	c.Header(noRetryHeader, "1")

	if inbound.Event == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// Every first delivery is acked with the no-retry header, so anything
	// carrying a retry counter is a duplicate by definition.
	if retry := c.GetHeader("X-Slack-Retry-Num"); retry != "" {
		slog.InfoContext(ctx, "slack retry delivery ignored", "retry_num", retry)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	// The event ID is stable across redeliveries, so the first sighting wins
	// even when the retry header is missing.
	if eventID := extractEventID(body); eventID != "" {
		seen, err := h.deduper.Seen(ctx, "slack:"+eventID)
		if err != nil {
			slog.WarnContext(ctx, "dedup check failed, processing anyway", "error", err)
		} else if seen {
			slog.InfoContext(ctx, "duplicate slack event ignored",
				"event_id", eventID,
				"retry_num", c.GetHeader("X-Slack-Retry-Num"))
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
	}

	workID, err := h.pipeline.Enqueue(*inbound.Event)
	if err != nil {
		slog.WarnContext(ctx, "slack event dropped, queue full",
			"conversation_id", inbound.Event.ConversationID)
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "busy"})
		return
	}

	slog.InfoContext(ctx, "slack event enqueued",
		"work_id", workID,
		"conversation_id", inbound.Event.ConversationID,
		"event_kind", inbound.Event.Kind)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleAction records a feedback button press and returns the confirmation
// Slack shows in place of a reply.
func (h *SlackHandler) HandleAction(c *gin.Context) {
	ctx := c.Request.Context()

	payload := c.PostForm("payload")
	if payload == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payload"})
		return
	}

	ev, err := slackadapter.ParseInteraction([]byte(payload))
	if err != nil {
		slog.WarnContext(ctx, "slack interaction rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	confirmation, err := h.recorder.Record(ctx, ev)
	if err != nil {
		slog.ErrorContext(ctx, "recording feedback failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record feedback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response_type":    "ephemeral",
		"replace_original": false,
		"text":             confirmation,
	})
}

func extractEventID(body []byte) string {
	var envelope struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.EventID
}
