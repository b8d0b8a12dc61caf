// Package googlechat adapts Google Chat app events. Unlike the other
// platforms, Chat is synchronous: the answer travels back in the webhook
// response body, so Deliver never performs network I/O.
package googlechat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"askhub.app/askhub/internal/domain"
)

type Config struct {
	BotMention string
}

type Adapter struct {
	botMention string
}

func New(cfg Config) *Adapter {
	return &Adapter{botMention: cfg.BotMention}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.PlatformGoogleChat
}

// Event is the subset of a Chat app event this service reads.
type Event struct {
	Type    string `json:"type"`
	Message struct {
		Text         string `json:"text"`
		ArgumentText string `json:"argumentText"`
		Thread       struct {
			Name string `json:"name"`
		} `json:"thread"`
		Sender struct {
			Name string `json:"name"`
		} `json:"sender"`
	} `json:"message"`
	Space struct {
		Name string `json:"name"`
	} `json:"space"`
}

// Response is the synchronous reply body.
type Response struct {
	Text string `json:"text"`
}

// ParseEvent normalizes a Chat webhook body. Non-MESSAGE events yield nil.
func (a *Adapter) ParseEvent(body []byte) (*domain.InboundEvent, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("parsing chat event: %w", err)
	}
	if ev.Type != "MESSAGE" {
		return nil, nil
	}

	// argumentText is the message with the app mention already removed; fall
	// back to the raw text for direct messages.
	text := ev.Message.ArgumentText
	if strings.TrimSpace(text) == "" {
		text = ev.Message.Text
	}

	return &domain.InboundEvent{
		Platform:       domain.PlatformGoogleChat,
		ConversationID: ev.Space.Name,
		ThreadID:       ev.Message.Thread.Name,
		UserID:         ev.Message.Sender.Name,
		RawText:        text,
		Kind:           domain.KindMessage,
		ReceivedAt:     time.Now(),
	}, nil
}

func (a *Adapter) StripMention(text string) string {
	if a.botMention != "" {
		text = strings.ReplaceAll(text, a.botMention, "")
	}
	return strings.TrimSpace(text)
}

func (a *Adapter) FormatAnswer(text string, sources []domain.Source) string {
	if len(sources) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nI used these sources:\n")
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", s.Title, s.URL)
	}
	return b.String()
}

func (a *Adapter) SupportsButtons() bool {
	return false
}

// Deliver is a no-op: the handler returns the answer in the webhook response.
func (a *Adapter) Deliver(_ context.Context, _ domain.OutboundAnswer) error {
	return nil
}
