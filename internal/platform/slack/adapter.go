// Package slack adapts Slack's Events API, interaction payloads and Web API
// to the normalized pipeline types. Inbound authenticity is checked with
// Slack's signing-secret scheme; delivery uses chat.postMessage with a static
// bot token.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"askhub.app/askhub/internal/domain"
)

type Config struct {
	BotToken      string
	SigningSecret string
	BotUserID     string
}

type Adapter struct {
	client        *slack.Client
	signingSecret string
	botUserID     string
}

func New(cfg Config) *Adapter {
	return &Adapter{
		client:        slack.New(cfg.BotToken),
		signingSecret: cfg.SigningSecret,
		botUserID:     cfg.BotUserID,
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.PlatformSlack
}

// VerifySignature checks the v0 request signature. A missing signing secret
// disables verification (local development only).
func (a *Adapter) VerifySignature(header http.Header, body []byte) error {
	if a.signingSecret == "" {
		return nil
	}
	verifier, err := slack.NewSecretsVerifier(header, a.signingSecret)
	if err != nil {
		return fmt.Errorf("reading signature headers: %w", err)
	}
	if _, err := verifier.Write(body); err != nil {
		return fmt.Errorf("hashing request body: %w", err)
	}
	if err := verifier.Ensure(); err != nil {
		return fmt.Errorf("signature mismatch: %w", err)
	}
	return nil
}

// Inbound is the outcome of normalizing one Events API request. Exactly one
// field is set.
type Inbound struct {
	// Challenge is the handshake token to echo back verbatim.
	Challenge string
	// Event is a content-bearing event for the pipeline.
	Event *domain.InboundEvent
}

// ParseEvent normalizes an Events API request body. Events that carry no
// question (bot messages, unsupported inner events) yield a zero Inbound.
func (a *Adapter) ParseEvent(body []byte) (Inbound, error) {
	outer, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return Inbound{}, fmt.Errorf("parsing events payload: %w", err)
	}

	switch outer.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return Inbound{}, fmt.Errorf("parsing challenge: %w", err)
		}
		return Inbound{Challenge: challenge.Challenge}, nil

	case slackevents.CallbackEvent:
		switch ev := outer.InnerEvent.Data.(type) {
		case *slackevents.AppMentionEvent:
			return Inbound{Event: &domain.InboundEvent{
				Platform:       domain.PlatformSlack,
				ConversationID: ev.Channel,
				ThreadID:       ev.ThreadTimeStamp,
				UserID:         ev.User,
				RawText:        ev.Text,
				Kind:           domain.KindMention,
				ReceivedAt:     time.Now(),
			}}, nil
		case *slackevents.MessageEvent:
			if ev.BotID != "" || ev.User == "" {
				return Inbound{}, nil
			}
			return Inbound{Event: &domain.InboundEvent{
				Platform:       domain.PlatformSlack,
				ConversationID: ev.Channel,
				ThreadID:       ev.ThreadTimeStamp,
				UserID:         ev.User,
				RawText:        ev.Text,
				Kind:           domain.KindMessage,
				ReceivedAt:     time.Now(),
			}}, nil
		default:
			return Inbound{}, nil
		}

	default:
		return Inbound{}, nil
	}
}

// ParseInteraction normalizes a block-actions interaction payload (the
// form-encoded "payload" field of an interactivity request) into a feedback
// event.
func ParseInteraction(payload []byte) (domain.FeedbackEvent, error) {
	var callback slack.InteractionCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return domain.FeedbackEvent{}, fmt.Errorf("parsing interaction payload: %w", err)
	}
	if callback.Type != slack.InteractionTypeBlockActions || len(callback.ActionCallback.BlockActions) == 0 {
		return domain.FeedbackEvent{}, fmt.Errorf("unsupported interaction type %q", callback.Type)
	}

	action := callback.ActionCallback.BlockActions[0]
	return domain.FeedbackEvent{
		Platform:       domain.PlatformSlack,
		ConversationID: callback.Channel.ID,
		ThreadID:       callback.Container.ThreadTs,
		UserID:         callback.User.ID,
		Verdict:        domain.ParseVerdict(action.Value),
	}, nil
}

var mentionRe = regexp.MustCompile(`<@[A-Z0-9]+>`)

func (a *Adapter) StripMention(text string) string {
	if a.botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+a.botUserID+">", "")
	} else {
		text = mentionRe.ReplaceAllString(text, "")
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
		fmt.Fprintf(&b, "<%s|%s>", s.URL, s.Title)
	}
	return b.String()
}

func (a *Adapter) SupportsButtons() bool {
	return true
}

func (a *Adapter) Deliver(ctx context.Context, out domain.OutboundAnswer) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(out.Text, false),
	}
	if out.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(out.ThreadID))
	}
	if out.WithFeedbackButtons {
		opts = append(opts, slack.MsgOptionBlocks(answerBlocks(out.Text)...))
	}

	_, _, err := a.client.PostMessageContext(ctx, out.ConversationID, opts...)
	if err != nil {
		slog.ErrorContext(ctx, "slack delivery failed",
			"platform", domain.PlatformSlack,
			"conversation_id", out.ConversationID,
			"error", err)
		return fmt.Errorf("posting message: %w", err)
	}
	return nil
}

func answerBlocks(text string) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
			nil, nil,
		),
		slack.NewActionBlock(
			"feedback",
			slack.NewButtonBlockElement(
				"feedback_satisfactory",
				string(domain.VerdictSatisfactory),
				slack.NewTextBlockObject(slack.PlainTextType, "👍 Satisfactory", true, false),
			).WithStyle(slack.StylePrimary),
			slack.NewButtonBlockElement(
				"feedback_unsatisfactory",
				string(domain.VerdictUnsatisfactory),
				slack.NewTextBlockObject(slack.PlainTextType, "👎 Unsatisfactory", true, false),
			).WithStyle(slack.StyleDanger),
		),
	}
}
