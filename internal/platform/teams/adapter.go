// Package teams adapts Bot Framework activities to the normalized pipeline
// types. Outbound delivery posts to the per-conversation service URL the
// framework supplies on inbound traffic, authenticated with a client
// credentials bearer token.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"askhub.app/askhub/internal/domain"
)

const defaultTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
const defaultTokenScope = "https://api.botframework.com/.default"

// feedbackMarker prefixes the text of feedback button presses, which arrive as
// ordinary message activities.
const feedbackMarker = "Feedback: "

type Config struct {
	AppID       string
	AppPassword string
	TokenURL    string
	TokenScope  string
	BotMention  string

	// HTTPClient overrides the delivery and token transport. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

type Adapter struct {
	cfg        Config
	tokens     oauth2.TokenSource
	httpClient *http.Client

	mu     sync.Mutex
	routes map[string]route // conversation ID -> reply route
}

// route is where replies for a conversation are posted, learned from the last
// inbound activity.
type route struct {
	serviceURL string
	bot        Account
	user       Account
}

func New(cfg Config) *Adapter {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.TokenScope == "" {
		cfg.TokenScope = defaultTokenScope
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{
		cfg:        cfg,
		tokens:     newTokenSource(context.Background(), cfg, cfg.HTTPClient),
		httpClient: httpClient,
		routes:     make(map[string]route),
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.PlatformTeams
}

// Inbound is the outcome of normalizing one activity. At most one field is
// set; both nil means the activity carries nothing actionable.
type Inbound struct {
	Event    *domain.InboundEvent
	Feedback *domain.FeedbackEvent
}

// ParseActivity normalizes one Bot Framework activity. Message activities
// whose text carries the feedback marker become feedback events; other
// message activities become questions. Non-message activity types are
// ignored. The conversation's reply route is recorded as a side effect.
func (a *Adapter) ParseActivity(body []byte) (Inbound, error) {
	var act Activity
	if err := json.Unmarshal(body, &act); err != nil {
		return Inbound{}, fmt.Errorf("parsing activity: %w", err)
	}
	if act.Type != "message" {
		return Inbound{}, nil
	}

	a.rememberRoute(act)

	text := strings.TrimSpace(act.Text)
	if raw, ok := strings.CutPrefix(text, feedbackMarker); ok {
		return Inbound{Feedback: &domain.FeedbackEvent{
			Platform:       domain.PlatformTeams,
			ConversationID: act.Conversation.ID,
			ThreadID:       act.ReplyToID,
			UserID:         act.From.ID,
			Verdict:        domain.ParseVerdict(strings.TrimSpace(raw)),
		}}, nil
	}

	return Inbound{Event: &domain.InboundEvent{
		Platform:       domain.PlatformTeams,
		ConversationID: act.Conversation.ID,
		ThreadID:       act.ReplyToID,
		UserID:         act.From.ID,
		RawText:        act.Text,
		Kind:           domain.KindMessage,
		ReceivedAt:     time.Now(),
	}}, nil
}

func (a *Adapter) rememberRoute(act Activity) {
	if act.ServiceURL == "" || act.Conversation.ID == "" {
		return
	}
	a.mu.Lock()
	a.routes[act.Conversation.ID] = route{
		serviceURL: strings.TrimRight(act.ServiceURL, "/"),
		bot:        act.Recipient,
		user:       act.From,
	}
	a.mu.Unlock()
}

var atTagRe = regexp.MustCompile(`<at>[^<]*</at>`)

func (a *Adapter) StripMention(text string) string {
	text = atTagRe.ReplaceAllString(text, "")
	if a.cfg.BotMention != "" {
		text = strings.ReplaceAll(text, a.cfg.BotMention, "")
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
	return true
}

func (a *Adapter) Deliver(ctx context.Context, out domain.OutboundAnswer) error {
	a.mu.Lock()
	rt, ok := a.routes[out.ConversationID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("no reply route for conversation %s", out.ConversationID)
	}

	reply := Activity{
		Type:         "message",
		From:         rt.bot,
		Recipient:    rt.user,
		Conversation: Conversation{ID: out.ConversationID},
		ReplyToID:    out.ThreadID,
		Text:         out.Text,
	}
	if out.WithFeedbackButtons {
		reply.Attachments = []Attachment{{
			ContentType: heroCardContentType,
			Content:     feedbackCard(),
		}}
	}

	if err := a.postActivity(ctx, rt.serviceURL, out.ConversationID, reply); err != nil {
		slog.ErrorContext(ctx, "teams delivery failed",
			"platform", domain.PlatformTeams,
			"conversation_id", out.ConversationID,
			"error", err)
		return err
	}
	return nil
}

func feedbackCard() HeroCard {
	return HeroCard{
		Text: "Was this answer helpful?",
		Buttons: []CardAction{
			{
				Type:        "messageBack",
				Title:       "👍 Satisfactory",
				Text:        feedbackMarker + string(domain.VerdictSatisfactory),
				DisplayText: "👍",
			},
			{
				Type:        "messageBack",
				Title:       "👎 Unsatisfactory",
				Text:        feedbackMarker + string(domain.VerdictUnsatisfactory),
				DisplayText: "👎",
			},
		},
	}
}

func (a *Adapter) postActivity(ctx context.Context, serviceURL, conversationID string, act Activity) error {
	token, err := a.tokens.Token()
	if err != nil {
		return fmt.Errorf("fetching bot token: %w", err)
	}

	payload, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}

	url := fmt.Sprintf("%s/v3/conversations/%s/activities", serviceURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("posting activity: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
