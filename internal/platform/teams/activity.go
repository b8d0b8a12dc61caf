package teams

// Bot Framework activity shapes, trimmed to the fields this service reads and
// writes. https://learn.microsoft.com/azure/bot-service/rest-api/bot-framework-rest-connector-api-reference

type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Conversation struct {
	ID string `json:"id"`
}

type Activity struct {
	Type         string       `json:"type"`
	ID           string       `json:"id,omitempty"`
	ServiceURL   string       `json:"serviceUrl,omitempty"`
	ChannelID    string       `json:"channelId,omitempty"`
	From         Account      `json:"from,omitempty"`
	Recipient    Account      `json:"recipient,omitempty"`
	Conversation Conversation `json:"conversation"`
	Text         string       `json:"text,omitempty"`
	ReplyToID    string       `json:"replyToId,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	Value        any          `json:"value,omitempty"`
}

type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

const heroCardContentType = "application/vnd.microsoft.card.hero"

type HeroCard struct {
	Text    string       `json:"text,omitempty"`
	Buttons []CardAction `json:"buttons,omitempty"`
}

type CardAction struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Text        string `json:"text,omitempty"`
	Value       string `json:"value,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
}
