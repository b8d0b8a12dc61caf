package domain

import "time"

// Platform identifies the chat platform an event originated from. Every
// outbound delivery goes back through the adapter registered for the
// event's platform.
type Platform string

const (
	PlatformSlack      Platform = "slack"
	PlatformTeams      Platform = "teams"
	PlatformGoogleChat Platform = "googlechat"
)

// EventKind classifies an inbound event at the ingress boundary.
type EventKind string

const (
	// KindMessage is a plain content-bearing message.
	KindMessage EventKind = "message"
	// KindMention is a content-bearing message that addressed the bot directly.
	KindMention EventKind = "mention"
	// KindHandshake is a one-time endpoint verification exchange; answered
	// synchronously, never enqueued.
	KindHandshake EventKind = "handshake"
	// KindInteraction is a feedback button click or its text-marker equivalent.
	KindInteraction EventKind = "interaction"
)

// InboundEvent is the normalized form of a platform-native inbound payload.
// It is immutable once constructed by an adapter and consumed exactly once
// by the answer pipeline.
type InboundEvent struct {
	Platform       Platform
	ConversationID string
	ThreadID       string // empty when the platform has no threads or the message is top-level
	UserID         string
	RawText        string
	Kind           EventKind
	ReceivedAt     time.Time
}

// Question is the mention-stripped text handed to the index facade, together
// with the reply coordinates.
type Question struct {
	Text           string
	ConversationID string
	ThreadID       string
}
