package logger

import (
	"context"
	"unicode/utf8"
)

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Handlers enrich the context once; every log statement downstream
// carries the conversation coordinates without repeating them.
type LogFields struct {
	Platform       string  // chat platform identifier ("slack", "teams", ...)
	ConversationID *string // channel / conversation ID
	ThreadID       *string // thread within the conversation, if any
	UserID         *string // user who triggered the event
	EventKind      *string // normalized event kind ("mention", "interaction", ...)
	WorkID         *int64  // pipeline work item ID
	Component      string  // component name (e.g. "askhub.pipeline.worker")
}

// WithLogFields enriches context with structured log fields. Multiple calls
// merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context. Returns empty LogFields if
// none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.Platform != "" {
		result.Platform = next.Platform
	}
	if next.ConversationID != nil {
		result.ConversationID = next.ConversationID
	}
	if next.ThreadID != nil {
		result.ThreadID = next.ThreadID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.EventKind != nil {
		result.EventKind = next.EventKind
	}
	if next.WorkID != nil {
		result.WorkID = next.WorkID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value, for setting LogFields
// inline.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to at most maxLen bytes, appending "..." if
// truncated. The cut backs off to a rune boundary so the result stays valid
// UTF-8. Useful for logging potentially long question text.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
