package domain

// Verdict is the normalized outcome of a post-answer feedback interaction.
type Verdict string

const (
	VerdictSatisfactory   Verdict = "Satisfactory"
	VerdictUnsatisfactory Verdict = "Unsatisfactory"
	VerdictUnknown        Verdict = "Unknown"
)

// ParseVerdict maps a raw interaction value onto a known verdict. Anything
// unrecognized becomes VerdictUnknown, which is still recorded.
func ParseVerdict(raw string) Verdict {
	switch raw {
	case string(VerdictSatisfactory):
		return VerdictSatisfactory
	case string(VerdictUnsatisfactory):
		return VerdictUnsatisfactory
	default:
		return VerdictUnknown
	}
}

// FeedbackEvent correlates a feedback interaction back to the conversation
// and thread that produced the answer. The answer content itself is never
// needed to process feedback.
type FeedbackEvent struct {
	Platform       Platform
	ConversationID string
	ThreadID       string
	UserID         string
	Verdict        Verdict
}
