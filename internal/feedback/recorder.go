package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"askhub.app/askhub/internal/domain"
)

// Recorder accepts normalized feedback events, persists them and produces the
// confirmation text the platform shows the user.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record persists the verdict and returns a confirmation naming it. Unknown
// verdicts are stored too: an unrecognized button value is still a signal
// worth keeping.
func (r *Recorder) Record(ctx context.Context, ev domain.FeedbackEvent) (string, error) {
	if err := r.store.Save(ctx, ev); err != nil {
		return "", fmt.Errorf("saving feedback: %w", err)
	}

	slog.InfoContext(ctx, "feedback recorded",
		"platform", ev.Platform,
		"conversation_id", ev.ConversationID,
		"user_id", ev.UserID,
		"verdict", ev.Verdict)

	if ev.Verdict == domain.VerdictUnknown {
		return "Thanks, your feedback has been recorded.", nil
	}
	return fmt.Sprintf("Thanks! Your answer was marked as %s.", strings.ToLower(string(ev.Verdict))), nil
}
