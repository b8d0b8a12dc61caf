// Package feedback correlates button presses and feedback replies with the
// answers that prompted them, and keeps the latest verdict per answer.
package feedback

import (
	"context"

	"askhub.app/askhub/internal/domain"
)

// Store persists verdicts keyed by (conversation, thread, user). Writing the
// same key again overwrites: the latest verdict wins.
type Store interface {
	Save(ctx context.Context, ev domain.FeedbackEvent) error
}
