package feedback

import (
	"context"
	"fmt"

	"askhub.app/askhub/core/db"
	"askhub.app/askhub/internal/domain"
)

// PostgresStore persists verdicts with a last-write-wins upsert, so a user
// changing their mind simply replaces the earlier row.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

const schema = `
CREATE TABLE IF NOT EXISTS answer_feedback (
    platform        TEXT        NOT NULL,
    conversation_id TEXT        NOT NULL,
    thread_id       TEXT        NOT NULL DEFAULT '',
    user_id         TEXT        NOT NULL,
    verdict         TEXT        NOT NULL,
    recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (platform, conversation_id, thread_id, user_id)
)`

// Migrate creates the feedback table if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Pool().Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating answer_feedback table: %w", err)
	}
	return nil
}

const upsertQuery = `
INSERT INTO answer_feedback (platform, conversation_id, thread_id, user_id, verdict, recorded_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (platform, conversation_id, thread_id, user_id)
DO UPDATE SET verdict = EXCLUDED.verdict, recorded_at = EXCLUDED.recorded_at`

func (s *PostgresStore) Save(ctx context.Context, ev domain.FeedbackEvent) error {
	_, err := s.db.Pool().Exec(ctx, upsertQuery,
		string(ev.Platform), ev.ConversationID, ev.ThreadID, ev.UserID, string(ev.Verdict))
	if err != nil {
		return fmt.Errorf("upserting feedback: %w", err)
	}
	return nil
}
