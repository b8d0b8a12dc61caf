package feedback

import (
	"context"
	"sync"
	"time"

	"askhub.app/askhub/internal/domain"
)

type key struct {
	platform       domain.Platform
	conversationID string
	threadID       string
	userID         string
}

type entry struct {
	verdict    domain.Verdict
	recordedAt time.Time
}

// MemoryStore is the in-process fallback used when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[key]entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[key]entry)}
}

func (s *MemoryStore) Save(_ context.Context, ev domain.FeedbackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key{ev.Platform, ev.ConversationID, ev.ThreadID, ev.UserID}] = entry{
		verdict:    ev.Verdict,
		recordedAt: time.Now(),
	}
	return nil
}

// Verdict returns the stored verdict for an answer key, or VerdictUnknown
// with false when none has been recorded.
func (s *MemoryStore) Verdict(platform domain.Platform, conversationID, threadID, userID string) (domain.Verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key{platform, conversationID, threadID, userID}]
	if !ok {
		return domain.VerdictUnknown, false
	}
	return e.verdict, true
}
