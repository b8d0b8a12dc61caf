package handler_test

import (
	"context"
	"sync/atomic"

	"askhub.app/askhub/internal/domain"
)

// fakeFacade counts queries so tests can assert the ingress gate never
// touches retrieval before acknowledging.
type fakeFacade struct {
	queries atomic.Int64
	answer  domain.Answer
	err     error
}

func (f *fakeFacade) Query(_ context.Context, _ string) (domain.Answer, error) {
	f.queries.Add(1)
	if f.err != nil {
		return domain.Answer{}, f.err
	}
	return f.answer, nil
}

func (f *fakeFacade) Rebuild(_ context.Context, _ []domain.Document) error { return nil }

func (f *fakeFacade) Reset() {}
