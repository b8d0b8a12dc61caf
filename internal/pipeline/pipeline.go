// Package pipeline runs the asynchronous answer path: questions accepted at
// ingress are queued in a bounded in-process channel and answered by a fixed
// worker pool, so webhook handlers can acknowledge within the platforms'
// deadlines regardless of how long retrieval and generation take.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"askhub.app/askhub/common/id"
	"askhub.app/askhub/common/logger"
	"askhub.app/askhub/internal/domain"
	"askhub.app/askhub/internal/index"
	"askhub.app/askhub/internal/platform"
)

const (
	notReadyMessage = "I'm still starting up and my knowledge base isn't ready yet. Please try again in a few minutes."
	failureMessage  = "Sorry, I couldn't come up with an answer this time. Please try again."

	// deliveryTimeout bounds posting the answer back to the platform. It is
	// separate from the query timeout: when the query deadline fires, the
	// apology still has to go out on a live context.
	deliveryTimeout = 15 * time.Second
)

// Work is one queued question plus enough routing data to deliver the answer.
type Work struct {
	ID    int64
	Event domain.InboundEvent
}

type Config struct {
	QueueSize    int
	Workers      int
	QueryTimeout time.Duration
}

type Pipeline struct {
	cfg      Config
	idx      index.Facade
	registry *platform.Registry

	queue chan Work

	mu        sync.Mutex
	closed    bool
	stoppedCh chan struct{}
	closeOnce sync.Once
}

func New(cfg Config, idx index.Facade, registry *platform.Registry) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 90 * time.Second
	}
	return &Pipeline{
		cfg:       cfg,
		idx:       idx,
		registry:  registry,
		queue:     make(chan Work, cfg.QueueSize),
		stoppedCh: make(chan struct{}),
	}
}

// Enqueue accepts a question without blocking. A full queue returns
// domain.ErrQueueFull so the handler can acknowledge with a busy message
// instead of stalling the webhook.
func (p *Pipeline) Enqueue(event domain.InboundEvent) (int64, error) {
	// The mutex orders the send against Stop closing the queue: once closed
	// is set no send is attempted, so Enqueue is safe to call concurrently
	// with Stop.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, domain.ErrQueueFull
	}

	work := Work{ID: id.New(), Event: event}
	select {
	case p.queue <- work:
		return work.ID, nil
	default:
		return 0, domain.ErrQueueFull
	}
}

// Run starts the worker pool and blocks until Stop is called or the context
// is cancelled. Stopping drains queued work; cancellation abandons it.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.stoppedCh)

	slog.InfoContext(ctx, "pipeline started",
		"workers", p.cfg.Workers,
		"queue_size", p.cfg.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.workerLoop(ctx, n)
		}(i)
	}
	wg.Wait()

	slog.InfoContext(ctx, "pipeline stopped")
	return nil
}

// Stop closes intake, waits for queued work to drain and for all workers to
// exit.
func (p *Pipeline) Stop() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	<-p.stoppedCh
}

func (p *Pipeline) workerLoop(ctx context.Context, n int) {
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.queue:
			if !ok {
				return
			}
			if err := p.processSafe(ctx, work); err != nil {
				slog.ErrorContext(ctx, "work processing failed",
					"error", err,
					"worker", n,
					"work_id", work.ID)
			}
		}
	}
}

func (p *Pipeline) processSafe(ctx context.Context, work Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in work processing",
				"panic", r,
				"work_id", work.ID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.process(ctx, work)
}

func (p *Pipeline) process(ctx context.Context, work Work) error {
	ev := work.Event
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Platform:       string(ev.Platform),
		ConversationID: logger.Ptr(ev.ConversationID),
		UserID:         logger.Ptr(ev.UserID),
		WorkID:         logger.Ptr(work.ID),
		Component:      "pipeline",
	})

	adapter, err := p.registry.Get(ev.Platform)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	q := domain.Question{
		Text:           adapter.StripMention(ev.RawText),
		ConversationID: ev.ConversationID,
		ThreadID:       ev.ThreadID,
	}
	if q.Text == "" {
		slog.InfoContext(ctx, "empty question after mention strip, dropping")
		return nil
	}

	slog.InfoContext(ctx, "processing question",
		"question", logger.Truncate(q.Text, 200))

	start := time.Now()
	answer, err := p.idx.Query(ctx, q.Text)

	out := domain.OutboundAnswer{
		ConversationID: q.ConversationID,
		ThreadID:       q.ThreadID,
	}
	switch {
	case errors.Is(err, domain.ErrNotReady):
		slog.WarnContext(ctx, "index not ready")
		out.Text = notReadyMessage
	case err != nil:
		slog.ErrorContext(ctx, "query failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		out.Text = failureMessage
	default:
		slog.InfoContext(ctx, "question answered",
			"sources", len(answer.Sources),
			"duration_ms", time.Since(start).Milliseconds())
		out.Text = adapter.FormatAnswer(answer.Text, DedupeSources(answer.Sources))
		out.WithFeedbackButtons = adapter.SupportsButtons()
	}

	// The query context may already be expired here; that is exactly the case
	// on the apology paths. Delivery keeps the log fields but gets its own
	// deadline.
	dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer dcancel()

	if err := adapter.Deliver(dctx, out); err != nil {
		// Delivery failures are terminal: the platform already got its ack,
		// so there is nothing to retry against.
		return fmt.Errorf("delivering answer: %w", err)
	}
	return nil
}

// Answer runs the full question path synchronously for platforms that carry
// the reply in the webhook response. The not-ready and failure texts match
// the asynchronous path.
func (p *Pipeline) Answer(ctx context.Context, adapter platform.Adapter, ev domain.InboundEvent) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	question := adapter.StripMention(ev.RawText)
	if question == "" {
		return failureMessage
	}

	answer, err := p.idx.Query(ctx, question)
	switch {
	case errors.Is(err, domain.ErrNotReady):
		return notReadyMessage
	case err != nil:
		slog.ErrorContext(ctx, "synchronous query failed", "error", err)
		return failureMessage
	}
	return adapter.FormatAnswer(answer.Text, DedupeSources(answer.Sources))
}
