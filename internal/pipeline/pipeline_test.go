package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askhub.app/askhub/common/id"
	"askhub.app/askhub/internal/domain"
	"askhub.app/askhub/internal/platform"
)

func init() {
	if err := id.Init(1); err != nil {
		panic(err)
	}
}

type stubFacade struct {
	mu      sync.Mutex
	answer  domain.Answer
	err     error
	panics  bool
	delay   time.Duration
	queries int
}

func (s *stubFacade) Query(ctx context.Context, _ string) (domain.Answer, error) {
	s.mu.Lock()
	s.queries++
	panics, delay, answer, err := s.panics, s.delay, s.answer, s.err
	s.mu.Unlock()

	if panics {
		panic("boom")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.Answer{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

func (s *stubFacade) Rebuild(context.Context, []domain.Document) error { return nil }
func (s *stubFacade) Reset()                                           {}

type stubAdapter struct {
	platform domain.Platform
	buttons  bool
	// strict rejects deliveries on an already-expired context, the way real
	// platform clients do.
	strict bool

	mu        sync.Mutex
	delivered []domain.OutboundAnswer
	deliverCh chan domain.OutboundAnswer
}

func newStubAdapter(p domain.Platform, buttons bool) *stubAdapter {
	return &stubAdapter{
		platform:  p,
		buttons:   buttons,
		deliverCh: make(chan domain.OutboundAnswer, 16),
	}
}

func (a *stubAdapter) Platform() domain.Platform { return a.platform }

func (a *stubAdapter) StripMention(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "<@UBOT>", ""))
}

// Matches the Slack rendering so delivered text can be asserted end to end.
func (a *stubAdapter) FormatAnswer(text string, sources []domain.Source) string {
	if len(sources) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nI used these sources:\n")
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "<%s|%s>", s.URL, s.Title)
	}
	return b.String()
}

func (a *stubAdapter) SupportsButtons() bool { return a.buttons }

func (a *stubAdapter) Deliver(ctx context.Context, out domain.OutboundAnswer) error {
	if a.strict {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	a.mu.Lock()
	a.delivered = append(a.delivered, out)
	a.mu.Unlock()
	a.deliverCh <- out
	return nil
}

func (a *stubAdapter) waitForDelivery(t *testing.T) domain.OutboundAnswer {
	t.Helper()
	select {
	case out := <-a.deliverCh:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return domain.OutboundAnswer{}
	}
}

func event(text string) domain.InboundEvent {
	return domain.InboundEvent{
		Platform:       domain.PlatformSlack,
		ConversationID: "C1",
		UserID:         "U1",
		RawText:        text,
		Kind:           domain.KindMention,
		ReceivedAt:     time.Now(),
	}
}

func runPipeline(t *testing.T, facade *stubFacade, adapter *stubAdapter) *Pipeline {
	t.Helper()
	p := New(Config{QueueSize: 8, Workers: 2, QueryTimeout: 5 * time.Second}, facade, platform.NewRegistry(adapter))
	go func() { _ = p.Run(context.Background()) }()
	t.Cleanup(p.Stop)
	return p
}

func TestPipelineDeliversFormattedAnswer(t *testing.T) {
	facade := &stubFacade{answer: domain.Answer{
		Text:    "Onboarding takes 2 weeks.",
		Sources: []domain.Source{{Title: "Onboarding", URL: "https://wiki/onboarding"}},
	}}
	adapter := newStubAdapter(domain.PlatformSlack, true)
	p := runPipeline(t, facade, adapter)

	_, err := p.Enqueue(event("<@UBOT> how long is onboarding?"))
	require.NoError(t, err)

	out := adapter.waitForDelivery(t)
	assert.Equal(t, "Onboarding takes 2 weeks.\n\nI used these sources:\n<https://wiki/onboarding|Onboarding>", out.Text)
	assert.Equal(t, "C1", out.ConversationID)
	assert.True(t, out.WithFeedbackButtons)
}

func TestPipelineDeduplicatesSourcesPreservingOrder(t *testing.T) {
	facade := &stubFacade{answer: domain.Answer{
		Text: "answer",
		Sources: []domain.Source{
			{Title: "A", URL: "https://wiki/a"},
			{Title: "B", URL: "https://wiki/b"},
			{Title: "A again", URL: "https://wiki/a"},
		},
	}}
	adapter := newStubAdapter(domain.PlatformSlack, false)
	p := runPipeline(t, facade, adapter)

	_, err := p.Enqueue(event("question"))
	require.NoError(t, err)

	out := adapter.waitForDelivery(t)
	assert.Contains(t, out.Text, "<https://wiki/a|A>")
	assert.Contains(t, out.Text, "<https://wiki/b|B>")
	assert.Equal(t, 1, strings.Count(out.Text, "https://wiki/a"))
	assert.Less(t, strings.Index(out.Text, "https://wiki/a"), strings.Index(out.Text, "https://wiki/b"))
}

func TestPipelineOmitsCitationSectionWithoutSources(t *testing.T) {
	facade := &stubFacade{answer: domain.Answer{Text: "Just the answer."}}
	adapter := newStubAdapter(domain.PlatformSlack, false)
	p := runPipeline(t, facade, adapter)

	_, err := p.Enqueue(event("question"))
	require.NoError(t, err)

	out := adapter.waitForDelivery(t)
	assert.Equal(t, "Just the answer.", out.Text)
	assert.NotContains(t, out.Text, "I used these sources")
}

func TestPipelineApologizesWhenIndexNotReady(t *testing.T) {
	facade := &stubFacade{err: domain.ErrNotReady}
	adapter := newStubAdapter(domain.PlatformSlack, true)
	p := runPipeline(t, facade, adapter)

	_, err := p.Enqueue(event("question"))
	require.NoError(t, err)

	out := adapter.waitForDelivery(t)
	assert.Contains(t, out.Text, "starting up")
	assert.False(t, out.WithFeedbackButtons, "apologies carry no feedback buttons")
}

func TestPipelineApologizesOnQueryFailure(t *testing.T) {
	facade := &stubFacade{err: fmt.Errorf("upstream exploded")}
	adapter := newStubAdapter(domain.PlatformSlack, true)
	p := runPipeline(t, facade, adapter)

	_, err := p.Enqueue(event("question"))
	require.NoError(t, err)

	out := adapter.waitForDelivery(t)
	assert.Contains(t, out.Text, "Sorry")
	assert.NotContains(t, out.Text, "upstream exploded", "internal errors never leak to the user")
}

func TestPipelineSurvivesPanickingQuery(t *testing.T) {
	facade := &stubFacade{panics: true}
	adapter := newStubAdapter(domain.PlatformSlack, false)
	p := runPipeline(t, facade, adapter)

	_, err := p.Enqueue(event("panic please"))
	require.NoError(t, err)

	// Give the worker a moment to hit the panic, then verify the pool still
	// processes new work.
	time.Sleep(100 * time.Millisecond)
	facade.mu.Lock()
	facade.panics = false
	facade.answer = domain.Answer{Text: "recovered"}
	facade.mu.Unlock()

	_, err = p.Enqueue(event("follow-up"))
	require.NoError(t, err)

	out := adapter.waitForDelivery(t)
	assert.Equal(t, "recovered", out.Text)
}

func TestApologyStillDeliveredAfterQueryTimeout(t *testing.T) {
	facade := &stubFacade{delay: time.Second}
	adapter := newStubAdapter(domain.PlatformSlack, true)
	adapter.strict = true
	p := New(Config{QueueSize: 4, Workers: 1, QueryTimeout: 50 * time.Millisecond},
		facade, platform.NewRegistry(adapter))
	go func() { _ = p.Run(context.Background()) }()
	t.Cleanup(p.Stop)

	_, err := p.Enqueue(event("slow question"))
	require.NoError(t, err)

	// The query deadline fires long before the facade answers. The apology
	// must still reach the platform, so delivery cannot ride the expired
	// query context.
	out := adapter.waitForDelivery(t)
	assert.Contains(t, out.Text, "Sorry")
	assert.False(t, out.WithFeedbackButtons)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	facade := &stubFacade{}
	adapter := newStubAdapter(domain.PlatformSlack, false)
	// Not running: the queue only fills.
	p := New(Config{QueueSize: 2, Workers: 1}, facade, platform.NewRegistry(adapter))

	_, err := p.Enqueue(event("one"))
	require.NoError(t, err)
	_, err = p.Enqueue(event("two"))
	require.NoError(t, err)

	_, err = p.Enqueue(event("three"))
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestEnqueueAfterStopIsRejected(t *testing.T) {
	facade := &stubFacade{answer: domain.Answer{Text: "done"}}
	adapter := newStubAdapter(domain.PlatformSlack, false)
	p := New(Config{QueueSize: 4, Workers: 1}, facade, platform.NewRegistry(adapter))
	go func() { _ = p.Run(context.Background()) }()

	p.Stop()

	_, err := p.Enqueue(event("too late"))
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestEnqueueIsSafeAgainstConcurrentStop(t *testing.T) {
	facade := &stubFacade{answer: domain.Answer{Text: "racing"}}
	adapter := newStubAdapter(domain.PlatformSlack, false)
	p := New(Config{QueueSize: 4, Workers: 2}, facade, platform.NewRegistry(adapter))
	go func() { _ = p.Run(context.Background()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = p.Enqueue(event("racing question"))
			}
		}()
	}
	// Stop lands in the middle of the enqueue storm. Late enqueues must get
	// ErrQueueFull, never a send on the closed queue.
	p.Stop()
	wg.Wait()
}

func TestEnqueueReturnsImmediatelyDespiteSlowQueries(t *testing.T) {
	facade := &stubFacade{delay: 2 * time.Second, answer: domain.Answer{Text: "slow"}}
	adapter := newStubAdapter(domain.PlatformSlack, false)
	p := runPipeline(t, facade, adapter)

	start := time.Now()
	_, err := p.Enqueue(event("slow question"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"enqueue must not wait for the answer")
}

func TestDropsEmptyQuestionAfterMentionStrip(t *testing.T) {
	facade := &stubFacade{answer: domain.Answer{Text: "never"}}
	adapter := newStubAdapter(domain.PlatformSlack, false)
	p := runPipeline(t, facade, adapter)

	_, err := p.Enqueue(event("<@UBOT>"))
	require.NoError(t, err)

	_, err = p.Enqueue(event("<@UBOT> real question"))
	require.NoError(t, err)

	out := adapter.waitForDelivery(t)
	assert.Equal(t, "never", out.Text)
	facade.mu.Lock()
	defer facade.mu.Unlock()
	assert.Equal(t, 1, facade.queries, "the empty question never reached the index")
}
