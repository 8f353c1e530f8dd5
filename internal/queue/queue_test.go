package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/astronow/astronow/internal/models"
)

type sendRecord struct {
	chatID int64
	text   string
	at     time.Time
}

// fakeSender records sends and can script failures per message text.
type fakeSender struct {
	mu    sync.Mutex
	sends []sendRecord
	// failures maps message text to a sequence of errors returned before
	// the send succeeds.
	failures map[string][]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{failures: make(map[string][]error)}
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if queued := f.failures[text]; len(queued) > 0 {
		err := queued[0]
		f.failures[text] = queued[1:]
		return err
	}
	f.sends = append(f.sends, sendRecord{chatID: chatID, text: text, at: time.Now()})
	return nil
}

func (f *fakeSender) SendTyping(ctx context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendRecord{chatID: chatID, text: "<typing>", at: time.Now()})
	return nil
}

func (f *fakeSender) recorded() []sendRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sendRecord, len(f.sends))
	copy(out, f.sends)
	return out
}

func newTestQueue(sender Sender, opts ...Option) *Queue {
	base := []Option{
		WithGlobalInterval(time.Millisecond),
		WithPerChatGap(time.Millisecond),
		WithRetryPadding(time.Millisecond),
	}
	return NewQueue(sender, append(base, opts...)...)
}

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for queue result")
		return nil
	}
}

func TestQueueDeliversFIFO(t *testing.T) {
	sender := newFakeSender()
	q := newTestQueue(sender)
	ctx := context.Background()
	q.Start(ctx)
	defer q.Stop()

	r1 := q.Enqueue(1, "first")
	r2 := q.Enqueue(2, "second")
	r3 := q.Enqueue(1, "third")

	for i, ch := range []<-chan error{r1, r2, r3} {
		if err := waitResult(t, ch); err != nil {
			t.Fatalf("message %d: unexpected error: %v", i+1, err)
		}
	}

	sends := sender.recorded()
	if len(sends) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(sends))
	}
	want := []string{"first", "second", "third"}
	for i, rec := range sends {
		if rec.text != want[i] {
			t.Errorf("send %d: expected %q, got %q", i, want[i], rec.text)
		}
	}
}

func TestQueuePerChatGap(t *testing.T) {
	sender := newFakeSender()
	q := newTestQueue(sender, WithPerChatGap(60*time.Millisecond))
	q.Start(context.Background())
	defer q.Stop()

	r1 := q.Enqueue(7, "one")
	r2 := q.Enqueue(7, "two")
	if err := waitResult(t, r1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := waitResult(t, r2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sends := sender.recorded()
	if len(sends) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sends))
	}
	if gap := sends[1].at.Sub(sends[0].at); gap < 50*time.Millisecond {
		t.Errorf("expected at least the per-chat gap between sends, got %v", gap)
	}
}

func TestQueueRetryKeepsChatOrder(t *testing.T) {
	sender := newFakeSender()
	sender.failures["blocked"] = []error{
		&models.RateLimitError{RetryAfter: 5 * time.Millisecond},
		&models.RateLimitError{RetryAfter: 5 * time.Millisecond},
	}
	q := newTestQueue(sender)
	q.Start(context.Background())
	defer q.Stop()

	r1 := q.Enqueue(3, "blocked")
	r2 := q.Enqueue(3, "follow-up")
	if err := waitResult(t, r1); err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if err := waitResult(t, r2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sends := sender.recorded()
	if len(sends) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sends))
	}
	if sends[0].text != "blocked" || sends[1].text != "follow-up" {
		t.Errorf("expected retried message to stay ahead, got order %q then %q", sends[0].text, sends[1].text)
	}
}

func TestQueueRetriesExhausted(t *testing.T) {
	sender := newFakeSender()
	// More failures than the retry budget allows.
	for i := 0; i < 10; i++ {
		sender.failures["doomed"] = append(sender.failures["doomed"],
			&models.RateLimitError{RetryAfter: time.Millisecond})
	}
	q := newTestQueue(sender, WithMaxRetries(2))
	q.Start(context.Background())
	defer q.Stop()

	err := waitResult(t, q.Enqueue(4, "doomed"))
	if !errors.Is(err, models.ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", err)
	}
	if len(sender.recorded()) != 0 {
		t.Errorf("expected no successful sends, got %d", len(sender.recorded()))
	}
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	q := newTestQueue(newFakeSender())
	q.Start(context.Background())
	q.Stop()

	err := waitResult(t, q.Enqueue(1, "too late"))
	if !errors.Is(err, models.ErrQueueStopped) {
		t.Errorf("expected ErrQueueStopped, got %v", err)
	}
}

func TestQueueStopFailsPending(t *testing.T) {
	// Never started, so the item stays queued until Stop drains it.
	q := newTestQueue(newFakeSender())
	r := q.Enqueue(1, "pending")
	q.Stop()

	err := waitResult(t, r)
	if !errors.Is(err, models.ErrQueueStopped) {
		t.Errorf("expected ErrQueueStopped for pending message, got %v", err)
	}
}

func TestQueueTypingSkipsChatGap(t *testing.T) {
	sender := newFakeSender()
	q := newTestQueue(sender, WithPerChatGap(time.Hour))
	q.Start(context.Background())
	defer q.Stop()

	if err := waitResult(t, q.Enqueue(9, "hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A typing indicator right after a send must not wait out the gap.
	if err := waitResult(t, q.EnqueueTyping(9)); err != nil {
		t.Fatalf("unexpected typing error: %v", err)
	}

	sends := sender.recorded()
	if len(sends) != 2 || sends[1].text != "<typing>" {
		t.Fatalf("expected message then typing, got %+v", sends)
	}
}

func TestQueueRejectsEmptyText(t *testing.T) {
	q := newTestQueue(newFakeSender())
	err := waitResult(t, q.Enqueue(1, ""))
	if !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}
