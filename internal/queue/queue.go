// Package queue implements the outbound message queue. A single worker
// drains messages in FIFO order, spacing sends with a global pace and a
// per-chat gap, and retrying rate-limited sends at the front of the queue
// so per-chat ordering survives a 429.
//
// Because there is one worker, a rate-limit backoff stalls delivery to
// every chat, not just the throttled one. That trade keeps ordering and
// pacing trivially correct at this bot's scale.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/astronow/astronow/internal/models"
)

// Sender delivers messages and typing indicators to a chat. Implemented by
// the telegram service; tests use fakes.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// Defaults tuned for the Telegram Bot API's documented limits.
const (
	DefaultPerChatGap     = 1200 * time.Millisecond
	DefaultGlobalInterval = 500 * time.Millisecond
	DefaultRetryPadding   = 200 * time.Millisecond
	DefaultMaxRetries     = 5
)

type item struct {
	chatID   int64
	text     string
	typing   bool
	result   chan error
	attempts int
}

// Queue is the outbound queue. Construct with NewQueue, then Start.
type Queue struct {
	sender Sender

	mu       sync.Mutex
	items    []*item
	lastSend map[int64]time.Time
	stopped  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	limiter      *rate.Limiter
	perChatGap   time.Duration
	retryPadding time.Duration
	maxRetries   int

	stopOnce sync.Once
}

// Option configures the Queue.
type Option func(*Queue)

// WithPerChatGap sets the minimum spacing between sends to one chat.
func WithPerChatGap(d time.Duration) Option {
	return func(q *Queue) { q.perChatGap = d }
}

// WithGlobalInterval sets the minimum spacing between any two sends.
func WithGlobalInterval(d time.Duration) Option {
	return func(q *Queue) { q.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithRetryPadding sets the slack added to a server retry-after hint.
func WithRetryPadding(d time.Duration) Option {
	return func(q *Queue) { q.retryPadding = d }
}

// WithMaxRetries sets how many rate-limit requeues one message gets before
// it fails with models.ErrRetriesExhausted.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// NewQueue creates a stopped queue around the sender.
func NewQueue(sender Sender, opts ...Option) *Queue {
	q := &Queue{
		sender:       sender,
		lastSend:     make(map[int64]time.Time),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		limiter:      rate.NewLimiter(rate.Every(DefaultGlobalInterval), 1),
		perChatGap:   DefaultPerChatGap,
		retryPadding: DefaultRetryPadding,
		maxRetries:   DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker. The worker runs until Stop is called or ctx is
// cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()
	slog.Info("OutboundQueue worker started", "perChatGap", q.perChatGap, "maxRetries", q.maxRetries)
}

// Stop halts the worker and fails every queued message with
// models.ErrQueueStopped so no caller blocks forever.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(q.done)
		q.wg.Wait()

		q.mu.Lock()
		pending := q.items
		q.items = nil
		q.mu.Unlock()
		for _, it := range pending {
			it.result <- models.ErrQueueStopped
			close(it.result)
		}
		slog.Info("OutboundQueue stopped", "dropped", len(pending))
	})
}

// Enqueue appends a message and returns a channel that resolves once the
// message is delivered or permanently fails. The channel receives exactly
// one value.
func (q *Queue) Enqueue(chatID int64, text string) <-chan error {
	result := make(chan error, 1)
	if text == "" {
		result <- models.ErrEmptyMessage
		close(result)
		return result
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		result <- models.ErrQueueStopped
		close(result)
		return result
	}
	q.items = append(q.items, &item{chatID: chatID, text: text, result: result})
	depth := len(q.items)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	slog.Debug("OutboundQueue message enqueued", "chatID", chatID, "depth", depth)
	return result
}

// EnqueueTyping appends a typing-indicator send. Typing shares the global
// pace but neither consumes nor resets the chat's message gap.
func (q *Queue) EnqueueTyping(chatID int64) <-chan error {
	result := make(chan error, 1)

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		result <- models.ErrQueueStopped
		close(result)
		return result
	}
	q.items = append(q.items, &item{chatID: chatID, typing: true, result: result})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return result
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) run(ctx context.Context) {
	for {
		it := q.next(ctx)
		if it == nil {
			return
		}

		if !it.typing {
			if wait := q.perChatWait(it.chatID); wait > 0 {
				if !sleepCtx(ctx, q.done, wait) {
					q.pushFront(it)
					return
				}
			}
		}
		if err := q.limiter.Wait(ctx); err != nil {
			q.pushFront(it)
			return
		}

		var err error
		if it.typing {
			err = q.sender.SendTyping(ctx, it.chatID)
		} else {
			err = q.sender.SendMessage(ctx, it.chatID, it.text)
		}
		if rle, ok := models.AsRateLimitError(err); ok {
			it.attempts++
			if it.attempts > q.maxRetries {
				slog.Error("OutboundQueue retries exhausted", "chatID", it.chatID, "attempts", it.attempts)
				it.result <- fmt.Errorf("dropping message for chat %d: %w", it.chatID, models.ErrRetriesExhausted)
				close(it.result)
				continue
			}
			backoff := rle.RetryAfter + q.retryPadding
			slog.Warn("OutboundQueue rate limited", "chatID", it.chatID, "retryAfter", rle.RetryAfter, "attempt", it.attempts)
			// Single worker: this backoff stalls the whole queue.
			if !sleepCtx(ctx, q.done, backoff) {
				q.pushFront(it)
				return
			}
			q.pushFront(it)
			continue
		}

		if !it.typing {
			q.mu.Lock()
			q.lastSend[it.chatID] = time.Now()
			q.mu.Unlock()
		}

		if err != nil {
			slog.Error("OutboundQueue send failed", "chatID", it.chatID, "error", err)
		}
		it.result <- err
		close(it.result)
	}
}

// next blocks until an item is available or the queue shuts down, in which
// case it returns nil.
func (q *Queue) next(ctx context.Context) *item {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// pushFront requeues an item ahead of everything else so its chat keeps
// FIFO order.
func (q *Queue) pushFront(it *item) {
	q.mu.Lock()
	q.items = append([]*item{it}, q.items...)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) perChatWait(chatID int64) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	last, ok := q.lastSend[chatID]
	if !ok {
		return 0
	}
	elapsed := time.Since(last)
	if elapsed >= q.perChatGap {
		return 0
	}
	return q.perChatGap - elapsed
}

// sleepCtx waits for d, returning false if the queue shut down first.
func sleepCtx(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-done:
		return false
	case <-ctx.Done():
		return false
	}
}
