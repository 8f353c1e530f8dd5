// Package telegram implements the chat transport over the Telegram Bot API.
// It converts long-poll updates into incoming messages and translates
// Telegram 429 responses into rate-limit errors the outbound queue can act
// on.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/astronow/astronow/internal/models"
)

// Incoming is one user message received from Telegram.
type Incoming struct {
	ChatID    int64
	Username  string
	FirstName string
	Text      string
	Time      time.Time
}

// Service owns the bot connection and the update loop.
type Service struct {
	bot           *tgbotapi.BotAPI
	incoming      chan Incoming
	stopOnce      sync.Once
	done          chan struct{}
	updateTimeout int
	debug         bool
}

// Option configures the Service.
type Option func(*Service)

// WithDebug enables the underlying library's request logging.
func WithDebug(debug bool) Option {
	return func(s *Service) { s.debug = debug }
}

// WithUpdateTimeout sets the long-poll timeout in seconds.
func WithUpdateTimeout(seconds int) Option {
	return func(s *Service) { s.updateTimeout = seconds }
}

// NewService authenticates against the Bot API with the given token.
func NewService(token string, opts ...Option) (*Service, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	s := &Service{
		bot:           bot,
		incoming:      make(chan Incoming, 64),
		done:          make(chan struct{}),
		updateTimeout: 30,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bot.Debug = s.debug
	slog.Info("Telegram service authenticated", "username", bot.Self.UserName)
	return s, nil
}

// Incoming returns the channel of received user messages. It is closed when
// the update loop exits.
func (s *Service) Incoming() <-chan Incoming {
	return s.incoming
}

// Start launches the update loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.updateTimeout
	updates := s.bot.GetUpdatesChan(u)

	go func() {
		defer close(s.incoming)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				msg := update.Message
				in := Incoming{
					ChatID: msg.Chat.ID,
					Text:   msg.Text,
					Time:   msg.Time(),
				}
				if msg.From != nil {
					in.Username = msg.From.UserName
					in.FirstName = msg.From.FirstName
				}
				select {
				case s.incoming <- in:
				case <-ctx.Done():
					return
				case <-s.done:
					return
				}
			}
		}
	}()
	slog.Info("Telegram update loop started", "timeout", s.updateTimeout)
}

// Stop ends the update loop. Safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.bot.StopReceivingUpdates()
		slog.Info("Telegram update loop stopped")
	})
}

// SendMessage delivers text to the chat. A Telegram 429 comes back as a
// models.RateLimitError carrying the server's retry-after duration.
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if text == "" {
		return models.ErrEmptyMessage
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return translateError(err)
	}
	slog.Debug("Telegram message sent", "chatID", chatID, "length", len(text))
	return nil
}

// SendTyping shows the typing indicator in the chat. Failures are logged,
// not surfaced, since the indicator is cosmetic.
func (s *Service) SendTyping(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("Telegram typing indicator failed", "chatID", chatID, "error", err)
	}
	return nil
}

func translateError(err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return &models.RateLimitError{RetryAfter: time.Duration(tgErr.RetryAfter) * time.Second}
	}
	return fmt.Errorf("failed to send telegram message: %w", err)
}
