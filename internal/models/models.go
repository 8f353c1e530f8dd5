// Package models defines the core data structures for AstroNow.
//
// It includes conversation state, message, and user types shared across modules.
package models

import (
	"errors"
	"time"
)

// Topic labels the subject a conversation is currently about.
type Topic string

const (
	// TopicHoroscopeRequest indicates the user asked for a horoscope or reading.
	TopicHoroscopeRequest Topic = "horoscope_request"
	// TopicDiscussingDates indicates the conversation is about birth dates.
	TopicDiscussingDates Topic = "discussing_dates"
	// TopicGreeting indicates a greeting exchange.
	TopicGreeting Topic = "greeting"
	// TopicGeneralChat is the fallback topic.
	TopicGeneralChat Topic = "general_chat"
)

// AcknowledgmentType classifies a short reply relative to prior context.
type AcknowledgmentType string

const (
	AckAffirmation   AcknowledgmentType = "affirmation"
	AckNegation      AcknowledgmentType = "negation"
	AckContinuation  AcknowledgmentType = "continuation"
	AckClarification AcknowledgmentType = "clarification"
	AckNone          AcknowledgmentType = "none"
)

// IsValidAcknowledgmentType checks if the given acknowledgment type is supported.
func IsValidAcknowledgmentType(t AcknowledgmentType) bool {
	switch t {
	case AckAffirmation, AckNegation, AckContinuation, AckClarification, AckNone:
		return true
	default:
		return false
	}
}

// Acknowledgment is the classification result for one inbound message.
type Acknowledgment struct {
	Type       AcknowledgmentType `json:"type"`
	Value      string             `json:"value,omitempty"` // the matched word or phrase
	Confidence float64            `json:"confidence"`
}

// DateFormat records which day/month order a date mention was read with.
type DateFormat string

const (
	DateFormatDMY DateFormat = "DD/MM/YYYY"
	DateFormatMDY DateFormat = "MM/DD/YYYY"
)

// DateMention is a date found in free text, with ambiguity tracking.
// If both the day candidate and the month candidate are ≤12 the mention is
// ambiguous and defaults to MM/DD; callers should ask for confirmation.
type DateMention struct {
	Original    string     `json:"original"`
	Normalized  string     `json:"normalized"` // ISO date, YYYY-MM-DD
	Format      DateFormat `json:"format"`
	IsAmbiguous bool       `json:"is_ambiguous"`
	Day         int        `json:"day"`
	Month       int        `json:"month"`
	Year        int        `json:"year"`
}

// ConversationState is the persisted per-chat tracker record. At most one
// active row exists per chat; updates are right-biased shallow merges.
type ConversationState struct {
	ChatID               int64          `json:"chat_id"`
	CurrentTopic         Topic          `json:"current_topic"`
	LastAcknowledgment   Acknowledgment `json:"last_acknowledgment"`
	Dates                []DateMention  `json:"dates,omitempty"`
	LastMentionedDate    string         `json:"last_mentioned_date,omitempty"`
	PotentialNames       []string       `json:"potential_names,omitempty"`
	LastIntent           string         `json:"last_intent,omitempty"`
	LastIntentConfidence float64        `json:"last_intent_confidence"`
	EntitiesUpdatedAt    time.Time      `json:"entities_updated_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Role identifies who authored a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one stored chat message.
type Message struct {
	ID         string    `json:"id"`
	ChatID     int64     `json:"chat_id"`
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	Emotion    string    `json:"emotion,omitempty"`
	Summarized bool      `json:"summarized"`
	Time       time.Time `json:"time"`
}

// WordCount returns the number of whitespace-separated words in the message.
func (m Message) WordCount() int {
	n := 0
	inWord := false
	for _, r := range m.Text {
		if r == ' ' || r == '\t' || r == '\n' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// User is one known chat participant, keyed by chat ID.
type User struct {
	ChatID     int64     `json:"chat_id"`
	Username   string    `json:"username,omitempty"`
	FirstName  string    `json:"first_name,omitempty"`
	Sign       string    `json:"sign,omitempty"`       // zodiac sign, lowercase
	BirthDate  string    `json:"birth_date,omitempty"` // ISO date, if known
	LastSeenAt time.Time `json:"last_seen_at"`
	LastHookAt time.Time `json:"last_hook_at,omitempty"` // last proactive check-in sent
	CreatedAt  time.Time `json:"created_at"`
}

// Summary condenses a block of messages for one chat.
type Summary struct {
	ID         string    `json:"id"`
	ChatID     int64     `json:"chat_id"`
	Text       string    `json:"text"`
	CoveredIDs []string  `json:"covered_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// Embedding stores one vector with its source text for retrieval.
type Embedding struct {
	ID         string    `json:"id"`
	Vector     []float64 `json:"vector"`
	SourceText string    `json:"source_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// MoodSnapshot is the persisted form of the bot's process-wide mood state,
// used for restart recovery.
type MoodSnapshot struct {
	Mood        string    `json:"mood"`
	EnergyLevel float64   `json:"energy_level"`
	LastShiftAt time.Time `json:"last_shift_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Error variables for better error handling and testability.
var (
	ErrEmptyMessage     = errors.New("message text cannot be empty")
	ErrUnknownChat      = errors.New("unknown chat")
	ErrEmptyReply       = errors.New("generated reply is empty")
	ErrRetriesExhausted = errors.New("rate-limit retries exhausted")
	ErrQueueStopped     = errors.New("outbound queue is stopped")
)

// RateLimitError is surfaced by the chat transport when the provider
// rate-limits a send. The outbound queue consumes RetryAfter to pace retries.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "rate limited by transport, retry after " + e.RetryAfter.String()
}

// AsRateLimitError unwraps err into a RateLimitError if it is one.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
