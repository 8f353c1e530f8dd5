// Package store provides storage backends for AstroNow.
//
// It includes an in-memory store for tests and SQLite/PostgreSQL backends for
// users, messages, conversation state, mood snapshots, summaries, and embeddings.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/astronow/astronow/internal/models"
)

// Store is the persistence interface consumed by the tracker, pipeline, and
// scheduler. Lookups return (nil, nil) when no record exists.
type Store interface {
	SaveUser(u models.User) error
	GetUser(chatID int64) (*models.User, error)
	ListUsers() ([]models.User, error)

	AddMessage(m models.Message) error
	// GetRecentMessages returns up to limit messages for the chat, oldest first.
	GetRecentMessages(chatID int64, limit int) ([]models.Message, error)
	CountUnsummarized(chatID int64) (int, error)
	GetUnsummarized(chatID int64) ([]models.Message, error)
	MarkSummarized(ids []string) error
	DeleteMessagesBefore(cutoff time.Time) (int64, error)

	SaveConversationState(st models.ConversationState) error
	GetConversationState(chatID int64) (*models.ConversationState, error)
	DeleteConversationState(chatID int64) error

	SaveMoodSnapshot(s models.MoodSnapshot) error
	GetMoodSnapshot() (*models.MoodSnapshot, error)

	AddSummary(s models.Summary) error
	GetSummaries(chatID int64, limit int) ([]models.Summary, error)

	AddEmbedding(e models.Embedding) error
	ListEmbeddings() ([]models.Embedding, error)

	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (assumed to be a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory Store used by tests and as a
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]models.User
	messages   []models.Message
	states     map[int64]models.ConversationState
	mood       *models.MoodSnapshot
	summaries  []models.Summary
	embeddings []models.Embedding
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:  make(map[int64]models.User),
		states: make(map[int64]models.ConversationState),
	}
}

func (s *InMemoryStore) SaveUser(u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ChatID] = u
	return nil
}

func (s *InMemoryStore) GetUser(chatID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[chatID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *InMemoryStore) ListUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ChatID < users[j].ChatID })
	return users, nil
}

func (s *InMemoryStore) AddMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *InMemoryStore) GetRecentMessages(chatID int64, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []models.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Time.Before(msgs[j].Time) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *InMemoryStore) CountUnsummarized(chatID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.ChatID == chatID && !m.Summarized {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetUnsummarized(chatID int64) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []models.Message
	for _, m := range s.messages {
		if m.ChatID == chatID && !m.Summarized {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Time.Before(msgs[j].Time) })
	return msgs, nil
}

func (s *InMemoryStore) MarkSummarized(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for i := range s.messages {
		if idSet[s.messages[i].ID] {
			s.messages[i].Summarized = true
		}
	}
	return nil
}

func (s *InMemoryStore) DeleteMessagesBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	var deleted int64
	for _, m := range s.messages {
		if m.Time.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return deleted, nil
}

func (s *InMemoryStore) SaveConversationState(st models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.ChatID] = st
	return nil
}

func (s *InMemoryStore) GetConversationState(chatID int64) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[chatID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *InMemoryStore) DeleteConversationState(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
	return nil
}

func (s *InMemoryStore) SaveMoodSnapshot(snap models.MoodSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mood = &snap
	return nil
}

func (s *InMemoryStore) GetMoodSnapshot() (*models.MoodSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mood == nil {
		return nil, nil
	}
	snap := *s.mood
	return &snap, nil
}

func (s *InMemoryStore) AddSummary(sum models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return nil
}

func (s *InMemoryStore) GetSummaries(chatID int64, limit int) ([]models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Summary
	for _, sum := range s.summaries {
		if sum.ChatID == chatID {
			out = append(out, sum)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryStore) AddEmbedding(e models.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings = append(s.embeddings, e)
	return nil
}

func (s *InMemoryStore) ListEmbeddings() ([]models.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Embedding, len(s.embeddings))
	copy(out, s.embeddings)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
