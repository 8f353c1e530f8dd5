// Package store provides storage backends for AstroNow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/astronow/astronow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (chat_id, username, first_name, sign, birth_date, last_seen_at, last_hook_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chat_id) DO UPDATE SET
			username = EXCLUDED.username, first_name = EXCLUDED.first_name,
			sign = EXCLUDED.sign, birth_date = EXCLUDED.birth_date,
			last_seen_at = EXCLUDED.last_seen_at, last_hook_at = EXCLUDED.last_hook_at`,
		u.ChatID, u.Username, u.FirstName, u.Sign, u.BirthDate, u.LastSeenAt, nullableTime(u.LastHookAt), u.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveUser failed", "error", err, "chatID", u.ChatID)
		return fmt.Errorf("failed to save user %d: %w", u.ChatID, err)
	}
	return nil
}

func (s *PostgresStore) GetUser(chatID int64) (*models.User, error) {
	var u models.User
	var hookAt sql.NullTime
	err := s.db.QueryRow(`
		SELECT chat_id, COALESCE(username, ''), COALESCE(first_name, ''),
		       COALESCE(sign, ''), COALESCE(birth_date, ''), last_seen_at, last_hook_at, created_at
		FROM users WHERE chat_id = $1`, chatID).
		Scan(&u.ChatID, &u.Username, &u.FirstName, &u.Sign, &u.BirthDate, &u.LastSeenAt, &hookAt, &u.CreatedAt)
	u.LastHookAt = hookAt.Time
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "chatID", chatID)
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`
		SELECT chat_id, COALESCE(username, ''), COALESCE(first_name, ''),
		       COALESCE(sign, ''), COALESCE(birth_date, ''), last_seen_at, last_hook_at, created_at
		FROM users ORDER BY chat_id`)
	if err != nil {
		slog.Error("PostgresStore ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var hookAt sql.NullTime
		if err := rows.Scan(&u.ChatID, &u.Username, &u.FirstName, &u.Sign, &u.BirthDate, &u.LastSeenAt, &hookAt, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		u.LastHookAt = hookAt.Time
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, chat_id, role, text, emotion, summarized, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ChatID, m.Role, m.Text, m.Emotion, m.Summarized, m.Time)
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "chatID", m.ChatID)
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecentMessages(chatID int64, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, role, text, COALESCE(emotion, ''), summarized, time FROM (
			SELECT * FROM messages WHERE chat_id = $1 ORDER BY time DESC LIMIT $2
		) recent ORDER BY time ASC`, chatID, limit)
	if err != nil {
		slog.Error("PostgresStore GetRecentMessages query failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) CountUnsummarized(chatID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND NOT summarized`, chatID).Scan(&n)
	if err != nil {
		slog.Error("PostgresStore CountUnsummarized failed", "error", err, "chatID", chatID)
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) GetUnsummarized(chatID int64) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, role, text, COALESCE(emotion, ''), summarized, time
		FROM messages WHERE chat_id = $1 AND NOT summarized ORDER BY time ASC`, chatID)
	if err != nil {
		slog.Error("PostgresStore GetUnsummarized query failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to query unsummarized messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) MarkSummarized(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE messages SET summarized = TRUE WHERE id = $1`, id); err != nil {
			tx.Rollback()
			slog.Error("PostgresStore MarkSummarized failed", "error", err, "id", id)
			return fmt.Errorf("failed to mark message %s summarized: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) DeleteMessagesBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE time < $1`, cutoff)
	if err != nil {
		slog.Error("PostgresStore DeleteMessagesBefore failed", "error", err)
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) SaveConversationState(st models.ConversationState) error {
	datesJSON, namesJSON, err := marshalStateSlices(st)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState marshal failed", "error", err, "chatID", st.ChatID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO conversation_states
		(chat_id, current_topic, ack_type, ack_value, ack_confidence, dates_json,
		 last_mentioned_date, potential_names_json, last_intent, last_intent_confidence,
		 entities_updated_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (chat_id) DO UPDATE SET
			current_topic = EXCLUDED.current_topic, ack_type = EXCLUDED.ack_type,
			ack_value = EXCLUDED.ack_value, ack_confidence = EXCLUDED.ack_confidence,
			dates_json = EXCLUDED.dates_json, last_mentioned_date = EXCLUDED.last_mentioned_date,
			potential_names_json = EXCLUDED.potential_names_json, last_intent = EXCLUDED.last_intent,
			last_intent_confidence = EXCLUDED.last_intent_confidence,
			entities_updated_at = EXCLUDED.entities_updated_at, updated_at = EXCLUDED.updated_at`,
		st.ChatID, st.CurrentTopic, st.LastAcknowledgment.Type, st.LastAcknowledgment.Value,
		st.LastAcknowledgment.Confidence, datesJSON, st.LastMentionedDate, namesJSON,
		st.LastIntent, st.LastIntentConfidence, st.EntitiesUpdatedAt, st.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "chatID", st.ChatID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversationState(chatID int64) (*models.ConversationState, error) {
	row := s.db.QueryRow(`
		SELECT chat_id, current_topic, ack_type, COALESCE(ack_value, ''), ack_confidence,
		       COALESCE(dates_json, ''), COALESCE(last_mentioned_date, ''),
		       COALESCE(potential_names_json, ''), COALESCE(last_intent, ''),
		       last_intent_confidence, entities_updated_at, updated_at
		FROM conversation_states WHERE chat_id = $1`, chatID)
	st, err := scanConversationState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState failed", "error", err, "chatID", chatID)
		return nil, err
	}
	return st, nil
}

func (s *PostgresStore) DeleteConversationState(chatID int64) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE chat_id = $1`, chatID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversationState failed", "error", err, "chatID", chatID)
		return err
	}
	return nil
}

func (s *PostgresStore) SaveMoodSnapshot(snap models.MoodSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO mood_state (id, mood, energy_level, last_shift_at, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			mood = EXCLUDED.mood, energy_level = EXCLUDED.energy_level,
			last_shift_at = EXCLUDED.last_shift_at, updated_at = EXCLUDED.updated_at`,
		snap.Mood, snap.EnergyLevel, snap.LastShiftAt, snap.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveMoodSnapshot failed", "error", err)
		return fmt.Errorf("failed to save mood snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMoodSnapshot() (*models.MoodSnapshot, error) {
	var snap models.MoodSnapshot
	err := s.db.QueryRow(`SELECT mood, energy_level, last_shift_at, updated_at FROM mood_state WHERE id = 1`).
		Scan(&snap.Mood, &snap.EnergyLevel, &snap.LastShiftAt, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetMoodSnapshot failed", "error", err)
		return nil, err
	}
	return &snap, nil
}

func (s *PostgresStore) AddSummary(sum models.Summary) error {
	coveredJSON, err := json.Marshal(sum.CoveredIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal covered ids: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO summaries (id, chat_id, text, covered_ids, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sum.ID, sum.ChatID, sum.Text, string(coveredJSON), sum.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddSummary failed", "error", err, "chatID", sum.ChatID)
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSummaries(chatID int64, limit int) ([]models.Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, text, covered_ids, created_at FROM (
			SELECT * FROM summaries WHERE chat_id = $1 ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`, chatID, limit)
	if err != nil {
		slog.Error("PostgresStore GetSummaries query failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var sums []models.Summary
	for rows.Next() {
		var sum models.Summary
		var coveredJSON string
		if err := rows.Scan(&sum.ID, &sum.ChatID, &sum.Text, &coveredJSON, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if coveredJSON != "" {
			if err := json.Unmarshal([]byte(coveredJSON), &sum.CoveredIDs); err != nil {
				slog.Error("PostgresStore GetSummaries unmarshal failed", "error", err, "id", sum.ID)
			}
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

func (s *PostgresStore) AddEmbedding(e models.Embedding) error {
	vectorJSON, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal vector: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO embeddings (id, vector_json, source_text, created_at)
		VALUES ($1, $2, $3, $4)`,
		e.ID, string(vectorJSON), e.SourceText, e.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddEmbedding failed", "error", err, "id", e.ID)
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEmbeddings() ([]models.Embedding, error) {
	rows, err := s.db.Query(`SELECT id, vector_json, source_text, created_at FROM embeddings`)
	if err != nil {
		slog.Error("PostgresStore ListEmbeddings query failed", "error", err)
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.Embedding
	for rows.Next() {
		var e models.Embedding
		var vectorJSON string
		if err := rows.Scan(&e.ID, &vectorJSON, &e.SourceText, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		if err := json.Unmarshal([]byte(vectorJSON), &e.Vector); err != nil {
			slog.Error("PostgresStore ListEmbeddings unmarshal failed", "error", err, "id", e.ID)
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
