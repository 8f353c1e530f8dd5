// Package store provides storage backends for AstroNow.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/astronow/astronow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path; the directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (chat_id, username, first_name, sign, birth_date, last_seen_at, last_hook_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			username = excluded.username, first_name = excluded.first_name,
			sign = excluded.sign, birth_date = excluded.birth_date,
			last_seen_at = excluded.last_seen_at, last_hook_at = excluded.last_hook_at`,
		u.ChatID, u.Username, u.FirstName, u.Sign, u.BirthDate, u.LastSeenAt, nullableTime(u.LastHookAt), u.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveUser failed", "error", err, "chatID", u.ChatID)
		return fmt.Errorf("failed to save user %d: %w", u.ChatID, err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(chatID int64) (*models.User, error) {
	var u models.User
	var hookAt sql.NullTime
	err := s.db.QueryRow(`
		SELECT chat_id, COALESCE(username, ''), COALESCE(first_name, ''),
		       COALESCE(sign, ''), COALESCE(birth_date, ''), last_seen_at, last_hook_at, created_at
		FROM users WHERE chat_id = ?`, chatID).
		Scan(&u.ChatID, &u.Username, &u.FirstName, &u.Sign, &u.BirthDate, &u.LastSeenAt, &hookAt, &u.CreatedAt)
	u.LastHookAt = hookAt.Time
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "chatID", chatID)
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`
		SELECT chat_id, COALESCE(username, ''), COALESCE(first_name, ''),
		       COALESCE(sign, ''), COALESCE(birth_date, ''), last_seen_at, last_hook_at, created_at
		FROM users ORDER BY chat_id`)
	if err != nil {
		slog.Error("SQLiteStore ListUsers query failed", "error", err)
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

func (s *SQLiteStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, chat_id, role, text, emotion, summarized, time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.Role, m.Text, m.Emotion, m.Summarized, m.Time)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "chatID", m.ChatID)
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRecentMessages(chatID int64, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, role, text, COALESCE(emotion, ''), summarized, time
		FROM (
			SELECT * FROM messages WHERE chat_id = ? ORDER BY time DESC LIMIT ?
		) ORDER BY time ASC`, chatID, limit)
	if err != nil {
		slog.Error("SQLiteStore GetRecentMessages query failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) CountUnsummarized(chatID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ? AND summarized = 0`, chatID).Scan(&n)
	if err != nil {
		slog.Error("SQLiteStore CountUnsummarized failed", "error", err, "chatID", chatID)
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) GetUnsummarized(chatID int64) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, role, text, COALESCE(emotion, ''), summarized, time
		FROM messages WHERE chat_id = ? AND summarized = 0 ORDER BY time ASC`, chatID)
	if err != nil {
		slog.Error("SQLiteStore GetUnsummarized query failed", "error", err, "chatID", chatID)
		return nil, fmt.Errorf("failed to query unsummarized messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) MarkSummarized(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE messages SET summarized = 1 WHERE id = ?`, id); err != nil {
			tx.Rollback()
			slog.Error("SQLiteStore MarkSummarized failed", "error", err, "id", id)
			return fmt.Errorf("failed to mark message %s summarized: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteMessagesBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE time < ?`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore DeleteMessagesBefore failed", "error", err)
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) SaveConversationState(st models.ConversationState) error {
	datesJSON, namesJSON, err := marshalStateSlices(st)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState marshal failed", "error", err, "chatID", st.ChatID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO conversation_states
		(chat_id, current_topic, ack_type, ack_value, ack_confidence, dates_json,
		 last_mentioned_date, potential_names_json, last_intent, last_intent_confidence,
		 entities_updated_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ChatID, st.CurrentTopic, st.LastAcknowledgment.Type, st.LastAcknowledgment.Value,
		st.LastAcknowledgment.Confidence, datesJSON, st.LastMentionedDate, namesJSON,
		st.LastIntent, st.LastIntentConfidence, st.EntitiesUpdatedAt, st.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationState failed", "error", err, "chatID", st.ChatID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversationState(chatID int64) (*models.ConversationState, error) {
	row := s.db.QueryRow(`
		SELECT chat_id, current_topic, ack_type, COALESCE(ack_value, ''), ack_confidence,
		       COALESCE(dates_json, ''), COALESCE(last_mentioned_date, ''),
		       COALESCE(potential_names_json, ''), COALESCE(last_intent, ''),
		       last_intent_confidence, entities_updated_at, updated_at
		FROM conversation_states WHERE chat_id = ?`, chatID)
	st, err := scanConversationState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationState failed", "error", err, "chatID", chatID)
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) DeleteConversationState(chatID int64) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE chat_id = ?`, chatID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversationState failed", "error", err, "chatID", chatID)
		return err
	}
	return nil
}

func (s *SQLiteStore) SaveMoodSnapshot(snap models.MoodSnapshot) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO mood_state (id, mood, energy_level, last_shift_at, updated_at)
		VALUES (1, ?, ?, ?, ?)`,
		snap.Mood, snap.EnergyLevel, snap.LastShiftAt, snap.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveMoodSnapshot failed", "error", err)
		return fmt.Errorf("failed to save mood snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMoodSnapshot() (*models.MoodSnapshot, error) {
	var snap models.MoodSnapshot
	err := s.db.QueryRow(`SELECT mood, energy_level, last_shift_at, updated_at FROM mood_state WHERE id = 1`).
		Scan(&snap.Mood, &snap.EnergyLevel, &snap.LastShiftAt, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetMoodSnapshot failed", "error", err)
		return nil, err
	}
	return &snap, nil
}

func (s *SQLiteStore) AddSummary(sum models.Summary) error {
	coveredJSON, err := json.Marshal(sum.CoveredIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal covered ids: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO summaries (id, chat_id, text, covered_ids, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sum.ID, sum.ChatID, sum.Text, string(coveredJSON), sum.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddSummary failed", "error", err, "chatID", sum.ChatID)
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSummaries(chatID int64, limit int) ([]models.Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, text, covered_ids, created_at
		FROM (
			SELECT * FROM summaries WHERE chat_id = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`, chatID, limit)
	if err != nil {
		slog.Error("SQLiteStore GetSummaries query failed", "error", err, "chatID", chatID)
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
				slog.Error("SQLiteStore GetSummaries unmarshal failed", "error", err, "id", sum.ID)
			}
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

func (s *SQLiteStore) AddEmbedding(e models.Embedding) error {
	vectorJSON, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal vector: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO embeddings (id, vector_json, source_text, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ID, string(vectorJSON), e.SourceText, e.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddEmbedding failed", "error", err, "id", e.ID)
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEmbeddings() ([]models.Embedding, error) {
	rows, err := s.db.Query(`SELECT id, vector_json, source_text, created_at FROM embeddings`)
	if err != nil {
		slog.Error("SQLiteStore ListEmbeddings query failed", "error", err)
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
			slog.Error("SQLiteStore ListEmbeddings unmarshal failed", "error", err, "id", e.ID)
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
