package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/astronow/astronow/internal/models"
)

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// scanMessages drains a message result set. Column order must match:
// id, chat_id, role, text, emotion, summarized, time.
func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Text, &m.Emotion, &m.Summarized, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// marshalStateSlices serializes the slice-valued conversation state fields
// for storage in text columns. Empty slices marshal to empty strings so the
// columns stay NULL-ish.
func marshalStateSlices(st models.ConversationState) (datesJSON, namesJSON string, err error) {
	if len(st.Dates) > 0 {
		b, err := json.Marshal(st.Dates)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal dates: %w", err)
		}
		datesJSON = string(b)
	}
	if len(st.PotentialNames) > 0 {
		b, err := json.Marshal(st.PotentialNames)
		if err != nil {
			return "", "", fmt.Errorf("failed to marshal names: %w", err)
		}
		namesJSON = string(b)
	}
	return datesJSON, namesJSON, nil
}

// scanConversationState reads one conversation state row. Column order must
// match the SELECT in GetConversationState for both backends.
func scanConversationState(row *sql.Row) (*models.ConversationState, error) {
	var st models.ConversationState
	var datesJSON, namesJSON string
	err := row.Scan(&st.ChatID, &st.CurrentTopic, &st.LastAcknowledgment.Type,
		&st.LastAcknowledgment.Value, &st.LastAcknowledgment.Confidence,
		&datesJSON, &st.LastMentionedDate, &namesJSON, &st.LastIntent,
		&st.LastIntentConfidence, &st.EntitiesUpdatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if datesJSON != "" {
		if err := json.Unmarshal([]byte(datesJSON), &st.Dates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dates: %w", err)
		}
	}
	if namesJSON != "" {
		if err := json.Unmarshal([]byte(namesJSON), &st.PotentialNames); err != nil {
			return nil, fmt.Errorf("failed to unmarshal names: %w", err)
		}
	}
	return &st, nil
}
