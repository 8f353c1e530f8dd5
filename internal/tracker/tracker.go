package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/store"
)

// EntityTTL bounds how long stale entity and intent fields survive merges.
// Topic is exempt: carrying topic forward is load-bearing for routing bare
// acknowledgments.
const EntityTTL = 24 * time.Hour

// Tracker owns the persisted per-chat conversation state.
type Tracker struct {
	store store.Store
}

// New creates a Tracker backed by the given store.
func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// UpdateState classifies rawMessage, merges the result into the previous
// persisted state for the chat, persists, and returns the new state. The
// merge is right-biased: recomputed fields overwrite, everything else
// carries forward (entities and intent subject to EntityTTL).
func (t *Tracker) UpdateState(ctx context.Context, chatID int64, rawMessage string) (models.ConversationState, error) {
	previous, err := t.store.GetConversationState(chatID)
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("failed to load conversation state: %w", err)
	}

	now := time.Now()
	newState := Merge(previous, rawMessage, now)
	newState.ChatID = chatID

	if err := t.store.SaveConversationState(newState); err != nil {
		slog.Error("Tracker UpdateState save failed", "error", err, "chatID", chatID)
		return newState, fmt.Errorf("failed to persist conversation state: %w", err)
	}
	slog.Debug("Tracker state updated", "chatID", chatID, "topic", newState.CurrentTopic, "ack", newState.LastAcknowledgment.Type)
	return newState, nil
}

// GetState returns the persisted state for a chat, or nil if none exists.
func (t *Tracker) GetState(ctx context.Context, chatID int64) (*models.ConversationState, error) {
	return t.store.GetConversationState(chatID)
}

// Reset removes the persisted state for a chat.
func (t *Tracker) Reset(ctx context.Context, chatID int64) error {
	return t.store.DeleteConversationState(chatID)
}

// Merge computes the new state for rawMessage against previous. Pure; the
// Tracker wraps it with persistence.
func Merge(previous *models.ConversationState, rawMessage string, now time.Time) models.ConversationState {
	var st models.ConversationState
	if previous != nil {
		st = *previous
		// Recency cutoff: stale entities and intent must not leak into
		// unrelated future topics.
		if !st.EntitiesUpdatedAt.IsZero() && now.Sub(st.EntitiesUpdatedAt) > EntityTTL {
			st.Dates = nil
			st.LastMentionedDate = ""
			st.PotentialNames = nil
			st.LastIntent = ""
			st.LastIntentConfidence = 0
		}
	}

	st.CurrentTopic = DetectTopic(rawMessage, previous)
	st.LastAcknowledgment = DetectAcknowledgment(rawMessage)

	entities := ExtractEntities(rawMessage)
	if len(entities.Dates) > 0 {
		st.Dates = entities.Dates
		st.LastMentionedDate = entities.Dates[len(entities.Dates)-1].Normalized
		st.EntitiesUpdatedAt = now
	}
	if len(entities.PotentialNames) > 0 {
		st.PotentialNames = entities.PotentialNames
		st.EntitiesUpdatedAt = now
	}

	if intent, confidence := DetectIntent(rawMessage); intent != "" {
		st.LastIntent = intent
		st.LastIntentConfidence = confidence
		st.EntitiesUpdatedAt = now
	}

	st.UpdatedAt = now
	return st
}
