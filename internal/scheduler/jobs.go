package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/mood"
	"github.com/astronow/astronow/internal/store"
	"github.com/astronow/astronow/internal/util"
	"github.com/astronow/astronow/internal/zodiac"
)

// Outbound is the send surface jobs deliver through.
type Outbound interface {
	Enqueue(chatID int64, text string) <-chan error
}

// Silence thresholds for engagement hooks. A user gets at most one hook per
// silent stretch; LastHookAt is the idempotency marker.
const (
	hookGentleAfter = 48 * time.Hour
	hookLongAfter   = 7 * 24 * time.Hour
)

// Jobs bundles the batch work the cron scheduler drives.
type Jobs struct {
	store         store.Store
	outbound      Outbound
	moods         *mood.Engine
	retentionDays int
}

// NewJobs creates the job bundle.
func NewJobs(st store.Store, out Outbound, moods *mood.Engine, retentionDays int) *Jobs {
	return &Jobs{store: st, outbound: out, moods: moods, retentionDays: retentionDays}
}

// Register wires every job onto the scheduler with its cron expression.
func (j *Jobs) Register(s *Scheduler, horoscopeExpr, engagementExpr, cleanupExpr string) error {
	if err := s.AddJob(horoscopeExpr, j.DailyHoroscope); err != nil {
		return fmt.Errorf("failed to schedule daily horoscope: %w", err)
	}
	if err := s.AddJob(engagementExpr, j.EngagementHooks); err != nil {
		return fmt.Errorf("failed to schedule engagement hooks: %w", err)
	}
	if err := s.AddJob(cleanupExpr, j.RetentionCleanup); err != nil {
		return fmt.Errorf("failed to schedule retention cleanup: %w", err)
	}
	// Energy comes back on its own schedule, hourly.
	if err := s.AddJob("0 * * * *", j.MoodRecharge); err != nil {
		return fmt.Errorf("failed to schedule mood recharge: %w", err)
	}
	return nil
}

// DailyHoroscope sends every user with a known sign their daily reading.
func (j *Jobs) DailyHoroscope() {
	users, err := j.store.ListUsers()
	if err != nil {
		slog.Error("DailyHoroscope user listing failed", "error", err)
		return
	}
	now := time.Now()
	sent := 0
	for _, u := range users {
		if u.Sign == "" {
			continue
		}
		sign := zodiac.Sign(u.Sign)
		text := fmt.Sprintf("Morning transmission for %s: %s. Keep an eye out.", u.Sign, zodiac.DailyTheme(sign, now))
		j.outbound.Enqueue(u.ChatID, text)
		j.recordOutbound(u.ChatID, text)
		sent++
	}
	if sent > 0 {
		j.moods.ProcessEnergyDrain(mood.ActivityHoroscopeCast)
	}
	slog.Info("DailyHoroscope broadcast complete", "sent", sent)
}

// EngagementHooks checks in with users who have gone quiet. LastHookAt
// keeps one silent stretch to one hook even across restarts.
func (j *Jobs) EngagementHooks() {
	users, err := j.store.ListUsers()
	if err != nil {
		slog.Error("EngagementHooks user listing failed", "error", err)
		return
	}
	now := time.Now()
	sent := 0
	for _, u := range users {
		silence := now.Sub(u.LastSeenAt)
		if silence < hookGentleAfter {
			continue
		}
		if u.LastHookAt.After(u.LastSeenAt) {
			continue
		}

		var text string
		if silence >= hookLongAfter {
			if u.FirstName != "" {
				text = fmt.Sprintf("%s. A whole week. The sky kept asking about you, so here I am.", u.FirstName)
			} else {
				text = "A whole week of quiet. The sky kept asking about you, so here I am."
			}
		} else {
			text = "Been quiet over there. Something shifted in your chart and I got curious. How are you?"
		}

		j.outbound.Enqueue(u.ChatID, text)
		j.recordOutbound(u.ChatID, text)
		u.LastHookAt = now
		if err := j.store.SaveUser(u); err != nil {
			slog.Error("EngagementHooks user save failed", "chatID", u.ChatID, "error", err)
		}
		j.moods.ProcessEnergyDrain(mood.ActivityProactiveHook)
		sent++
	}
	slog.Info("EngagementHooks run complete", "sent", sent)
}

// MoodRecharge restores a slice of energy and persists the snapshot.
func (j *Jobs) MoodRecharge() {
	level := j.moods.Recharge()
	j.moods.Persist()
	slog.Debug("Mood energy recharged", "energy", level)
}

// RetentionCleanup deletes messages past the retention window.
func (j *Jobs) RetentionCleanup() {
	if j.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)
	deleted, err := j.store.DeleteMessagesBefore(cutoff)
	if err != nil {
		slog.Error("RetentionCleanup failed", "error", err)
		return
	}
	slog.Info("RetentionCleanup complete", "deleted", deleted, "cutoff", cutoff)
}

func (j *Jobs) recordOutbound(chatID int64, text string) {
	msg := models.Message{
		ID:     util.GenerateMessageID(),
		ChatID: chatID,
		Role:   models.RoleAssistant,
		Text:   text,
		Time:   time.Now(),
	}
	if err := j.store.AddMessage(msg); err != nil {
		slog.Error("Job message persist failed", "chatID", chatID, "error", err)
	}
}
