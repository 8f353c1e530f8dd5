// Package mood maintains the bot's process-wide personality state: a current
// mood from a fixed set, an energy scalar, and transition rules gated by
// elapsed time, conversation features, and time-of-day signals.
//
// All randomness flows through an injected Rand so tests can script it.
package mood

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/astronow/astronow/internal/dynamics"
	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/store"
)

// Mood is one of the six fixed personality states.
type Mood string

const (
	Curious       Mood = "curious"
	Contemplative Mood = "contemplative"
	Playful       Mood = "playful"
	Intense       Mood = "intense"
	Scattered     Mood = "scattered"
	Grounded      Mood = "grounded"
)

// moodCycle fixes the rotation order for the low-probability cyclic shift.
var moodCycle = []Mood{Curious, Contemplative, Playful, Intense, Scattered, Grounded}

// Attributes is the fixed personality vector for one mood.
type Attributes struct {
	Energy   float64 `json:"energy"`
	Openness float64 `json:"openness"`
	Depth    float64 `json:"depth"`
}

var moodAttributes = map[Mood]Attributes{
	Curious:       {Energy: 0.7, Openness: 0.9, Depth: 0.5},
	Contemplative: {Energy: 0.4, Openness: 0.6, Depth: 0.9},
	Playful:       {Energy: 0.9, Openness: 0.8, Depth: 0.3},
	Intense:       {Energy: 0.8, Openness: 0.4, Depth: 0.8},
	Scattered:     {Energy: 0.3, Openness: 0.5, Depth: 0.2},
	Grounded:      {Energy: 0.6, Openness: 0.7, Depth: 0.6},
}

// Shift records one mood transition for history reporting.
type Shift struct {
	From      Mood      `json:"from"`
	To        Mood      `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Hysteresis and energy constants.
const (
	// MinShiftInterval is the hysteresis window: no shift happens sooner
	// unless energy is critical.
	MinShiftInterval = 2 * time.Hour
	// EnergyCritical is the level below which the hysteresis guard is
	// bypassed and intense collapses to scattered.
	EnergyCritical = 0.2
	// EnergyFloor and EnergyCeil clamp the energy scalar.
	EnergyFloor = 0.1
	EnergyCeil  = 1.0

	// RechargeIncrement is added by each periodic recharge tick.
	RechargeIncrement = 0.05

	maxHistory = 50
)

// Activity kinds and their fixed energy drains.
type Activity string

const (
	ActivityReply         Activity = "reply"
	ActivityDeepExchange  Activity = "deep_exchange"
	ActivityHoroscopeCast Activity = "horoscope_cast"
	ActivityProactiveHook Activity = "proactive_hook"
	ActivitySummarization Activity = "summarization"
)

var activityDrain = map[Activity]float64{
	ActivityReply:         0.05,
	ActivityDeepExchange:  0.15,
	ActivityHoroscopeCast: 0.1,
	ActivityProactiveHook: 0.2,
	ActivitySummarization: 0.3,
}

// Rand is the randomness source used by transitions and quirks.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type defaultRand struct{}

func (defaultRand) Float64() float64 { return rand.Float64() }
func (defaultRand) IntN(n int) int   { return rand.IntN(n) }

// TransitionInput carries the conversation features a transition evaluates.
type TransitionInput struct {
	MessageCount int
	Depth        float64
	UserEnergy   dynamics.EnergyLevel
	Now          time.Time
}

// Engine owns the mutable mood state. All mutations go through the mutex;
// the engine is shared by the message pipeline and the cron recharge tick.
type Engine struct {
	mu          sync.Mutex
	current     Mood
	energyLevel float64
	lastShiftAt time.Time
	history     []Shift
	rng         Rand
	store       store.Store
}

// Option configures the Engine.
type Option func(*Engine)

// WithRand injects a seedable randomness source.
func WithRand(r Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithStore enables snapshot persistence for restart recovery.
func WithStore(st store.Store) Option {
	return func(e *Engine) { e.store = st }
}

// NewEngine creates an engine starting curious at 0.8 energy, or restored
// from a persisted snapshot when a store is configured and has one.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		current:     Curious,
		energyLevel: 0.8,
		lastShiftAt: time.Now().Add(-MinShiftInterval), // allow an immediate first shift
		rng:         defaultRand{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store != nil {
		if snap, err := e.store.GetMoodSnapshot(); err != nil {
			slog.Error("MoodEngine failed to load snapshot", "error", err)
		} else if snap != nil {
			if _, ok := moodAttributes[Mood(snap.Mood)]; ok {
				e.current = Mood(snap.Mood)
				e.energyLevel = clampEnergy(snap.EnergyLevel)
				e.lastShiftAt = snap.LastShiftAt
				slog.Info("MoodEngine restored from snapshot", "mood", e.current, "energy", e.energyLevel)
			}
		}
	}
	return e
}

// Current returns the present mood.
func (e *Engine) Current() Mood {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// EnergyLevel returns the present energy scalar.
func (e *Engine) EnergyLevel() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.energyLevel
}

// CurrentAttributes returns the personality vector of the present mood.
func (e *Engine) CurrentAttributes() Attributes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return moodAttributes[e.current]
}

// History returns a copy of the recorded shifts, oldest first.
func (e *Engine) History() []Shift {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Shift, len(e.history))
	copy(out, e.history)
	return out
}

// DetermineMood evaluates the transition rules and returns the (possibly
// unchanged) mood. Within MinShiftInterval of the last shift the call is a
// no-op unless energy is critical.
func (e *Engine) DetermineMood(in TransitionInput) Mood {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	if now.Sub(e.lastShiftAt) < MinShiftInterval && e.energyLevel >= EnergyCritical {
		return e.current
	}

	// Priority-ordered rules; the first that fires wins.
	switch {
	case e.energyLevel < 0.3 && in.Depth > 0.6:
		e.shiftTo(Scattered, now, "low energy under high depth")
	case in.MessageCount > 0 && in.MessageCount < 5:
		e.shiftTo(Curious, now, "early conversation")
	case in.UserEnergy == dynamics.EnergyHigh && e.rng.Float64() < 0.4:
		e.shiftTo(Playful, now, "mirroring user energy")
	case in.Depth > 0.7 && e.current != Contemplative:
		e.shiftTo(Contemplative, now, "sustained depth")
	case e.rng.Float64() < 0.3:
		e.shiftTo(cosmicMood(now), now, "cosmic influence")
	case e.rng.Float64() < 0.1:
		e.shiftTo(nextInCycle(e.current), now, "cyclic drift")
	}
	return e.current
}

// ProcessEnergyDrain decreases energy by the fixed amount for the activity.
// Dropping below critical while intense forces a shift to scattered.
func (e *Engine) ProcessEnergyDrain(activity Activity) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	drain, ok := activityDrain[activity]
	if !ok {
		drain = activityDrain[ActivityReply]
	}
	e.energyLevel = clampEnergy(e.energyLevel - drain)

	if e.energyLevel < EnergyCritical && e.current == Intense {
		e.shiftTo(Scattered, time.Now(), "energy safety valve")
	}
	return e.energyLevel
}

// Recharge increases energy by the fixed increment. Wired to a cron tick.
func (e *Engine) Recharge() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.energyLevel = clampEnergy(e.energyLevel + RechargeIncrement)
	return e.energyLevel
}

// Snapshot returns the persistable view of the engine.
func (e *Engine) Snapshot() models.MoodSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() models.MoodSnapshot {
	return models.MoodSnapshot{
		Mood:        string(e.current),
		EnergyLevel: e.energyLevel,
		LastShiftAt: e.lastShiftAt,
		UpdatedAt:   time.Now(),
	}
}

// Persist writes the current snapshot to the store, if one is configured.
func (e *Engine) Persist() {
	e.mu.Lock()
	snap := e.snapshotLocked()
	st := e.store
	e.mu.Unlock()
	if st == nil {
		return
	}
	if err := st.SaveMoodSnapshot(snap); err != nil {
		slog.Error("MoodEngine snapshot persist failed", "error", err)
	}
}

// shiftTo records the transition and re-averages energy toward the new
// mood's baseline. Callers hold the mutex.
func (e *Engine) shiftTo(to Mood, now time.Time, reason string) {
	if to == e.current {
		return
	}
	from := e.current
	e.current = to
	e.lastShiftAt = now
	e.energyLevel = clampEnergy((e.energyLevel + moodAttributes[to].Energy) / 2)
	e.history = append(e.history, Shift{From: from, To: to, Timestamp: now, Reason: reason})
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
	slog.Info("MoodEngine mood shift", "from", from, "to", to, "reason", reason, "energy", e.energyLevel)

	if e.store != nil {
		snap := models.MoodSnapshot{
			Mood:        string(e.current),
			EnergyLevel: e.energyLevel,
			LastShiftAt: e.lastShiftAt,
			UpdatedAt:   now,
		}
		if err := e.store.SaveMoodSnapshot(snap); err != nil {
			slog.Error("MoodEngine snapshot persist failed", "error", err)
		}
	}
}

// cosmicMood maps time of day and a coarse lunar phase to a suggested mood.
func cosmicMood(now time.Time) Mood {
	// Full-ish moon evenings lean intense.
	if lunarPhase(now) > 0.45 && lunarPhase(now) < 0.55 && now.Hour() >= 20 {
		return Intense
	}
	switch h := now.Hour(); {
	case h < 6:
		return Contemplative
	case h < 12:
		return Curious
	case h < 18:
		return Playful
	default:
		return Grounded
	}
}

// lunarPhase returns the moon phase in [0,1), 0.5 ≈ full, based on the
// synodic month anchored at the 2000-01-06 new moon. Accurate enough for
// flavor, which is all it feeds.
func lunarPhase(now time.Time) float64 {
	const synodic = time.Duration(29.53058867 * 24 * float64(time.Hour))
	anchor := time.Date(2000, 1, 6, 18, 14, 0, 0, time.UTC)
	elapsed := now.Sub(anchor) % synodic
	if elapsed < 0 {
		elapsed += synodic
	}
	return float64(elapsed) / float64(synodic)
}

func nextInCycle(m Mood) Mood {
	for i, c := range moodCycle {
		if c == m {
			return moodCycle[(i+1)%len(moodCycle)]
		}
	}
	return moodCycle[0]
}

func clampEnergy(v float64) float64 {
	if v < EnergyFloor {
		return EnergyFloor
	}
	if v > EnergyCeil {
		return EnergyCeil
	}
	return v
}
