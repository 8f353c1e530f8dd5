// Package pipeline turns one inbound chat message into one outbound reply.
//
// handleMessage runs the full path: persist the inbound message, update the
// tracked conversation state, analyze flow over the recent window, settle
// the mood, assemble the LLM context, generate (or fall back), post-process
// the text, persist the reply, and hand it to the outbound queue. A
// summarization check runs in the background when enough unsummarized
// messages pile up.
package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astronow/astronow/internal/dynamics"
	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/mood"
	"github.com/astronow/astronow/internal/store"
	"github.com/astronow/astronow/internal/tracker"
	"github.com/astronow/astronow/internal/util"
)

// LLM is the completion and embedding surface the pipeline depends on.
// Implemented by genai.Client; tests use fakes.
type LLM interface {
	Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error)
	Summarize(ctx context.Context, msgs []models.Message) (string, error)
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Outbound is the send surface, implemented by queue.Queue.
type Outbound interface {
	Enqueue(chatID int64, text string) <-chan error
	EnqueueTyping(chatID int64) <-chan error
}

const (
	// HistoryWindow bounds the recent-message window fed to flow analysis
	// and the LLM.
	HistoryWindow = 20
	// SummarizeThreshold is the unsummarized-message count that triggers a
	// background summarization.
	SummarizeThreshold = 10

	summarizeTimeout = 60 * time.Second
)

// Pipeline wires the conversation modules together for one bot process.
type Pipeline struct {
	store    store.Store
	tracker  *tracker.Tracker
	moods    *mood.Engine
	llm      LLM
	outbound Outbound
	persona  string
	rng      mood.Rand

	inflightMu sync.Mutex
	inflight   map[int64]bool
	wg         sync.WaitGroup
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithPersona overrides the default persona prompt.
func WithPersona(prompt string) Option {
	return func(p *Pipeline) {
		if strings.TrimSpace(prompt) != "" {
			p.persona = prompt
		}
	}
}

// WithRand injects a seedable randomness source for phrase substitution.
func WithRand(r mood.Rand) Option {
	return func(p *Pipeline) { p.rng = r }
}

type stdRand struct{}

func (stdRand) Float64() float64 { return rand.Float64() }
func (stdRand) IntN(n int) int   { return rand.IntN(n) }

// New creates a Pipeline over the given collaborators.
func New(st store.Store, tr *tracker.Tracker, moods *mood.Engine, llm LLM, out Outbound, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    st,
		tracker:  tr,
		moods:    moods,
		llm:      llm,
		outbound: out,
		persona:  defaultPersona,
		rng:      stdRand{},
		inflight: make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleMessage processes one inbound message and returns the reply text.
// The reply is also enqueued for delivery; persistence failures degrade the
// turn but never fail it.
func (p *Pipeline) HandleMessage(ctx context.Context, chatID int64, username, firstName, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", models.ErrEmptyMessage
	}
	now := time.Now()

	user := p.upsertUser(chatID, username, firstName, now)

	inbound := models.Message{
		ID:     util.GenerateMessageID(),
		ChatID: chatID,
		Role:   models.RoleUser,
		Text:   text,
		Time:   now,
	}
	if err := p.store.AddMessage(inbound); err != nil {
		slog.Error("Pipeline failed to persist inbound message", "chatID", chatID, "error", err)
	}

	state, err := p.tracker.UpdateState(ctx, chatID, text)
	if err != nil {
		slog.Error("Pipeline state update failed", "chatID", chatID, "error", err)
	}

	// Birth dates resolve the user's sign as a side effect.
	p.absorbBirthDate(user, state)

	history, err := p.store.GetRecentMessages(chatID, HistoryWindow)
	if err != nil {
		slog.Error("Pipeline failed to load history", "chatID", chatID, "error", err)
		history = []models.Message{inbound}
	}

	flow := dynamics.AnalyzeFlow(history)
	currentMood := p.moods.DetermineMood(mood.TransitionInput{
		MessageCount: len(history),
		Depth:        flow.Depth,
		UserEnergy:   flow.Energy,
		Now:          now,
	})

	// Typing shows while the completion is in flight.
	p.outbound.EnqueueTyping(chatID)

	promptCtx := Context{
		Persona:   p.persona,
		User:      user,
		State:     state,
		Flow:      flow,
		Mood:      currentMood,
		MoodAttrs: p.moods.CurrentAttributes(),
		Energy:    p.moods.EnergyLevel(),
		Knowledge: p.retrieveKnowledge(ctx, text),
		Now:       now,
	}
	if summaries, err := p.store.GetSummaries(chatID, 3); err == nil {
		promptCtx.Summaries = summaries
	}

	reply, err := p.llm.Generate(ctx, BuildSystemPrompt(promptCtx), history)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			slog.Warn("Pipeline falling back to templated reply", "chatID", chatID, "error", err)
		}
		reply = fallbackReply(state, user, now)
	}

	reply = substituteRoboticPhrases(reply, p.rng)
	reply = p.moods.ApplyQuirks(reply)

	activity := mood.ActivityReply
	if flow.Depth > 0.7 {
		activity = mood.ActivityDeepExchange
	}
	p.moods.ProcessEnergyDrain(activity)

	outboundMsg := models.Message{
		ID:      util.GenerateMessageID(),
		ChatID:  chatID,
		Role:    models.RoleAssistant,
		Text:    reply,
		Emotion: string(currentMood),
		Time:    time.Now(),
	}
	if err := p.store.AddMessage(outboundMsg); err != nil {
		slog.Error("Pipeline failed to persist reply", "chatID", chatID, "error", err)
	}

	p.maybeSummarize(chatID)

	result := p.outbound.Enqueue(chatID, reply)
	go func() {
		if err := <-result; err != nil {
			slog.Error("Pipeline reply delivery failed", "chatID", chatID, "error", err)
		}
	}()

	return reply, nil
}

// Wait blocks until background summarizations finish. Used on shutdown.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) upsertUser(chatID int64, username, firstName string, now time.Time) *models.User {
	user, err := p.store.GetUser(chatID)
	if err != nil {
		slog.Error("Pipeline user lookup failed", "chatID", chatID, "error", err)
	}
	if user == nil {
		user = &models.User{ChatID: chatID, CreatedAt: now}
	}
	user.Username = username
	user.FirstName = firstName
	user.LastSeenAt = now
	if err := p.store.SaveUser(*user); err != nil {
		slog.Error("Pipeline user save failed", "chatID", chatID, "error", err)
	}
	return user
}

// absorbBirthDate promotes an unambiguous tracked date into the user's
// birth date and zodiac sign when the conversation is about dates.
func (p *Pipeline) absorbBirthDate(user *models.User, state models.ConversationState) {
	if state.CurrentTopic != models.TopicDiscussingDates || len(state.Dates) == 0 {
		return
	}
	latest := state.Dates[len(state.Dates)-1]
	if latest.IsAmbiguous || user.BirthDate == latest.Normalized {
		return
	}
	parsed, err := time.Parse("2006-01-02", latest.Normalized)
	if err != nil {
		return
	}
	user.BirthDate = latest.Normalized
	user.Sign = signForBirthDate(parsed)
	if err := p.store.SaveUser(*user); err != nil {
		slog.Error("Pipeline user sign save failed", "chatID", user.ChatID, "error", err)
	}
	slog.Info("Pipeline resolved user sign", "chatID", user.ChatID, "sign", user.Sign)
}

// maybeSummarize launches a background summarization when the chat has
// enough unsummarized messages and none is already in flight for it.
func (p *Pipeline) maybeSummarize(chatID int64) {
	p.inflightMu.Lock()
	if p.inflight[chatID] {
		p.inflightMu.Unlock()
		return
	}
	p.inflight[chatID] = true
	p.inflightMu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.inflightMu.Lock()
			delete(p.inflight, chatID)
			p.inflightMu.Unlock()
		}()
		p.summarize(chatID)
	}()
}

func (p *Pipeline) summarize(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), summarizeTimeout)
	defer cancel()

	// The count gates here, not at trigger time, so a restart that lost the
	// in-flight flag cannot double-summarize the same block.
	count, err := p.store.CountUnsummarized(chatID)
	if err != nil {
		slog.Error("Summarization count failed", "chatID", chatID, "error", err)
		return
	}
	if count < SummarizeThreshold {
		return
	}

	msgs, err := p.store.GetUnsummarized(chatID)
	if err != nil {
		slog.Error("Summarization fetch failed", "chatID", chatID, "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	text, err := p.llm.Summarize(ctx, msgs)
	if err != nil {
		slog.Error("Summarization generation failed", "chatID", chatID, "error", err)
		return
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	summary := models.Summary{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Text:       text,
		CoveredIDs: ids,
		CreatedAt:  time.Now(),
	}
	if err := p.store.AddSummary(summary); err != nil {
		slog.Error("Summarization save failed", "chatID", chatID, "error", err)
		return
	}
	if err := p.store.MarkSummarized(ids); err != nil {
		slog.Error("Summarization mark failed", "chatID", chatID, "error", err)
		return
	}
	slog.Info("Conversation block summarized", "chatID", chatID, "messages", len(ids))

	// Summaries feed retrieval; embedding failure only costs recall.
	if vec, err := p.llm.Embed(ctx, text); err != nil {
		slog.Warn("Summary embedding failed", "chatID", chatID, "error", err)
	} else if err := p.store.AddEmbedding(models.Embedding{
		ID:         uuid.NewString(),
		Vector:     vec,
		SourceText: text,
		CreatedAt:  time.Now(),
	}); err != nil {
		slog.Warn("Summary embedding save failed", "chatID", chatID, "error", err)
	}
}
