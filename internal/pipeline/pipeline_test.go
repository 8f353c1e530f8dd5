package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/mood"
	"github.com/astronow/astronow/internal/store"
	"github.com/astronow/astronow/internal/tracker"
)

type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) IntN(n int) int   { return 0 }

// fakeLLM scripts the completion surface. A nil gate makes Summarize return
// immediately; otherwise it blocks until the gate closes.
type fakeLLM struct {
	mu             sync.Mutex
	reply          string
	generateErr    error
	summarizeCalls int
	gate           chan struct{}
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	return f.reply, f.generateErr
}

func (f *fakeLLM) Summarize(ctx context.Context, msgs []models.Message) (string, error) {
	f.mu.Lock()
	f.summarizeCalls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return "They talked about work stress and an upcoming trip.", nil
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summarizeCalls
}

// fakeOutbound records enqueued sends and resolves them instantly.
type fakeOutbound struct {
	mu    sync.Mutex
	sent  []string
	chats []int64
}

func (f *fakeOutbound) Enqueue(chatID int64, text string) <-chan error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.chats = append(f.chats, chatID)
	f.mu.Unlock()
	ch := make(chan error, 1)
	ch <- nil
	close(ch)
	return ch
}

func (f *fakeOutbound) EnqueueTyping(chatID int64) <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	close(ch)
	return ch
}

func newTestPipeline(llm *fakeLLM) (*Pipeline, *store.InMemoryStore, *fakeOutbound) {
	st := store.NewInMemoryStore()
	out := &fakeOutbound{}
	moods := mood.NewEngine(mood.WithRand(fixedRand{0.99}))
	p := New(st, tracker.New(st), moods, llm, out, WithRand(fixedRand{0.99}))
	return p, st, out
}

func TestHandleMessageHappyPath(t *testing.T) {
	llm := &fakeLLM{reply: "The moon agrees with you today."}
	p, st, out := newTestPipeline(llm)

	reply, err := p.HandleMessage(context.Background(), 42, "stargazer", "Nina", "hello there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "The moon agrees with you today." {
		t.Errorf("expected llm reply, got %q", reply)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.sent) != 1 || out.sent[0] != reply {
		t.Errorf("expected reply enqueued once, got %v", out.sent)
	}

	msgs, err := st.GetRecentMessages(42, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected inbound and outbound persisted, got %d messages", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Errorf("expected user then assistant roles, got %s then %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Emotion == "" {
		t.Error("expected outbound message tagged with the current mood")
	}

	user, err := st.GetUser(42)
	if err != nil || user == nil {
		t.Fatalf("expected user persisted, got %v, %v", user, err)
	}
	if user.FirstName != "Nina" {
		t.Errorf("expected first name Nina, got %q", user.FirstName)
	}
}

func TestHandleMessageRejectsEmpty(t *testing.T) {
	p, _, _ := newTestPipeline(&fakeLLM{})
	if _, err := p.HandleMessage(context.Background(), 1, "", "", "   "); !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestFallbackOnLLMFailure(t *testing.T) {
	llm := &fakeLLM{generateErr: errors.New("upstream down")}
	p, _, out := newTestPipeline(llm)

	reply, err := p.HandleMessage(context.Background(), 7, "", "", "what does my horoscope say today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "birthday") {
		t.Errorf("expected fallback to ask for a birth date, got %q", reply)
	}
	if strings.Contains(strings.ToLower(reply), "upstream") {
		t.Errorf("provider error leaked into the reply: %q", reply)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.sent) != 1 {
		t.Errorf("expected fallback enqueued, got %v", out.sent)
	}
}

func TestFallbackClarifiesAmbiguousDate(t *testing.T) {
	llm := &fakeLLM{generateErr: errors.New("timeout")}
	p, _, _ := newTestPipeline(llm)

	reply, err := p.HandleMessage(context.Background(), 7, "", "", "my birthday is 03/04/1999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "03/04/1999") {
		t.Errorf("expected clarifying question about the ambiguous date, got %q", reply)
	}
}

func TestBirthDateResolvesSign(t *testing.T) {
	llm := &fakeLLM{reply: "A Cancer, I knew it."}
	p, st, _ := newTestPipeline(llm)

	if _, err := p.HandleMessage(context.Background(), 9, "", "Leo", "I was born on 25/06/1994"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, err := st.GetUser(9)
	if err != nil || user == nil {
		t.Fatalf("expected user, got %v, %v", user, err)
	}
	if user.Sign != "cancer" {
		t.Errorf("expected sign cancer for June 25, got %q", user.Sign)
	}
	if user.BirthDate != "1994-06-25" {
		t.Errorf("expected birth date 1994-06-25, got %q", user.BirthDate)
	}
}

func TestRoboticPhraseSubstitution(t *testing.T) {
	got := substituteRoboticPhrases("I understand, and as an AI I want to help. Feel free to ask.", fixedRand{})
	if strings.Contains(strings.ToLower(got), "as an ai") {
		t.Errorf("expected assistant-ism removed, got %q", got)
	}
	if !strings.Contains(got, "i hear you") {
		t.Errorf("expected substitution applied, got %q", got)
	}
	if !strings.Contains(got, "ask.") {
		t.Errorf("expected surrounding text preserved, got %q", got)
	}
}

func TestSummarizationTriggersOnce(t *testing.T) {
	llm := &fakeLLM{reply: "Noted."}
	p, st, _ := newTestPipeline(llm)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < SummarizeThreshold; i++ {
		msg := models.Message{
			ID:     "seed-" + string(rune('a'+i)),
			ChatID: 5,
			Role:   models.RoleUser,
			Text:   "message about life",
			Time:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.AddMessage(msg); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	if _, err := p.HandleMessage(context.Background(), 5, "", "", "and another thing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Wait()

	if got := llm.calls(); got != 1 {
		t.Errorf("expected exactly one summarization call, got %d", got)
	}
	count, err := st.CountUnsummarized(5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count >= SummarizeThreshold {
		t.Errorf("expected unsummarized count reduced below threshold, got %d", count)
	}
	summaries, err := st.GetSummaries(5, 10)
	if err != nil || len(summaries) != 1 {
		t.Fatalf("expected one summary, got %v, %v", summaries, err)
	}
	if len(summaries[0].CoveredIDs) == 0 {
		t.Error("expected summary to record covered message ids")
	}
	embeddings, err := st.ListEmbeddings()
	if err != nil || len(embeddings) != 1 {
		t.Errorf("expected summary embedded for retrieval, got %v, %v", embeddings, err)
	}
}

func TestSummarizationDuplicateSuppressed(t *testing.T) {
	gate := make(chan struct{})
	llm := &fakeLLM{gate: gate}
	p, st, _ := newTestPipeline(llm)

	for i := 0; i < SummarizeThreshold+2; i++ {
		msg := models.Message{
			ID:     "dup-" + string(rune('a'+i)),
			ChatID: 6,
			Role:   models.RoleUser,
			Text:   "more talk",
			Time:   time.Now(),
		}
		if err := st.AddMessage(msg); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	p.maybeSummarize(6)
	// The first run is parked at the gate; a second trigger must be a no-op.
	time.Sleep(20 * time.Millisecond)
	p.maybeSummarize(6)
	close(gate)
	p.Wait()

	if got := llm.calls(); got != 1 {
		t.Errorf("expected duplicate summarization suppressed, got %d calls", got)
	}
}

func TestBuildSystemPromptSections(t *testing.T) {
	ctx := Context{
		Mood:      mood.Contemplative,
		MoodAttrs: mood.Attributes{Energy: 0.4, Openness: 0.6, Depth: 0.9},
		Energy:    0.5,
		State: models.ConversationState{
			CurrentTopic:   models.TopicHoroscopeRequest,
			PotentialNames: []string{"Maria"},
		},
		User: &models.User{FirstName: "Sam", Sign: "leo"},
		Now:  time.Date(2025, time.June, 3, 12, 0, 0, 0, time.UTC),
	}
	prompt := BuildSystemPrompt(ctx)
	for _, want := range []string{"contemplative", "horoscope_request", "Maria", "Sam", "leo"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to mention %q", want)
		}
	}
	if strings.Contains(strings.ToLower(prompt), "do not know their sign") {
		t.Error("expected no sign request when the sign is known")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float64{1, 0}, []float64{1, 0}); got < 0.999 {
		t.Errorf("expected identical vectors to score 1, got %f", got)
	}
	if got := cosineSimilarity([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("expected orthogonal vectors to score 0, got %f", got)
	}
	if got := cosineSimilarity([]float64{1, 0}, []float64{1}); got != 0 {
		t.Errorf("expected mismatched lengths to score 0, got %f", got)
	}
}
