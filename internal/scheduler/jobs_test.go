package scheduler

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/mood"
	"github.com/astronow/astronow/internal/store"
)

type fakeOutbound struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func newFakeOutbound() *fakeOutbound {
	return &fakeOutbound{sent: make(map[int64][]string)}
}

func (f *fakeOutbound) Enqueue(chatID int64, text string) <-chan error {
	f.mu.Lock()
	f.sent[chatID] = append(f.sent[chatID], text)
	f.mu.Unlock()
	ch := make(chan error, 1)
	ch <- nil
	close(ch)
	return ch
}

func (f *fakeOutbound) count(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[chatID])
}

func newTestJobs(t *testing.T) (*Jobs, *store.InMemoryStore, *fakeOutbound) {
	t.Helper()
	st := store.NewInMemoryStore()
	out := newFakeOutbound()
	return NewJobs(st, out, mood.NewEngine(), 90), st, out
}

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
}

func TestDailyHoroscopeSkipsUnknownSigns(t *testing.T) {
	jobs, st, out := newTestJobs(t)
	now := time.Now()
	if err := st.SaveUser(models.User{ChatID: 1, Sign: "leo", LastSeenAt: now, CreatedAt: now}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := st.SaveUser(models.User{ChatID: 2, LastSeenAt: now, CreatedAt: now}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	jobs.DailyHoroscope()

	if out.count(1) != 1 {
		t.Errorf("expected horoscope for user with sign, got %d sends", out.count(1))
	}
	if out.count(2) != 0 {
		t.Errorf("expected no horoscope without a sign, got %d sends", out.count(2))
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if !strings.Contains(out.sent[1][0], "leo") {
		t.Errorf("expected horoscope to mention the sign, got %q", out.sent[1][0])
	}
}

func TestEngagementHookFiresOncePerSilentStretch(t *testing.T) {
	jobs, st, out := newTestJobs(t)
	lastSeen := time.Now().Add(-72 * time.Hour)
	if err := st.SaveUser(models.User{ChatID: 3, FirstName: "Ana", LastSeenAt: lastSeen, CreatedAt: lastSeen}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	jobs.EngagementHooks()
	jobs.EngagementHooks()

	if got := out.count(3); got != 1 {
		t.Errorf("expected exactly one hook per silent stretch, got %d", got)
	}

	// Once the user speaks again after the hook, a new silent stretch earns
	// a new hook.
	u, err := st.GetUser(3)
	if err != nil || u == nil {
		t.Fatalf("expected user, got %v, %v", u, err)
	}
	u.LastHookAt = time.Now().Add(-60 * time.Hour)
	u.LastSeenAt = time.Now().Add(-50 * time.Hour)
	if err := st.SaveUser(*u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	jobs.EngagementHooks()
	if got := out.count(3); got != 2 {
		t.Errorf("expected a second hook after renewed silence, got %d", got)
	}
}

func TestEngagementHookSkipsActiveUsers(t *testing.T) {
	jobs, st, out := newTestJobs(t)
	now := time.Now()
	if err := st.SaveUser(models.User{ChatID: 4, LastSeenAt: now.Add(-time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	jobs.EngagementHooks()
	if got := out.count(4); got != 0 {
		t.Errorf("expected no hook for a recently active user, got %d", got)
	}
}

func TestEngagementHookLongSilenceText(t *testing.T) {
	jobs, st, out := newTestJobs(t)
	lastSeen := time.Now().Add(-8 * 24 * time.Hour)
	if err := st.SaveUser(models.User{ChatID: 5, FirstName: "Ben", LastSeenAt: lastSeen, CreatedAt: lastSeen}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	jobs.EngagementHooks()
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.sent[5]) != 1 || !strings.Contains(out.sent[5][0], "week") {
		t.Errorf("expected the long-silence hook, got %v", out.sent[5])
	}
}

func TestRetentionCleanup(t *testing.T) {
	jobs, st, _ := newTestJobs(t)
	old := models.Message{ID: "old", ChatID: 1, Role: models.RoleUser, Text: "ancient", Time: time.Now().AddDate(0, 0, -120)}
	fresh := models.Message{ID: "fresh", ChatID: 1, Role: models.RoleUser, Text: "recent", Time: time.Now()}
	for _, m := range []models.Message{old, fresh} {
		if err := st.AddMessage(m); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	jobs.RetentionCleanup()

	msgs, err := st.GetRecentMessages(1, 10)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "fresh" {
		t.Errorf("expected only the recent message to survive, got %v", msgs)
	}
}

func TestMoodRecharge(t *testing.T) {
	st := store.NewInMemoryStore()
	moods := mood.NewEngine(mood.WithStore(st))
	moods.ProcessEnergyDrain(mood.ActivitySummarization)
	before := moods.EnergyLevel()

	jobs := NewJobs(st, newFakeOutbound(), moods, 90)
	jobs.MoodRecharge()

	if after := moods.EnergyLevel(); after <= before {
		t.Errorf("expected energy to rise from %.2f, got %.2f", before, after)
	}
	snap, err := st.GetMoodSnapshot()
	if err != nil || snap == nil {
		t.Fatalf("expected persisted snapshot, got %v, %v", snap, err)
	}
}
