package dynamics

import (
	"strings"
	"testing"
	"time"

	"github.com/astronow/astronow/internal/models"
)

func msg(role models.Role, text string, at time.Time) models.Message {
	return models.Message{ChatID: 1, Role: role, Text: text, Time: at}
}

func TestAnalyzeFlow_EmptyWindow(t *testing.T) {
	a := AnalyzeFlow(nil)
	if a.Momentum != 0.5 {
		t.Errorf("expected neutral momentum for empty window, got %f", a.Momentum)
	}
	if a.UserDominance != 0.5 {
		t.Errorf("expected 0.5 dominance with no words, got %f", a.UserDominance)
	}
	if a.Energy != EnergyNeutral {
		t.Errorf("expected neutral energy, got %s", a.Energy)
	}
	if a.Pattern != nil {
		t.Errorf("expected no pattern, got %+v", a.Pattern)
	}
}

func TestAnalyzeFlow_ScalarsClamped(t *testing.T) {
	base := time.Now()
	long := strings.Repeat("I feel afraid and lonely and anxious and hurt. ", 20)
	var window []models.Message
	// Extreme case: long emotional messages arriving rapidly.
	for i := 0; i < 10; i++ {
		window = append(window, msg(models.RoleUser, long+"?", base.Add(time.Duration(i)*time.Second)))
	}
	a := AnalyzeFlow(window)
	if a.Momentum < 0 || a.Momentum > 1 {
		t.Errorf("momentum %f outside [0,1]", a.Momentum)
	}
	if a.Depth < 0 || a.Depth > 1 {
		t.Errorf("depth %f outside [0,1]", a.Depth)
	}
	if a.UserDominance < 0 || a.UserDominance > 1 {
		t.Errorf("userDominance %f outside [0,1]", a.UserDominance)
	}
}

func TestMomentum_QuestionBoost(t *testing.T) {
	base := time.Now()
	with := AnalyzeFlow([]models.Message{msg(models.RoleUser, "so what happens next?", base)})
	without := AnalyzeFlow([]models.Message{msg(models.RoleUser, "so what happens next", base)})
	if with.Momentum <= without.Momentum {
		t.Errorf("question should boost momentum: %f vs %f", with.Momentum, without.Momentum)
	}
}

func TestMomentum_SlowReplyDrops(t *testing.T) {
	base := time.Now()
	fast := []models.Message{
		msg(models.RoleUser, "hello there friend", base),
		msg(models.RoleAssistant, "hello to you too", base.Add(10*time.Second)),
		msg(models.RoleUser, "how are you today", base.Add(20*time.Second)),
	}
	slow := []models.Message{
		msg(models.RoleUser, "hello there friend", base),
		msg(models.RoleAssistant, "hello to you too", base.Add(10*time.Second)),
		msg(models.RoleUser, "how are you today", base.Add(10*time.Minute)),
	}
	if AnalyzeFlow(slow).Momentum >= AnalyzeFlow(fast).Momentum {
		t.Error("a much slower last reply should lower momentum")
	}
}

func TestDepth_VulnerabilityOutweighsEmotion(t *testing.T) {
	base := time.Now()
	vulnerable := AnalyzeFlow([]models.Message{msg(models.RoleUser, "honestly I never told anyone this", base)})
	emotional := AnalyzeFlow([]models.Message{msg(models.RoleUser, "I feel happy", base)})
	if vulnerable.Depth <= emotional.Depth {
		t.Errorf("vulnerability markers should score deeper: %f vs %f", vulnerable.Depth, emotional.Depth)
	}
}

func TestUserDominance(t *testing.T) {
	base := time.Now()
	window := []models.Message{
		msg(models.RoleUser, "one two three four five six seven eight", base),
		msg(models.RoleAssistant, "one two", base.Add(time.Second)),
	}
	a := AnalyzeFlow(window)
	if a.UserDominance != 0.8 {
		t.Errorf("expected 0.8 dominance (8 of 10 words), got %f", a.UserDominance)
	}
}

func TestEnergy_HighAndLow(t *testing.T) {
	base := time.Now()
	high := []models.Message{
		msg(models.RoleUser, "this is amazing!!!", base),
		msg(models.RoleUser, "I am so excited!", base.Add(time.Second)),
		msg(models.RoleUser, "wow wow wow! incredible!", base.Add(2*time.Second)),
	}
	if got := AnalyzeFlow(high).Energy; got != EnergyHigh {
		t.Errorf("expected high energy, got %s", got)
	}
	low := []models.Message{
		msg(models.RoleUser, "ok", base),
		msg(models.RoleUser, "meh", base.Add(time.Second)),
		msg(models.RoleUser, "so tired today honestly just drained", base.Add(2*time.Second)),
	}
	if got := AnalyzeFlow(low).Energy; got != EnergyLow {
		t.Errorf("expected low energy, got %s", got)
	}
}

func TestDetectPattern_Venting(t *testing.T) {
	base := time.Now()
	window := []models.Message{
		msg(models.RoleUser, "I am so frustrated with work and everything about it honestly", base),
		msg(models.RoleAssistant, "that sounds heavy, tell me more about it", base.Add(time.Second)),
		msg(models.RoleUser, "I just can't believe they did that to me, so unfair and annoyed", base.Add(2*time.Second)),
	}
	a := AnalyzeFlow(window)
	if a.Pattern == nil || a.Pattern.Type != "venting" {
		t.Fatalf("expected venting pattern, got %+v", a.Pattern)
	}
	if a.Pattern.Strength != 0.4 {
		t.Errorf("expected strength 2/5=0.4, got %f", a.Pattern.Strength)
	}
	if a.Strategy.Name != "hold-space" {
		t.Errorf("venting should select hold-space, got %s", a.Strategy.Name)
	}
}

func TestChooseStrategy_Order(t *testing.T) {
	// momentum rule must win even when depth is also extreme.
	s := chooseStrategy(FlowAnalysis{Momentum: 0.1, Depth: 0.9})
	if s.Name != "pivot" {
		t.Errorf("low momentum should short-circuit to pivot, got %s", s.Name)
	}
	s = chooseStrategy(FlowAnalysis{Momentum: 0.5, Depth: 0.8, UserDominance: 0.9})
	if s.Name != "honor-depth" {
		t.Errorf("depth should outrank dominance, got %s", s.Name)
	}
	s = chooseStrategy(FlowAnalysis{Momentum: 0.5, Depth: 0.5, Energy: EnergyNeutral})
	if s.Name != "give-insight" {
		t.Errorf("expected default give-insight, got %s", s.Name)
	}
}

func TestAnalyzeFlow_InitiativeOnStall(t *testing.T) {
	base := time.Now()
	// Stalled: long gaps, terse trailing replies.
	window := []models.Message{
		msg(models.RoleUser, "tell me everything about saturn return and what it means for me", base),
		msg(models.RoleAssistant, "it is a long story, here is the short version of it all", base.Add(time.Minute)),
		msg(models.RoleUser, "ok", base.Add(40*time.Minute)),
	}
	a := AnalyzeFlow(window)
	if !a.TakeInitiative {
		t.Errorf("expected initiative on stalled momentum, analysis=%+v", a)
	}
}
