package mood

import (
	"testing"
	"time"

	"github.com/astronow/astronow/internal/dynamics"
	"github.com/astronow/astronow/internal/store"
)

// scriptedRand replays a fixed sequence of Float64 values, then repeats the
// last one. IntN always returns 0.
type scriptedRand struct {
	values []float64
	i      int
}

func (r *scriptedRand) Float64() float64 {
	if len(r.values) == 0 {
		return 0.99
	}
	v := r.values[r.i]
	if r.i < len(r.values)-1 {
		r.i++
	}
	return v
}

func (r *scriptedRand) IntN(n int) int { return 0 }

func TestDetermineMoodEarlyConversation(t *testing.T) {
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.99}}))
	e.current = Grounded

	got := e.DetermineMood(TransitionInput{MessageCount: 3, Now: time.Now()})
	if got != Curious {
		t.Errorf("expected curious for early conversation, got %s", got)
	}
}

func TestDetermineMoodSustainedDepth(t *testing.T) {
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.99}}))

	got := e.DetermineMood(TransitionInput{MessageCount: 12, Depth: 0.8, Now: time.Now()})
	if got != Contemplative {
		t.Errorf("expected contemplative for sustained depth, got %s", got)
	}
}

func TestDetermineMoodHysteresis(t *testing.T) {
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.99}}))
	now := time.Now()

	if got := e.DetermineMood(TransitionInput{MessageCount: 12, Depth: 0.8, Now: now}); got != Contemplative {
		t.Fatalf("expected contemplative after first shift, got %s", got)
	}

	// A rule that would otherwise fire stays suppressed inside the window.
	got := e.DetermineMood(TransitionInput{MessageCount: 3, Now: now.Add(30 * time.Minute)})
	if got != Contemplative {
		t.Errorf("expected mood to hold within hysteresis window, got %s", got)
	}

	// After the window elapses the same input shifts.
	got = e.DetermineMood(TransitionInput{MessageCount: 3, Now: now.Add(MinShiftInterval + time.Minute)})
	if got != Curious {
		t.Errorf("expected curious after hysteresis window, got %s", got)
	}
}

func TestDetermineMoodPlayfulMirror(t *testing.T) {
	// First draw 0.2 < 0.4 fires the mirror rule.
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.2}}))

	got := e.DetermineMood(TransitionInput{MessageCount: 20, UserEnergy: dynamics.EnergyHigh, Now: time.Now()})
	if got != Playful {
		t.Errorf("expected playful when mirroring high energy, got %s", got)
	}

	e2 := NewEngine(WithRand(&scriptedRand{values: []float64{0.9}}))
	got = e2.DetermineMood(TransitionInput{MessageCount: 20, UserEnergy: dynamics.EnergyHigh, Now: time.Now()})
	if got == Playful {
		t.Error("expected mirror rule not to fire on a high draw")
	}
}

func TestDetermineMoodLowEnergyScattered(t *testing.T) {
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.99}}))
	e.energyLevel = 0.25

	got := e.DetermineMood(TransitionInput{MessageCount: 30, Depth: 0.7, Now: time.Now()})
	if got != Scattered {
		t.Errorf("expected scattered under low energy and high depth, got %s", got)
	}
}

func TestEnergyClampInvariant(t *testing.T) {
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.99}}))

	for i := 0; i < 40; i++ {
		e.ProcessEnergyDrain(ActivitySummarization)
	}
	if got := e.EnergyLevel(); got != EnergyFloor {
		t.Errorf("expected energy floor %.2f after repeated drain, got %.2f", EnergyFloor, got)
	}

	for i := 0; i < 100; i++ {
		e.Recharge()
	}
	if got := e.EnergyLevel(); got != EnergyCeil {
		t.Errorf("expected energy ceiling %.2f after repeated recharge, got %.2f", EnergyCeil, got)
	}
}

func TestIntenseSafetyValve(t *testing.T) {
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.99}}))
	e.current = Intense
	e.energyLevel = 0.22

	e.ProcessEnergyDrain(ActivityDeepExchange)
	if got := e.Current(); got != Scattered {
		t.Errorf("expected scattered after critical drain while intense, got %s", got)
	}
}

func TestShiftHistoryRecorded(t *testing.T) {
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.99}}))

	e.DetermineMood(TransitionInput{MessageCount: 12, Depth: 0.8, Now: time.Now()})
	hist := e.History()
	if len(hist) != 1 {
		t.Fatalf("expected 1 recorded shift, got %d", len(hist))
	}
	if hist[0].From != Curious || hist[0].To != Contemplative {
		t.Errorf("expected shift curious->contemplative, got %s->%s", hist[0].From, hist[0].To)
	}
	if hist[0].Reason == "" {
		t.Error("expected shift reason to be recorded")
	}
}

func TestSnapshotRestore(t *testing.T) {
	st := store.NewInMemoryStore()
	e := NewEngine(WithStore(st), WithRand(&scriptedRand{values: []float64{0.99}}))

	e.DetermineMood(TransitionInput{MessageCount: 12, Depth: 0.8, Now: time.Now()})

	restored := NewEngine(WithStore(st))
	if got := restored.Current(); got != Contemplative {
		t.Errorf("expected restored mood contemplative, got %s", got)
	}
	if got := restored.EnergyLevel(); got != e.EnergyLevel() {
		t.Errorf("expected restored energy %.2f, got %.2f", e.EnergyLevel(), got)
	}
}

func TestApplyQuirksDeterministic(t *testing.T) {
	// Draws above every probability leave the text untouched.
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.99}}))
	in := "The stars have opinions today."
	if got := e.ApplyQuirks(in); got != in {
		t.Errorf("expected text unchanged on high draws, got %q", got)
	}

	// Draws below every probability fire all curious quirks in order.
	e2 := NewEngine(WithRand(&scriptedRand{values: []float64{0.01}}))
	got := e2.ApplyQuirks(in)
	want := "Hmm. The stars have opinions today?"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestApplyQuirksEmpty(t *testing.T) {
	e := NewEngine(WithRand(&scriptedRand{values: []float64{0.01}}))
	if got := e.ApplyQuirks(""); got != "" {
		t.Errorf("expected empty text passthrough, got %q", got)
	}
}
