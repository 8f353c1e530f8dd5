// Package dynamics scores recent conversation history into scalar features
// and a discrete strategy recommendation.
//
// Everything here is pure: AnalyzeFlow reads a bounded window of messages and
// returns a FlowAnalysis; nothing is persisted. The features only steer
// prompt construction and optional proactive moves, never block a reply.
package dynamics

import (
	"regexp"
	"strings"
	"time"

	"github.com/astronow/astronow/internal/models"
)

// MaxWindow caps how many trailing messages AnalyzeFlow considers.
const MaxWindow = 20

// EnergyLevel is a coarse read of conversational energy.
type EnergyLevel string

const (
	EnergyLow     EnergyLevel = "low"
	EnergyNeutral EnergyLevel = "neutral"
	EnergyHigh    EnergyLevel = "high"
)

// Pattern describes a recurring behavior observed in the window.
type Pattern struct {
	Type        string  `json:"type"`
	Strength    float64 `json:"strength"`
	Observation string  `json:"observation"`
}

// Strategy is the recommended conversational posture.
type Strategy struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

// FlowAnalysis is the ephemeral per-turn feature set. All scalar fields are
// clamped to [0, 1].
type FlowAnalysis struct {
	Momentum       float64     `json:"momentum"`
	Depth          float64     `json:"depth"`
	UserDominance  float64     `json:"user_dominance"`
	Energy         EnergyLevel `json:"energy"`
	Pattern        *Pattern    `json:"pattern,omitempty"`
	Strategy       Strategy    `json:"strategy"`
	TakeInitiative bool        `json:"take_initiative"`
}

var (
	emotionalMarkers     = regexp.MustCompile(`(?i)\b(feel|feeling|felt|love|hate|afraid|scared|happy|sad|angry|hurt|miss|lonely|anxious)\b`)
	philosophicalMarkers = regexp.MustCompile(`(?i)\b(meaning|purpose|why do|wonder|universe|believe|soul|destiny|fate|truth)\b`)
	vulnerabilityMarkers = regexp.MustCompile(`(?i)\b(never told|honestly|to be honest|i admit|embarrassed|ashamed|secretly|struggling|can'?t stop)\b`)

	excitementWords = regexp.MustCompile(`(?i)\b(amazing|awesome|excited|wow|omg|yay|incredible|love it|can'?t wait)\b`)
	tirednessWords  = regexp.MustCompile(`(?i)\b(tired|exhausted|sleepy|drained|worn out|meh)\b`)
	multiShout      = regexp.MustCompile(`!!+|\?\?+|\b[A-Z]{3,}\b`)

	ventingWords  = regexp.MustCompile(`(?i)\b(frustrated|annoyed|unfair|furious|sick of|fed up|ugh|can'?t believe)\b`)
	seekingWords  = regexp.MustCompile(`(?i)(should i|what do you think|any advice|help me|what would you|i don'?t know what)`)
	avoidingWords = regexp.MustCompile(`(?i)\b(anyway|whatever|nevermind|never mind|forget it|don'?t want to talk)\b`)
	storyConnects = regexp.MustCompile(`(?i)\b(and then|so then|after that|long story)\b`)
)

// AnalyzeFlow computes the feature set for a window of recent messages,
// oldest first. Windows larger than MaxWindow are truncated to the tail.
func AnalyzeFlow(window []models.Message) FlowAnalysis {
	if len(window) > MaxWindow {
		window = window[len(window)-MaxWindow:]
	}

	analysis := FlowAnalysis{
		Momentum:      momentum(window),
		Depth:         depth(window),
		UserDominance: userDominance(window),
		Energy:        energy(window),
		Pattern:       detectPattern(window),
	}
	analysis.Strategy = chooseStrategy(analysis)
	analysis.TakeInitiative = analysis.Momentum < 0.3 ||
		(analysis.Pattern != nil && analysis.Pattern.Type == "avoiding")
	return analysis
}

// momentum starts at 0.5 and moves with reply speed, message length, and
// whether the last message asks a question.
func momentum(window []models.Message) float64 {
	score := 0.5
	if len(window) == 0 {
		return score
	}
	last := window[len(window)-1]

	if len(window) >= 3 {
		var totalGap time.Duration
		gaps := 0
		for i := 1; i < len(window); i++ {
			totalGap += window[i].Time.Sub(window[i-1].Time)
			gaps++
		}
		avgGap := totalGap / time.Duration(gaps)
		lastGap := last.Time.Sub(window[len(window)-2].Time)
		if avgGap > 0 {
			ratio := float64(lastGap) / float64(avgGap)
			if ratio < 0.7 {
				score += 0.2
			} else if ratio > 1.5 {
				score -= 0.2
			}
		}
	}

	var totalLen int
	for _, m := range window {
		totalLen += len(m.Text)
	}
	avgLen := float64(totalLen) / float64(len(window))
	if avgLen > 0 {
		ratio := float64(len(last.Text)) / avgLen
		if ratio > 1.2 {
			score += 0.15
		} else if ratio < 0.5 {
			score -= 0.15
		}
	}

	if strings.Contains(last.Text, "?") {
		score += 0.1
	}
	return clamp01(score)
}

// messageDepth scores one message for emotional, philosophical, and
// vulnerability markers plus length bonuses.
func messageDepth(m models.Message) float64 {
	score := 0.0
	score += 0.15 * float64(len(emotionalMarkers.FindAllString(m.Text, -1)))
	score += 0.1 * float64(len(philosophicalMarkers.FindAllString(m.Text, -1)))
	score += 0.25 * float64(len(vulnerabilityMarkers.FindAllString(m.Text, -1)))
	if len(m.Text) > 100 {
		score += 0.05
	}
	if len(m.Text) > 200 {
		score += 0.1
	}
	return score
}

func depth(window []models.Message) float64 {
	if len(window) == 0 {
		return 0
	}
	var total float64
	for _, m := range window {
		total += messageDepth(m)
	}
	score := total / float64(len(window))

	// Boost when depth is increasing: the trailing 3 messages score higher
	// than the window as a whole.
	if len(window) > 3 {
		var recent float64
		tail := window[len(window)-3:]
		for _, m := range tail {
			recent += messageDepth(m)
		}
		if recent/3 > score {
			score += 0.2
		}
	}
	return clamp01(score)
}

// userDominance is the user share of word count over the trailing 6 messages.
func userDominance(window []models.Message) float64 {
	if len(window) > 6 {
		window = window[len(window)-6:]
	}
	var userWords, totalWords int
	for _, m := range window {
		n := m.WordCount()
		totalWords += n
		if m.Role == models.RoleUser {
			userWords += n
		}
	}
	if totalWords == 0 {
		return 0.5
	}
	return clamp01(float64(userWords) / float64(totalWords))
}

// energy nets high and low markers over the trailing 3 messages.
func energy(window []models.Message) EnergyLevel {
	if len(window) > 3 {
		window = window[len(window)-3:]
	}
	score := 0
	for _, m := range window {
		if strings.Contains(m.Text, "!") || excitementWords.MatchString(m.Text) || multiShout.MatchString(m.Text) {
			score++
		}
		if tirednessWords.MatchString(m.Text) || len(strings.TrimSpace(m.Text)) < 10 {
			score--
		}
	}
	switch {
	case score > 2:
		return EnergyHigh
	case score < -2:
		return EnergyLow
	default:
		return EnergyNeutral
	}
}

var patternObservations = map[string]string{
	"questioning":  "asking a lot of questions lately",
	"storytelling": "in the middle of telling a longer story",
	"venting":      "letting off steam about something",
	"seeking":      "looking for guidance on a decision",
	"avoiding":     "keeping replies short and steering away",
}

// detectPattern tallies behavior counters over the trailing 5 messages.
// A message may increment several counters; the top counter wins when it
// reaches 2 or more.
func detectPattern(window []models.Message) *Pattern {
	if len(window) > 5 {
		window = window[len(window)-5:]
	}
	counts := map[string]int{}
	for _, m := range window {
		if m.Role != models.RoleUser {
			continue
		}
		if strings.Contains(m.Text, "?") {
			counts["questioning"]++
		}
		if len(m.Text) > 150 || storyConnects.MatchString(m.Text) {
			counts["storytelling"]++
		}
		if ventingWords.MatchString(m.Text) {
			counts["venting"]++
		}
		if seekingWords.MatchString(m.Text) {
			counts["seeking"]++
		}
		if len(strings.TrimSpace(m.Text)) < 15 || avoidingWords.MatchString(m.Text) {
			counts["avoiding"]++
		}
	}

	best, bestCount := "", 0
	for _, kind := range []string{"questioning", "storytelling", "venting", "seeking", "avoiding"} {
		if counts[kind] > bestCount {
			best, bestCount = kind, counts[kind]
		}
	}
	if bestCount < 2 {
		return nil
	}
	return &Pattern{
		Type:        best,
		Strength:    float64(bestCount) / 5,
		Observation: patternObservations[best],
	}
}

// chooseStrategy consults a fixed decision table in order; first match wins.
func chooseStrategy(a FlowAnalysis) Strategy {
	switch {
	case a.Momentum < 0.3:
		return Strategy{Name: "pivot", Action: "change the subject toward something alive"}
	case a.Depth > 0.7:
		return Strategy{Name: "honor-depth", Action: "stay with the depth, no topic changes"}
	case a.UserDominance > 0.75:
		return Strategy{Name: "take-space", Action: "offer a longer reflection of your own"}
	case a.Pattern != nil && a.Pattern.Type == "venting":
		return Strategy{Name: "hold-space", Action: "validate without fixing"}
	case a.Pattern != nil && a.Pattern.Type == "seeking":
		return Strategy{Name: "guide-gently", Action: "offer one concrete perspective"}
	case a.Energy == EnergyHigh:
		return Strategy{Name: "match-energy", Action: "mirror the excitement"}
	case a.Energy == EnergyLow:
		return Strategy{Name: "gentle-lift", Action: "keep it soft and undemanding"}
	default:
		return Strategy{Name: "give-insight", Action: "share one observation worth reacting to"}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
