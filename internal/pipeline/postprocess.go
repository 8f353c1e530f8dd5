package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/mood"
	"github.com/astronow/astronow/internal/zodiac"
)

// substitution maps one assistant-ism to in-character alternatives.
type substitution struct {
	phrase       string
	alternatives []string
}

// roboticPhrases catches the stock assistant voice that slips past the
// persona prompt. Matching is case-insensitive; one alternative is chosen
// at random per occurrence.
var roboticPhrases = []substitution{
	{"as an ai language model", []string{"between you and me", "speaking as someone who reads charts for a living"}},
	{"as an ai", []string{"between you and me", "honestly"}},
	{"i'm sorry to hear that", []string{"ugh, that's a lot to carry", "that sounds heavy"}},
	{"i am sorry to hear that", []string{"ugh, that's a lot to carry", "that sounds heavy"}},
	{"how can i assist you", []string{"what's stirring for you", "where do we start"}},
	{"how may i assist you", []string{"what's stirring for you", "where do we start"}},
	{"i'm here to help", []string{"i'm here", "i've got you"}},
	{"is there anything else i can help with", []string{"what else is pulling at you", "anything else on your mind"}},
	{"i understand", []string{"i hear you", "yeah, that tracks"}},
	{"feel free to", []string{"you can always", "go ahead and"}},
	{"i apologize", []string{"my bad", "ah, sorry"}},
}

// substituteRoboticPhrases rewrites every occurrence of a table phrase,
// preserving the surrounding text.
func substituteRoboticPhrases(text string, rng mood.Rand) string {
	for _, sub := range roboticPhrases {
		text = replaceInsensitive(text, sub.phrase, func() string {
			return sub.alternatives[rng.IntN(len(sub.alternatives))]
		})
	}
	return text
}

func replaceInsensitive(text, phrase string, pick func() string) string {
	lower := strings.ToLower(text)
	phrase = strings.ToLower(phrase)
	var b strings.Builder
	for {
		i := strings.Index(lower, phrase)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		b.WriteString(pick())
		text = text[i+len(phrase):]
		lower = lower[i+len(phrase):]
	}
}

// fallbackReply produces a deterministic in-character sentence when the LLM
// fails or returns nothing. It references what the tracker detected so the
// reply still lands in context.
func fallbackReply(state models.ConversationState, user *models.User, now time.Time) string {
	for _, d := range state.Dates {
		if d.IsAmbiguous {
			return fmt.Sprintf("Quick check before I read anything into %s: is that day first or month first? The chart cares.", d.Original)
		}
	}

	switch state.CurrentTopic {
	case models.TopicHoroscopeRequest:
		if user != nil && user.Sign != "" {
			sign := zodiac.Sign(user.Sign)
			return fmt.Sprintf("The sky's a little noisy right now, but for %s today: %s.", user.Sign, zodiac.DailyTheme(sign, now))
		}
		return "I'd love to pull your chart. When's your birthday? Day, month, year."
	case models.TopicDiscussingDates:
		return "Noted. Dates like that always mean more than people admit. Tell me more."
	case models.TopicGreeting:
		return "Hey you. The stars were just talking about you. What's going on?"
	}

	switch state.LastIntent {
	case "seek_comfort":
		return "Come here. Whatever it is, you don't have to hold it alone tonight."
	case "ask_compatibility":
		return "Compatibility questions, my favorite kind of trouble. Give me both signs and I'll tell you what the sky thinks."
	}

	return "My connection to the cosmos flickered for a second there. Say that again?"
}
