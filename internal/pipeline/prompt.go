package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/astronow/astronow/internal/dynamics"
	"github.com/astronow/astronow/internal/models"
	"github.com/astronow/astronow/internal/mood"
	"github.com/astronow/astronow/internal/zodiac"
)

const defaultPersona = `You are Astra, the voice of AstroNow: a warm, slightly mischievous astrologer who texts like a close friend. You read charts the way other people read the room. Keep replies short and conversational, one to three sentences unless the moment truly asks for more. Never mention being an AI, a bot, or a language model. Never produce disclaimers.`

// Context is everything the prompt builder folds into the system prompt for
// one turn.
type Context struct {
	Persona   string
	User      *models.User
	State     models.ConversationState
	Flow      dynamics.FlowAnalysis
	Mood      mood.Mood
	MoodAttrs mood.Attributes
	Energy    float64
	Knowledge string
	Summaries []models.Summary
	Now       time.Time
}

// BuildSystemPrompt renders the layered system prompt: persona, current
// mood, flow guidance, tracked state, user facts, and retrieved memory.
func BuildSystemPrompt(c Context) string {
	persona := c.Persona
	if persona == "" {
		persona = defaultPersona
	}
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Current mood: %s (energy %.1f, openness %.1f, depth %.1f). Let it color word choice and pacing, not content.\n",
		c.Mood, c.Energy, c.MoodAttrs.Openness, c.MoodAttrs.Depth)

	fmt.Fprintf(&b, "Conversation read: momentum %.1f, depth %.1f, user energy %s.\n",
		c.Flow.Momentum, c.Flow.Depth, c.Flow.Energy)
	if c.Flow.Pattern != nil {
		fmt.Fprintf(&b, "Pattern noticed: %s.\n", c.Flow.Pattern.Observation)
	}
	if c.Flow.Strategy.Action != "" {
		fmt.Fprintf(&b, "Approach for this reply: %s\n", c.Flow.Strategy.Action)
	}
	if c.Flow.TakeInitiative {
		b.WriteString("The conversation is stalling. Take initiative: offer a fresh observation or question instead of waiting.\n")
	}

	if c.State.CurrentTopic != "" {
		fmt.Fprintf(&b, "Topic right now: %s.\n", c.State.CurrentTopic)
	}
	if ack := c.State.LastAcknowledgment; ack.Type != models.AckNone && ack.Type != "" {
		fmt.Fprintf(&b, "Their last message reads as %s of what came before.\n", ack.Type)
	}
	if c.State.LastIntent != "" {
		fmt.Fprintf(&b, "Likely intent: %s.\n", c.State.LastIntent)
	}
	if len(c.State.PotentialNames) > 0 {
		fmt.Fprintf(&b, "Names mentioned recently: %s.\n", strings.Join(c.State.PotentialNames, ", "))
	}
	for _, d := range c.State.Dates {
		if d.IsAmbiguous {
			fmt.Fprintf(&b, "They mentioned the date %s, which could be day-first or month-first. Casually confirm which before reading anything into it.\n", d.Original)
		}
	}

	if c.User != nil {
		if c.User.FirstName != "" {
			fmt.Fprintf(&b, "You are talking to %s.\n", c.User.FirstName)
		}
		if c.User.Sign != "" {
			sign := zodiac.Sign(c.User.Sign)
			fmt.Fprintf(&b, "Their sign is %s (%s): %s. Today's current for them: %s.\n",
				c.User.Sign, zodiac.ElementOf(sign), strings.Join(zodiac.Traits(sign), ", "),
				zodiac.DailyTheme(sign, c.Now))
		} else if c.State.CurrentTopic == models.TopicHoroscopeRequest {
			b.WriteString("You do not know their sign yet. Ask for their birth date before giving a reading.\n")
		}
	}

	if len(c.Summaries) > 0 {
		b.WriteString("What you remember from earlier conversations:\n")
		for _, s := range c.Summaries {
			fmt.Fprintf(&b, "- %s\n", s.Text)
		}
	}
	if c.Knowledge != "" {
		fmt.Fprintf(&b, "Possibly relevant memory: %s\n", c.Knowledge)
	}

	return strings.TrimRight(b.String(), "\n")
}

func signForBirthDate(t time.Time) string {
	return string(zodiac.SignForDate(t))
}
