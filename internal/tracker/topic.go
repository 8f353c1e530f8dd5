package tracker

import (
	"strings"

	"github.com/astronow/astronow/internal/models"
)

var horoscopeTerms = []string{"horoscope", "zodiac", "astrology", "astrological", "sign", "stars", "reading", "retrograde", "mercury", "moon phase", "birth chart"}

var dateTerms = []string{"birthday", "born", "birth date", "date of birth"}

var greetingTerms = []string{"hi", "hello", "hey", "good morning", "good evening", "good afternoon", "howdy", "yo"}

// DetectTopic infers the topic label for a message. Priority: horoscope
// terms, then date mentions or date keywords, then greetings. A bare
// acknowledgment carries the previous topic forward; everything else is
// general chat.
func DetectTopic(text string, previous *models.ConversationState) models.Topic {
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, term := range horoscopeTerms {
		if containsWord(normalized, term) {
			return models.TopicHoroscopeRequest
		}
	}

	if len(DetectDates(text)) > 0 {
		return models.TopicDiscussingDates
	}
	for _, term := range dateTerms {
		if containsWord(normalized, term) {
			return models.TopicDiscussingDates
		}
	}

	for _, term := range greetingTerms {
		if normalized == term || strings.HasPrefix(normalized, term+" ") || strings.HasPrefix(normalized, term+"!") || strings.HasPrefix(normalized, term+",") {
			return models.TopicGreeting
		}
	}

	// A bare acknowledgment keeps the conversation on its current subject.
	if previous != nil && previous.CurrentTopic != "" {
		if ack := DetectAcknowledgment(text); ack.Type != models.AckNone && len(strings.Fields(normalized)) <= 4 {
			return previous.CurrentTopic
		}
	}

	return models.TopicGeneralChat
}
