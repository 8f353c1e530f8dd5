// Package tracker classifies inbound messages and maintains per-chat
// conversation state.
//
// Classification is rule-table driven: each detector is an ordered list of
// predicate/result pairs evaluated top to bottom, first match wins. Keeping
// the priority order fixed is what makes the classifiers deterministic and
// independently testable.
package tracker

import (
	"strings"

	"github.com/astronow/astronow/internal/models"
)

// ackRule pairs a text predicate with the acknowledgment it implies.
// The value reported is the token or phrase that triggered the match.
type ackRule struct {
	kind       models.AcknowledgmentType
	confidence float64
	match      func(text string) (value string, ok bool)
}

var negationWords = []string{"no", "nope", "nah", "never", "not really", "wrong", "incorrect", "don't", "dont"}

var affirmationWords = []string{"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "right", "correct", "exactly", "absolutely", "definitely", "true", "of course"}

// relationshipNouns imply an affirmative answer to a "who is this about"
// style question ("my boyfriend" answers yes, and names the subject).
var relationshipNouns = []string{"boyfriend", "girlfriend", "husband", "wife", "partner", "fiance", "fiancee", "mom", "mother", "dad", "father", "sister", "brother", "friend", "crush", "ex"}

var continuationPhrases = []string{"and ", "also", "then ", "plus ", "what about", "another thing", "one more"}

var clarificationPhrases = []string{"what do you mean", "what does that mean", "huh", "how so", "in what way", "can you explain", "i don't understand", "i dont understand", "i'm confused", "im confused", "wait"}

// ackRules is evaluated in order; priority is part of the contract:
// negation before affirmation before relationship-implied affirmation
// before continuation before clarification.
var ackRules = []ackRule{
	{models.AckNegation, 0.9, matchWordList(negationWords)},
	{models.AckAffirmation, 0.9, matchWordList(affirmationWords)},
	{models.AckAffirmation, 0.8, matchContainsAny(relationshipNouns)},
	{models.AckContinuation, 0.8, matchPrefixAny(continuationPhrases)},
	{models.AckClarification, 0.85, matchContainsAny(clarificationPhrases)},
}

// DetectAcknowledgment classifies text as exactly one acknowledgment type.
// Unmatched text returns {none, 0}.
func DetectAcknowledgment(text string) models.Acknowledgment {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return models.Acknowledgment{Type: models.AckNone}
	}
	for _, rule := range ackRules {
		if value, ok := rule.match(normalized); ok {
			return models.Acknowledgment{Type: rule.kind, Value: value, Confidence: rule.confidence}
		}
	}
	return models.Acknowledgment{Type: models.AckNone}
}

// matchWordList matches when the text starts with one of the words as a
// standalone token ("yes", "yes!", "yeah that's right").
func matchWordList(words []string) func(string) (string, bool) {
	return func(text string) (string, bool) {
		for _, w := range words {
			if text == w || strings.HasPrefix(text, w+" ") || strings.HasPrefix(text, w+",") || strings.HasPrefix(text, w+"!") || strings.HasPrefix(text, w+".") {
				return w, true
			}
		}
		return "", false
	}
}

func matchContainsAny(phrases []string) func(string) (string, bool) {
	return func(text string) (string, bool) {
		for _, p := range phrases {
			if containsWord(text, p) {
				return p, true
			}
		}
		return "", false
	}
}

func matchPrefixAny(prefixes []string) func(string) (string, bool) {
	return func(text string) (string, bool) {
		for _, p := range prefixes {
			if strings.HasPrefix(text, p) {
				return strings.TrimSpace(p), true
			}
		}
		return "", false
	}
}

// containsWord reports whether phrase occurs in text on word boundaries.
func containsWord(text, phrase string) bool {
	idx := strings.Index(text, phrase)
	for idx >= 0 {
		beforeOK := idx == 0 || !isWordByte(text[idx-1])
		end := idx + len(phrase)
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(text[idx+1:], phrase)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '\''
}

// intentRule maps keyword evidence to a coarse intent label used only for
// prompt steering.
type intentRule struct {
	name       string
	confidence float64
	keywords   []string
}

var intentRules = []intentRule{
	{"get_horoscope", 0.85, []string{"horoscope", "reading", "predict", "forecast", "what do the stars"}},
	{"share_birthdate", 0.8, []string{"born", "birthday", "birth date", "my sign"}},
	{"seek_comfort", 0.75, []string{"sad", "lonely", "anxious", "worried", "scared", "stressed", "heartbroken"}},
	{"ask_compatibility", 0.8, []string{"compatible", "compatibility", "match", "soulmate"}},
}

// DetectIntent returns a coarse intent label and confidence, or ("", 0).
func DetectIntent(text string) (string, float64) {
	normalized := strings.ToLower(text)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, kw) {
				return rule.name, rule.confidence
			}
		}
	}
	return "", 0
}
