package tracker

import (
	"regexp"
	"strings"

	"github.com/astronow/astronow/internal/models"
)

// Entities holds what was extracted from one message.
type Entities struct {
	Dates          []models.DateMention
	PotentialNames []string
}

var capitalizedRun = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

// sentence-initial words and common capitalized tokens that are not names.
var nameStopwords = map[string]bool{
	"i": true, "the": true, "a": true, "an": true, "my": true, "ok": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

// ExtractEntities merges date detections with a capitalized-word-sequence
// heuristic for proper-noun candidates. Runs that start a sentence count
// only when longer than one word, which filters ordinary sentence case.
func ExtractEntities(text string) Entities {
	e := Entities{Dates: DetectDates(text)}

	for _, loc := range capitalizedRun.FindAllStringIndex(text, -1) {
		run := text[loc[0]:loc[1]]
		words := strings.Fields(run)
		sentenceInitial := loc[0] == 0 || isSentenceBoundary(text, loc[0])
		if sentenceInitial && len(words) == 1 {
			continue
		}
		if len(words) == 1 && nameStopwords[strings.ToLower(words[0])] {
			continue
		}
		e.PotentialNames = append(e.PotentialNames, run)
	}
	return e
}

func isSentenceBoundary(text string, idx int) bool {
	for i := idx - 1; i >= 0; i-- {
		switch text[i] {
		case ' ', '\t':
			continue
		case '.', '!', '?', '\n':
			return true
		default:
			return false
		}
	}
	return true
}
