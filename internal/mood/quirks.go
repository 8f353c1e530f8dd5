package mood

import "strings"

// quirk is a small meaning-preserving text transform tied to a mood.
type quirk struct {
	probability float64
	apply       func(string) string
}

// moodQuirks maps each mood to its transforms. Probabilities stay in
// [0.1, 0.4] so quirks color replies without dominating them.
var moodQuirks = map[Mood][]quirk{
	Curious: {
		{0.3, func(s string) string { return "Hmm. " + s }},
		{0.2, replaceFinalPeriod("?")},
	},
	Contemplative: {
		{0.4, replaceFinalPeriod("...")},
		{0.15, func(s string) string { return s + " Something to sit with." }},
	},
	Playful: {
		{0.3, func(s string) string { return s + " ✨" }},
		{0.2, func(s string) string { return strings.Replace(s, ".", "!", 1) }},
	},
	Intense: {
		{0.25, func(s string) string { return strings.TrimSuffix(s, ".") + "." }},
		{0.2, func(s string) string { return "Listen. " + s }},
	},
	Scattered: {
		{0.3, lowercaseFirst},
		{0.25, func(s string) string { return s + " ...where was I." }},
	},
	Grounded: {
		{0.1, func(s string) string { return "Honestly? " + s }},
	},
}

// ApplyQuirks runs the current mood's transforms over text, each firing
// independently at its own probability. Empty input passes through.
func (e *Engine) ApplyQuirks(text string) string {
	if text == "" {
		return text
	}
	e.mu.Lock()
	quirks := moodQuirks[e.current]
	rng := e.rng
	e.mu.Unlock()

	for _, q := range quirks {
		if rng.Float64() < q.probability {
			text = q.apply(text)
		}
	}
	return text
}

func replaceFinalPeriod(with string) func(string) string {
	return func(s string) string {
		trimmed := strings.TrimRight(s, " ")
		if strings.HasSuffix(trimmed, ".") && !strings.HasSuffix(trimmed, "...") {
			return strings.TrimSuffix(trimmed, ".") + with
		}
		return s
	}
}

func lowercaseFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = []rune(strings.ToLower(string(r[0])))[0]
	return string(r)
}
