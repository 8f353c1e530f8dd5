// Package zodiac holds the astrology tables: sign date ranges, elements,
// and the trait vocabulary horoscope text draws from.
package zodiac

import (
	"strings"
	"time"
)

// Sign is one of the twelve zodiac signs.
type Sign string

const (
	Aries       Sign = "aries"
	Taurus      Sign = "taurus"
	Gemini      Sign = "gemini"
	Cancer      Sign = "cancer"
	Leo         Sign = "leo"
	Virgo       Sign = "virgo"
	Libra       Sign = "libra"
	Scorpio     Sign = "scorpio"
	Sagittarius Sign = "sagittarius"
	Capricorn   Sign = "capricorn"
	Aquarius    Sign = "aquarius"
	Pisces      Sign = "pisces"
)

// Element groups signs by classical element.
type Element string

const (
	Fire  Element = "fire"
	Earth Element = "earth"
	Air   Element = "air"
	Water Element = "water"
)

type signInfo struct {
	sign       Sign
	element    Element
	startMonth time.Month
	startDay   int
	traits     []string
}

// Ordered by start date within the year. Capricorn sits last so a backwards
// walk finds it for late December, and the January wrap falls through to it.
var signTable = []signInfo{
	{Aquarius, Air, time.January, 20, []string{"independent", "inventive", "a little contrarian"}},
	{Pisces, Water, time.February, 19, []string{"dreamy", "empathetic", "tuned to undercurrents"}},
	{Aries, Fire, time.March, 21, []string{"bold", "restless", "first through the door"}},
	{Taurus, Earth, time.April, 20, []string{"steady", "sensual", "stubborn in the best way"}},
	{Gemini, Air, time.May, 21, []string{"curious", "quick", "fluent in two moods at once"}},
	{Cancer, Water, time.June, 21, []string{"protective", "intuitive", "deeply rooted"}},
	{Leo, Fire, time.July, 23, []string{"warm", "theatrical", "generous with light"}},
	{Virgo, Earth, time.August, 23, []string{"precise", "observant", "quietly devoted"}},
	{Libra, Air, time.September, 23, []string{"balanced", "charming", "allergic to ugly choices"}},
	{Scorpio, Water, time.October, 23, []string{"intense", "loyal", "comfortable in the deep end"}},
	{Sagittarius, Fire, time.November, 22, []string{"frank", "wandering", "hungry for horizons"}},
	{Capricorn, Earth, time.December, 22, []string{"disciplined", "patient", "quietly ambitious"}},
}

// SignForDate maps a birth date to its zodiac sign.
func SignForDate(t time.Time) Sign {
	m, d := t.Month(), t.Day()
	// Walk backwards: the newest range whose start is <= the date wins.
	for i := len(signTable) - 1; i >= 0; i-- {
		s := signTable[i]
		if m > s.startMonth || (m == s.startMonth && d >= s.startDay) {
			return s.sign
		}
	}
	// Before Jan 20 falls into the Capricorn range that wraps the year.
	return Capricorn
}

// ParseSign normalizes user input to a Sign, reporting whether it matched.
func ParseSign(s string) (Sign, bool) {
	normalized := Sign(strings.ToLower(strings.TrimSpace(s)))
	for _, info := range signTable {
		if info.sign == normalized {
			return normalized, true
		}
	}
	return "", false
}

// ElementOf returns the sign's classical element.
func ElementOf(sign Sign) Element {
	for _, info := range signTable {
		if info.sign == sign {
			return info.element
		}
	}
	return ""
}

// Traits returns the sign's trait vocabulary.
func Traits(sign Sign) []string {
	for _, info := range signTable {
		if info.sign == sign {
			out := make([]string, len(info.traits))
			copy(out, info.traits)
			return out
		}
	}
	return nil
}

// AllSigns lists every sign in date order starting from Capricorn.
func AllSigns() []Sign {
	out := make([]Sign, len(signTable))
	for i, info := range signTable {
		out[i] = info.sign
	}
	return out
}

var dailyThemes = []string{
	"an overdue conversation finally finds its moment",
	"something you rehearsed goes off script, and that is the point",
	"a small act of patience pays out twice",
	"the thing you keep postponing gets lighter once touched",
	"someone notices exactly the detail you thought was invisible",
	"an old plan resurfaces wearing new clothes",
	"energy spent on others comes back from an unexpected direction",
	"a boundary you hold today becomes a gift tomorrow",
}

// DailyTheme picks the day's theme for a sign. Deterministic per sign and
// date so repeated asks within a day agree with each other.
func DailyTheme(sign Sign, date time.Time) string {
	seed := date.YearDay() + date.Year()
	for _, r := range sign {
		seed += int(r)
	}
	return dailyThemes[seed%len(dailyThemes)]
}
