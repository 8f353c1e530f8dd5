package tracker

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/astronow/astronow/internal/models"
)

var datePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)

// DetectDates scans text for slash-separated dates and infers day/month
// order. When the first number exceeds 12 it must be the day (DD/MM); when
// only the second exceeds 12 it must be the day (MM/DD). When both are ≤12
// the order is genuinely ambiguous: the mention defaults to MM/DD and is
// flagged so callers can ask for confirmation.
func DetectDates(text string) []models.DateMention {
	var mentions []models.DateMention
	for _, m := range datePattern.FindAllStringSubmatch(text, -1) {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])

		var mention models.DateMention
		mention.Original = m[0]
		mention.Year = year

		switch {
		case first > 12:
			mention.Format = models.DateFormatDMY
			mention.Day, mention.Month = first, second
		case second > 12:
			mention.Format = models.DateFormatMDY
			mention.Month, mention.Day = first, second
		default:
			mention.Format = models.DateFormatMDY
			mention.Month, mention.Day = first, second
			mention.IsAmbiguous = true
		}

		if mention.Month < 1 || mention.Month > 12 || mention.Day < 1 || mention.Day > 31 {
			continue
		}

		mention.Normalized = fmt.Sprintf("%04d-%02d-%02d", mention.Year, mention.Month, mention.Day)
		mentions = append(mentions, mention)
	}
	return mentions
}
