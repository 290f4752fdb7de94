package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	inUnitsRe     = regexp.MustCompile(`^in (\d+) (day|days|week|weeks|month|months)$`)
)

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// ParseRelativeDate resolves phrases like "tomorrow", "in 3 days" or
// "next friday" against now (UTC). ISO 8601 strings pass through. The
// second return is false when the phrase cannot be resolved.
func ParseRelativeDate(phrase string, now time.Time) (time.Time, bool) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return time.Time{}, false
	}

	if isoDatePrefix.MatchString(p) {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, p); err == nil {
				return t.UTC(), true
			}
		}
	}

	switch p {
	case "today", "tonight":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	case "next week", "1 week":
		return today.AddDate(0, 0, 7), true
	case "next month", "1 month":
		return today.AddDate(0, 0, 30), true
	}

	if m := inUnitsRe.FindStringSubmatch(p); m != nil {
		count, _ := strconv.Atoi(m[1])
		switch {
		case strings.HasPrefix(m[2], "day"):
			return today.AddDate(0, 0, count), true
		case strings.HasPrefix(m[2], "week"):
			return today.AddDate(0, 0, count*7), true
		default:
			return today.AddDate(0, 0, count*30), true
		}
	}

	for name, wd := range weekdayNames {
		if !strings.Contains(p, name) {
			continue
		}
		ahead := int(wd - now.Weekday())
		// Same day or earlier this week means the coming occurrence.
		if ahead <= 0 {
			ahead += 7
		}
		if strings.Contains(p, "next") && ahead <= 7 {
			ahead += 7
		}
		return today.AddDate(0, 0, ahead), true
	}

	if strings.HasPrefix(p, "by ") {
		return ParseRelativeDate(p[3:], now)
	}

	return time.Time{}, false
}
