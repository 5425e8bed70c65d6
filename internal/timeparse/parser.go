// Package timeparse turns free-text job durations and dates into values.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidDuration is returned for text that is not a positive duration.
var ErrInvalidDuration = errors.New("invalid duration")

var (
	durationToken = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-z]*)`)
	clockDuration = regexp.MustCompile(`^(\d+):([0-5]\d)$`)
	sixty         = decimal.NewFromInt(60)
)

// ParseHours reads durations such as "2h", "1.5 hours", "90m", "1h 30m",
// "1:30" or a bare "3" (hours) and returns the total in hours.
func ParseHours(text string) (decimal.Decimal, error) {
	input := strings.ToLower(strings.TrimSpace(text))
	if input == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}
	if m := clockDuration.FindStringSubmatch(input); m != nil {
		hours, _ := decimal.NewFromString(m[1])
		minutes, _ := decimal.NewFromString(m[2])
		total := hours.Add(minutes.Div(sixty))
		if !total.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: must be positive", ErrInvalidDuration)
		}
		return total.Round(4), nil
	}

	matches := durationToken.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}

	total := decimal.Zero
	last := 0
	for _, m := range matches {
		if gap := strings.TrimSpace(input[last:m[0]]); gap != "" && gap != "and" && gap != "," {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
		}
		last = m[1]

		value, err := decimal.NewFromString(input[m[2]:m[3]])
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
		}
		switch unit := input[m[4]:m[5]]; unit {
		case "", "h", "hr", "hrs", "hour", "hours":
			if unit == "" && len(matches) > 1 {
				return decimal.Zero, fmt.Errorf("%w: missing unit in %q", ErrInvalidDuration, text)
			}
			total = total.Add(value)
		case "m", "min", "mins", "minute", "minutes":
			total = total.Add(value.Div(sixty))
		default:
			return decimal.Zero, fmt.Errorf("%w: unknown unit %q", ErrInvalidDuration, unit)
		}
	}
	if strings.TrimSpace(input[last:]) != "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}
	if !total.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be positive", ErrInvalidDuration)
	}
	return total.Round(4), nil
}

var dateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ParseDate accepts ISO dates plus a few common human layouts and returns
// the UTC calendar day.
func ParseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, text); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
