package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHours(t *testing.T) {
	cases := map[string]string{
		"2h":               "2",
		"1.5 hours":        "1.5",
		"90m":              "1.5",
		"1h 30m":           "1.5",
		"3":                "3",
		" 2 Hours ":        "2",
		"1 hr and 15 mins": "1.25",
		"20 minutes":       "0.3333",
		"1:30":             "1.5",
		"0:45":             "0.75",
		" 2:05 ":           "2.0833",
	}
	for in, want := range cases {
		got, err := ParseHours(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}
}

func TestParseHoursRejects(t *testing.T) {
	for _, in := range []string{"", "soon", "0h", "2 days", "1 2", "h", "0:00", "1:75", "1:3", ":30"} {
		_, err := ParseHours(in)
		assert.ErrorIs(t, err, ErrInvalidDuration, in)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2026-04-03", "04/03/2026", "April 3, 2026", "3 Apr 2026", "2026-04-03T15:04:05Z"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}
	_, err := ParseDate("someday")
	assert.Error(t, err)
}
