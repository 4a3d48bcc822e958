// Package dateparse turns relative and absolute date strings into the start
// of a day in the past, for filtering by submission time.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSince parses a date input and returns local midnight of that day.
// Uses the current time as the reference point.
//
// Supported formats:
//   - Exact dates: "2026-03-01"
//   - Relative days back: "7d" or "-7d"
//   - Relative weeks back: "2w"
//   - Relative months back: "1m"
//   - Day names: "monday", "tuesday", etc. (most recent occurrence, today included)
//   - Keywords: "today", "yesterday", "last-week", "last-month"
func ParseSince(input string) (time.Time, error) {
	return ParseSinceFrom(input, time.Now())
}

// ParseSinceFrom parses a date input relative to the given reference time.
func ParseSinceFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}

	if t, err := time.ParseInLocation("2006-01-02", input, now.Location()); err == nil {
		return t, nil
	}

	today := midnight(now)
	switch input {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "last-week":
		// Monday of the previous week
		sinceMonday := (int(now.Weekday()) - int(time.Monday) + 7) % 7
		return today.AddDate(0, 0, -sinceMonday-7), nil
	case "last-month":
		year, month, _ := now.Date()
		return time.Date(year, month-1, 1, 0, 0, 0, 0, now.Location()), nil
	}

	rel := strings.TrimPrefix(input, "-")
	if len(rel) >= 2 {
		suffix := rel[len(rel)-1]
		if n, err := strconv.Atoi(rel[:len(rel)-1]); err == nil && n >= 0 {
			switch suffix {
			case 'd':
				return today.AddDate(0, 0, -n), nil
			case 'w':
				return today.AddDate(0, 0, -n*7), nil
			case 'm':
				return today.AddDate(0, -n, 0), nil
			default:
				return time.Time{}, fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(suffix), input)
			}
		}
	}

	dayMap := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	if target, ok := dayMap[input]; ok {
		daysBack := (int(now.Weekday()) - int(target) + 7) % 7
		return today.AddDate(0, 0, -daysBack), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
}

func midnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
