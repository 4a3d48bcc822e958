package dateparse

import (
	"strings"
	"testing"
	"time"
)

// Wednesday afternoon
var ref = time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-03-01", day(2026, 3, 1)},
		{"today", day(2026, 3, 11)},
		{"Yesterday", day(2026, 3, 10)},
		{"  today  ", day(2026, 3, 11)},
		{"7d", day(2026, 3, 4)},
		{"-7d", day(2026, 3, 4)},
		{"0d", day(2026, 3, 11)},
		{"2w", day(2026, 2, 25)},
		{"1m", day(2026, 2, 11)},
		{"wednesday", day(2026, 3, 11)},
		{"monday", day(2026, 3, 9)},
		{"THURSDAY", day(2026, 3, 5)},
		{"last-week", day(2026, 3, 2)},
		{"last-month", day(2026, 2, 1)},
	}
	for _, tc := range tests {
		got, err := ParseSinceFrom(tc.input, ref)
		if err != nil {
			t.Errorf("ParseSinceFrom(%q): %v", tc.input, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseSinceFrom(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseSinceLastMonthFromJanuary(t *testing.T) {
	got, err := ParseSinceFrom("last-month", time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if want := day(2025, 12, 1); !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestParseSinceLastWeekOnMonday(t *testing.T) {
	got, err := ParseSinceFrom("last-week", time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if want := day(2026, 3, 2); !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestParseSinceErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "empty"},
		{"   ", "empty"},
		{"7y", "unknown relative unit"},
		{"someday", "unrecognized"},
		{"2026-13-01", "unrecognized"},
	}
	for _, tc := range tests {
		_, err := ParseSinceFrom(tc.input, ref)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("ParseSinceFrom(%q) err = %v, want %q", tc.input, err, tc.want)
		}
	}
}
