package suggest

import (
	"reflect"
	"testing"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"guests", "guests", 0},
		{"guest", "guests", 1},
		{"kitten", "sitting", 3},
	}
	for _, tc := range tests {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSimilar(t *testing.T) {
	names := []string{"attending", "Guests", "email", "Dietary needs", "guests"}

	if got := Similar("guest", names); !reflect.DeepEqual(got, []string{"Guests", "guests"}) {
		t.Errorf("Similar(guest) = %v", got)
	}
	if got := Similar("atending", names); !reflect.DeepEqual(got, []string{"attending"}) {
		t.Errorf("Similar(atending) = %v", got)
	}
	if got := Similar("zzzzzzzzzz", names); got != nil {
		t.Errorf("Similar(zzz) = %v, want none", got)
	}
}

func TestHint(t *testing.T) {
	if got := Hint(nil); got != "" {
		t.Errorf("Hint(nil) = %q", got)
	}
	if got, want := Hint([]string{"a", "b"}), ` (did you mean "a" or "b"?)`; got != want {
		t.Errorf("Hint = %q, want %q", got, want)
	}
}
