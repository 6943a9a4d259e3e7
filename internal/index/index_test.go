package index

import (
	"testing"
	"unicode/utf8"
)

func TestRelevance(t *testing.T) {
	tests := []struct {
		name     string
		distance float32
		want     float64
	}{
		{"zero distance is full relevance", 0, 1},
		{"half distance", 0.5, 0.5},
		{"unit distance", 1, 0},
		{"beyond unit clamps to zero", 1.7, 0},
		{"negative distance clamps to one", -0.2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Relevance(tt.distance)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("Relevance(%f) = %f, want %f", tt.distance, got, tt.want)
			}
		})
	}
}

func TestTruncateOnRune(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"shorter than limit", "pump", 10, "pump"},
		{"exact limit", "pump", 4, "pump"},
		{"ascii cut", "pump manual", 4, "pump"},
		{"two-byte rune at cut", "abécd", 3, "ab"},
		{"three-byte rune at cut", "a€b", 2, "a"},
		{"cut after full rune", "abécd", 4, "abé"},
		{"zero limit", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateOnRune(tt.s, tt.n)
			if got != tt.want {
				t.Errorf("TruncateOnRune(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("TruncateOnRune(%q, %d) produced invalid UTF-8", tt.s, tt.n)
			}
		})
	}
}
