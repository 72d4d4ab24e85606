package analyzer

import (
	"math"
	"testing"

	"trendradar/internal/config"
)

var defaultWeights = config.Weights{Rank: 0.4, Frequency: 0.3, Hotness: 0.3}

func TestWeightComposite(t *testing.T) {
	// ranks [1,1,2] over 3 crawls with threshold 3: rank score 29/3,
	// frequency score 30, hotness score 100.
	got := Weight([]int{1, 1, 2}, 3, 3, defaultWeights)
	if math.Abs(got-42.87) > 0.01 {
		t.Fatalf("Weight = %v, want 42.87 within 0.01", got)
	}
}

func TestWeightEmptyRanks(t *testing.T) {
	if got := Weight(nil, 5, 3, defaultWeights); got != 0 {
		t.Fatalf("Weight with no ranks = %v, want 0", got)
	}
}

func TestWeightCapsRankAndCount(t *testing.T) {
	// Rank 15 is capped to 10 and count 99 to 10, and a rank beyond the
	// threshold contributes no hotness.
	got := Weight([]int{15}, 99, 3, defaultWeights)
	if math.Abs(got-30.4) > 1e-9 {
		t.Fatalf("Weight = %v, want 30.4", got)
	}
}

func TestWeightCountFallsBackToRankLength(t *testing.T) {
	// count 0 behaves like count 2: rank score 9.5, frequency score 20,
	// hotness score 100.
	got := Weight([]int{1, 2}, 0, 3, defaultWeights)
	if math.Abs(got-39.8) > 1e-9 {
		t.Fatalf("Weight = %v, want 39.8", got)
	}
}

func TestFormatTimeDisplay(t *testing.T) {
	tests := []struct {
		first, last string
		want        string
	}{
		{"", "", ""},
		{"", "10-30", ""},
		{"10-30", "", "10:30"},
		{"10-30", "10-30", "10:30"},
		{"09-00", "10-30", "[09:00 ~ 10:30]"},
	}
	for _, tt := range tests {
		if got := FormatTimeDisplay(tt.first, tt.last); got != tt.want {
			t.Errorf("FormatTimeDisplay(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}
