package intent_test

import (
	"testing"

	"github.com/voxlift/voxlift/internal/intent"
)

func TestCatalogue_ExactAndSynonym(t *testing.T) {
	t.Parallel()

	cat := intent.DefaultCatalogue()

	tests := []struct {
		phrase string
		want   string
	}{
		{"bench press", "Bench Press"},
		{"Bench Press", "Bench Press"},
		{"bench", "Bench Press"},
		{"squat", "Back Squat"},
		{"rdl", "Romanian Deadlift"},
		{"ohp", "Overhead Press"},
		{"db curl", "Dumbbell Curl"},
		{"pull-ups", "Pull Up"},
	}
	for _, tt := range tests {
		m, ok := cat.Resolve(tt.phrase)
		if !ok {
			t.Errorf("Resolve(%q) found nothing", tt.phrase)
			continue
		}
		if m.Exercise.Name != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.phrase, m.Exercise.Name, tt.want)
		}
	}
}

func TestCatalogue_FuzzyMisrecognitions(t *testing.T) {
	t.Parallel()

	cat := intent.DefaultCatalogue()

	tests := []struct {
		phrase string
		want   string
	}{
		{"benchpress", "Bench Press"},
		{"deadlft", "Deadlift"},
		{"romanian dead lift", "Romanian Deadlift"},
		{"squats", "Back Squat"},
	}
	for _, tt := range tests {
		m, ok := cat.Resolve(tt.phrase)
		if !ok {
			t.Errorf("Resolve(%q) found nothing", tt.phrase)
			continue
		}
		if m.Exercise.Name != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.phrase, m.Exercise.Name, tt.want)
		}
		if m.Score >= 1 {
			t.Errorf("Resolve(%q) score = %v, want < 1 for a fuzzy match", tt.phrase, m.Score)
		}
	}
}

func TestCatalogue_NoMatchForNoise(t *testing.T) {
	t.Parallel()

	cat := intent.DefaultCatalogue()
	for _, phrase := range []string{"", "xyz qwerty", "the weather tomorrow"} {
		if m, ok := cat.Resolve(phrase); ok {
			t.Errorf("Resolve(%q) = %q, want no match", phrase, m.Exercise.Name)
		}
	}
}

func TestCatalogue_AmbiguousTokenRanksAll(t *testing.T) {
	t.Parallel()

	cat := intent.DefaultCatalogue()
	matches := cat.ResolveAll("press")
	if len(matches) < 2 {
		t.Fatalf("ResolveAll(press) = %d matches, want several", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("matches not sorted by score: %v", matches)
		}
	}
}

func TestCatalogue_CustomThresholds(t *testing.T) {
	t.Parallel()

	cat := intent.NewCatalogue(
		[]intent.Exercise{{ID: "deadlift", Name: "Deadlift"}},
		intent.WithFuzzyThreshold(0.99),
		intent.WithPhoneticThreshold(0.99),
	)
	if _, ok := cat.Resolve("deadlft"); ok {
		t.Error("fuzzy match should be rejected under a 0.99 threshold")
	}
	if m, ok := cat.Resolve("deadlift"); !ok || m.Score != 1 {
		t.Errorf("exact match should survive any threshold, got %v %v", m, ok)
	}
}
