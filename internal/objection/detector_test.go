package objection

import (
	"testing"

	"github.com/nmoralez/rudder/internal/flow"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(flow.Default().Objections)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	return d
}

func TestDetectPatternTier(t *testing.T) {
	d := newTestDetector(t)

	tests := []struct {
		name         string
		message      string
		expectedType string
	}{
		{"canonical price objection", "this is too expensive for me", "price"},
		{"price with contraction", "I can't afford that right now", "price"},
		{"trust objection", "honestly this looks like a scam", "trust"},
		{"timing objection", "maybe later, I'm swamped", "timing"},
		{"need objection", "we already have one of those", "need"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Detect(tt.message)
			if !res.IsObjection {
				t.Fatalf("Detect(%q).IsObjection = false, want true", tt.message)
			}
			if res.TierUsed != TierPattern {
				t.Errorf("TierUsed = %d, want %d (pattern tier must short-circuit)", res.TierUsed, TierPattern)
			}
			if res.PrimaryType != tt.expectedType {
				t.Errorf("PrimaryType = %q, want %q", res.PrimaryType, tt.expectedType)
			}
		})
	}
}

func TestDetectSemanticTierFallback(t *testing.T) {
	d := newTestDetector(t)

	// Misspelled variant: no tier-one pattern matches, but the phrase is close
	// to the canonical "i cannot afford it".
	res := d.Detect("i canot aford it")
	if res.TierUsed != TierSemantic {
		t.Fatalf("TierUsed = %d, want %d", res.TierUsed, TierSemantic)
	}
	if !res.IsObjection {
		t.Fatalf("IsObjection = false, want true (confidence %.2f)", res.Confidence)
	}
	if res.PrimaryType != "price" {
		t.Errorf("PrimaryType = %q, want %q", res.PrimaryType, "price")
	}
	if res.Confidence < DefaultSimilarityThreshold {
		t.Errorf("Confidence = %.2f, want >= %.2f", res.Confidence, DefaultSimilarityThreshold)
	}
}

func TestDetectNegative(t *testing.T) {
	d := newTestDetector(t)

	tests := []string{
		"what time do you open tomorrow",
		"sounds great, sign me up",
		"hello there",
		"",
	}
	for _, msg := range tests {
		res := d.Detect(msg)
		if res.IsObjection {
			t.Errorf("Detect(%q) classified as %q objection, want none", msg, res.PrimaryType)
		}
		if res.TierUsed != TierSemantic {
			t.Errorf("Detect(%q).TierUsed = %d, want %d (negatives exhaust both tiers)", msg, res.TierUsed, TierSemantic)
		}
	}
}

func TestMultiplePatternHitsBoostConfidence(t *testing.T) {
	d := newTestDetector(t)

	one := d.Detect("this is too expensive")
	two := d.Detect("too expensive, I can't afford it, out of budget")
	if two.Confidence <= one.Confidence {
		t.Errorf("confidence with multiple hits = %.2f, want > %.2f", two.Confidence, one.Confidence)
	}
}

func TestNewDetectorRejectsBadPattern(t *testing.T) {
	_, err := NewDetector([]flow.ObjectionPattern{{Type: "broken", Patterns: []string{`([`}}})
	if err == nil {
		t.Fatal("NewDetector() accepted an uncompilable pattern")
	}
}

func TestSimilarityHelpers(t *testing.T) {
	if got := levenshtein("kitten", "sitting"); got != 3 {
		t.Errorf("levenshtein(kitten, sitting) = %d, want 3", got)
	}
	if got := levenshtein("", "abc"); got != 3 {
		t.Errorf("levenshtein(empty, abc) = %d, want 3", got)
	}
	if got := jaccard([]string{"a", "b"}, []string{"a", "b"}); got != 1.0 {
		t.Errorf("jaccard identical = %f, want 1.0", got)
	}
	if got := normalize("  Hello,   WORLD!! "); got != "hello world" {
		t.Errorf("normalize = %q, want %q", got, "hello world")
	}
}
