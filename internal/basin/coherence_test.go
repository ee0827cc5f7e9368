package basin

import "testing"

func newTestTracker() *CoherenceTracker {
	return NewCoherenceTracker(testAnalysisConfig())
}

func TestPattern_TransitionalBeforeWindowFills(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 4; i++ {
		if got := tr.Observe(Transitional); got != PatternTransitional {
			t.Errorf("pattern after %d labels = %q, want %q", i+1, got, PatternTransitional)
		}
	}
}

func TestPattern_LockedWhenOneBasinPersists(t *testing.T) {
	tr := newTestTracker()
	var got Pattern
	for i := 0; i < 6; i++ {
		got = tr.Observe(CognitiveMimicry)
	}
	if got != PatternLocked {
		t.Errorf("pattern = %q, want %q", got, PatternLocked)
	}
}

func TestPattern_BreathingWhenOscillating(t *testing.T) {
	tr := newTestTracker()
	seq := []Label{
		CollaborativeInquiry, GenerativeConflict,
		CollaborativeInquiry, GenerativeConflict,
		CollaborativeInquiry, GenerativeConflict,
	}
	var got Pattern
	for _, l := range seq {
		got = tr.Observe(l)
	}
	if got != PatternBreathing {
		t.Errorf("pattern = %q, want %q", got, PatternBreathing)
	}
}

func TestPattern_DominantButNotLockedIsTransitional(t *testing.T) {
	cfg := testAnalysisConfig()
	cfg.CoherenceWindow = 10
	tr := NewCoherenceTracker(cfg)
	// Dominant share 7/10: above the breathing ceiling, below locked.
	for i := 0; i < 7; i++ {
		tr.Observe(DeepResonance)
	}
	for _, l := range []Label{CreativeDilation, Dissociation, CreativeDilation} {
		tr.Observe(l)
	}
	if got := tr.Pattern(); got != PatternTransitional {
		t.Errorf("pattern = %q, want %q", got, PatternTransitional)
	}
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		seq  []Label
		want int
	}{
		{nil, 0},
		{[]Label{Transitional}, 0},
		{[]Label{Transitional, Transitional, Transitional}, 0},
		{[]Label{CollaborativeInquiry, GenerativeConflict, CollaborativeInquiry}, 2},
		{[]Label{Transitional, Transitional, CognitiveMimicry, CognitiveMimicry}, 1},
	}
	for _, tc := range cases {
		if got := Transitions(tc.seq); got != tc.want {
			t.Errorf("Transitions(%v) = %d, want %d", tc.seq, got, tc.want)
		}
	}
}
