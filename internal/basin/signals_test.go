package basin

import (
	"math"
	"testing"
)

func TestQuestionDensity(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"", 0},
		{"What is truth?", 1},
		{"What is truth? It depends.", 0.5},
		{"Statements. Only statements. Nothing else.", 0},
		{"no terminator at all", 0},
	}
	for _, tc := range cases {
		if got := questionDensity(tc.text); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("questionDensity(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestAgreementDensity(t *testing.T) {
	dense := agreementDensity("Yes, exactly, I agree completely. Absolutely right.")
	sparse := agreementDensity("The measurement contradicts the model at every scale.")
	if dense <= sparse {
		t.Errorf("agreement density: dense %v <= sparse %v", dense, sparse)
	}
	if sparse != 0 {
		t.Errorf("sparse density = %v, want 0", sparse)
	}
	// Multiword markers count too.
	if d := agreementDensity("good point, well said"); d == 0 {
		t.Error("multiword agreement markers not detected")
	}
}

func TestBigramOverlap(t *testing.T) {
	same := ExtractSignals("the map is not the territory", "the map is not the territory")
	if same.Overlap != 1 {
		t.Errorf("identical-text overlap = %v, want 1", same.Overlap)
	}
	diff := ExtractSignals("entropy always increases", "the map is not the territory")
	if diff.Overlap != 0 {
		t.Errorf("disjoint-text overlap = %v, want 0", diff.Overlap)
	}
	first := ExtractSignals("anything at all", "")
	if first.Overlap != 0 {
		t.Errorf("first-turn overlap = %v, want 0", first.Overlap)
	}
}

func TestTokenize_Lowercases(t *testing.T) {
	toks := tokenize("The MAP, is_not: the Territory!")
	want := []string{"the", "map", "is_not", "the", "territory"}
	if len(toks) != len(want) {
		t.Fatalf("tokens = %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, toks[i], want[i])
		}
	}
}

func TestLabelValidity(t *testing.T) {
	for _, l := range All() {
		if !l.IsValid() {
			t.Errorf("label %q should be valid", l)
		}
	}
	if Label("spiral").IsValid() {
		t.Error("unknown label reported valid")
	}
}
