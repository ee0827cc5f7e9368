// Package basin maps per-turn trajectory metrics and lightweight textual
// signals to a discrete regime label, and classifies how labels move over
// a trailing window.
package basin

// Label is one attractor-basin regime. The set is closed; classification
// never invents new labels.
type Label string

const (
	CollaborativeInquiry   Label = "collaborative_inquiry"
	CognitiveMimicry       Label = "cognitive_mimicry"
	DeepResonance          Label = "deep_resonance"
	GenerativeConflict     Label = "generative_conflict"
	SycophanticConvergence Label = "sycophantic_convergence"
	CreativeDilation       Label = "creative_dilation"
	ReflexivePerformance   Label = "reflexive_performance"
	Dissociation           Label = "dissociation"
	Transitional           Label = "transitional"
)

// All lists every basin label.
func All() []Label {
	return []Label{
		CollaborativeInquiry,
		CognitiveMimicry,
		DeepResonance,
		GenerativeConflict,
		SycophanticConvergence,
		CreativeDilation,
		ReflexivePerformance,
		Dissociation,
		Transitional,
	}
}

// IsValid reports whether l belongs to the closed label set.
func (l Label) IsValid() bool {
	for _, v := range All() {
		if l == v {
			return true
		}
	}
	return false
}

// Pattern classifies basin movement over a trailing window.
type Pattern string

const (
	PatternBreathing    Pattern = "breathing"    // oscillates among two or more basins
	PatternLocked       Pattern = "locked"       // one basin persists past the stability threshold
	PatternTransitional Pattern = "transitional" // no stable pattern yet
)

// Transitions counts adjacent-index label changes across the sequence.
func Transitions(seq []Label) int {
	n := 0
	for i := 1; i < len(seq); i++ {
		if seq[i] != seq[i-1] {
			n++
		}
	}
	return n
}
