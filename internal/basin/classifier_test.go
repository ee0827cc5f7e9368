package basin

import (
	"testing"

	"github.com/fieldline/trajet/internal/config"
	"github.com/fieldline/trajet/internal/metrics"
)

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		MinTurns:        3,
		MinAlphaWindow:  16,
		CoherenceWindow: 5,
		LockedShare:     0.8,
		BreathingShare:  0.6,
		Thresholds:      config.DefaultThresholds(),
	}
}

func snap(turn int, vel, curv float64, voice metrics.Value) metrics.Snapshot {
	return metrics.Snapshot{
		Turn:      turn,
		Velocity:  metrics.Defined(vel),
		Curvature: metrics.Defined(curv),
		Voice:     voice,
	}
}

func TestClassify_BelowMinWindowAlwaysTransitional(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(2, 2.0, 1.5, metrics.Defined(1.0))
	sig := Signals{QuestionDensity: 1, AgreementDensity: 0}
	if got := c.Classify(s, sig, false); got != Transitional {
		t.Errorf("turn 2 label = %q, want %q", got, Transitional)
	}
}

func TestClassify_CollaborativeInquiry(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(8, 1.2, 1.4, metrics.Defined(0.9))
	sig := Signals{QuestionDensity: 0.8, AgreementDensity: 0.0, Overlap: 0.05}
	if got := c.Classify(s, sig, false); got != CollaborativeInquiry {
		t.Errorf("label = %q, want %q", got, CollaborativeInquiry)
	}
}

func TestClassify_GenerativeConflict(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(8, 1.2, 1.4, metrics.Defined(0.9))
	sig := Signals{QuestionDensity: 0.0, AgreementDensity: 0.0, Overlap: 0.05}
	if got := c.Classify(s, sig, false); got != GenerativeConflict {
		t.Errorf("label = %q, want %q", got, GenerativeConflict)
	}
}

func TestClassify_CognitiveMimicry(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(8, 0.05, 0.1, metrics.Defined(0.1))
	sig := Signals{Overlap: 0.85}
	if got := c.Classify(s, sig, true); got != CognitiveMimicry {
		t.Errorf("label = %q, want %q", got, CognitiveMimicry)
	}
}

func TestClassify_SycophanticConvergence(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(8, 0.3, 0.1, metrics.Defined(0.2))
	sig := Signals{AgreementDensity: 0.12, Overlap: 0.2}
	if got := c.Classify(s, sig, true); got != SycophanticConvergence {
		t.Errorf("label = %q, want %q", got, SycophanticConvergence)
	}
}

func TestClassify_ReflexivePerformance(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(8, 0.05, 0.3, metrics.Defined(0.2))
	sig := Signals{QuestionDensity: 0.9, Overlap: 0.1}
	if got := c.Classify(s, sig, false); got != ReflexivePerformance {
		t.Errorf("label = %q, want %q", got, ReflexivePerformance)
	}
}

func TestClassify_DeepResonance(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(8, 0.4, 0.1, metrics.Defined(0.5))
	sig := Signals{AgreementDensity: 0.0, Overlap: 0.1}
	if got := c.Classify(s, sig, false); got != DeepResonance {
		t.Errorf("label = %q, want %q", got, DeepResonance)
	}
}

func TestClassify_CreativeDilation(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(8, 1.5, 0.5, metrics.Defined(0.5))
	sig := Signals{AgreementDensity: 0.0, Overlap: 0.1}
	if got := c.Classify(s, sig, false); got != CreativeDilation {
		t.Errorf("label = %q, want %q", got, CreativeDilation)
	}
}

func TestClassify_Dissociation(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	// High velocity, extreme curvature, but agreement talk: not a
	// productive clash, just incoherent jumping.
	s := snap(8, 1.5, 1.6, metrics.Defined(0.1))
	sig := Signals{QuestionDensity: 0.0, AgreementDensity: 0.2, Overlap: 0.0}
	if got := c.Classify(s, sig, true); got != Dissociation {
		t.Errorf("label = %q, want %q", got, Dissociation)
	}
}

func TestClassify_UnmatchedDefaultsTransitional(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	// Moderate everything with high overlap falls through all rules.
	s := snap(8, 0.4, 0.5, metrics.Undefined)
	sig := Signals{Overlap: 0.9}
	if got := c.Classify(s, sig, false); got != Transitional {
		t.Errorf("label = %q, want %q", got, Transitional)
	}
}

func TestClassify_UndefinedVelocityTransitional(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := metrics.Snapshot{Turn: 8}
	if got := c.Classify(s, Signals{}, false); got != Transitional {
		t.Errorf("label = %q, want %q", got, Transitional)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier(testAnalysisConfig())
	s := snap(8, 1.2, 1.4, metrics.Defined(0.9))
	sig := Signals{QuestionDensity: 0.8}
	a := c.Classify(s, sig, false)
	b := c.Classify(s, sig, false)
	if a != b {
		t.Errorf("classification not deterministic: %q vs %q", a, b)
	}
}
