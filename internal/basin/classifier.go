package basin

import (
	"github.com/fieldline/trajet/internal/config"
	"github.com/fieldline/trajet/internal/metrics"
)

// Classifier applies threshold rules to per-turn metrics and textual
// signals. It is stateless per turn: identical inputs always yield the
// same label. All cutoffs come from configuration.
type Classifier struct {
	minTurns int
	t        config.Thresholds
}

// NewClassifier builds a classifier from the analysis configuration.
func NewClassifier(cfg config.AnalysisConfig) *Classifier {
	return &Classifier{minTurns: cfg.MinTurns, t: cfg.Thresholds}
}

// Classify selects the basin label for one turn. converging reports
// whether consecutive embeddings have been drawing together. Turns below
// the minimum window and unmatched combinations are Transitional.
func (c *Classifier) Classify(snap metrics.Snapshot, sig Signals, converging bool) Label {
	if snap.Turn < c.minTurns {
		return Transitional
	}
	if !snap.Velocity.Defined {
		return Transitional
	}
	vel := snap.Velocity.V
	curv, curvOK := snap.Curvature.V, snap.Curvature.Defined

	// Rules are ordered from the most specific textural signatures to the
	// broader kinematic ones; the first match wins.
	switch {
	case vel < c.t.LowVelocity && sig.Overlap > c.t.HighOverlap:
		return CognitiveMimicry

	case curvOK && curv < c.t.LowCurvature &&
		sig.AgreementDensity > c.t.HighAgreement && converging:
		return SycophanticConvergence

	case sig.QuestionDensity > c.t.HighInquiry && vel < c.t.LowVelocity:
		return ReflexivePerformance

	case curvOK && curv > c.t.HighCurvature && vel > c.t.HighVelocity &&
		sig.QuestionDensity > c.t.HighInquiry &&
		moderateVoice(snap.Voice, c.t.ModerateVoice):
		return CollaborativeInquiry

	case curvOK && curv > c.t.HighCurvature && vel > c.t.HighVelocity &&
		sig.AgreementDensity <= c.t.HighAgreement:
		return GenerativeConflict

	case curvOK && curv < c.t.LowCurvature && vel >= c.t.LowVelocity &&
		vel <= c.t.HighVelocity && sig.Overlap <= c.t.HighOverlap:
		return DeepResonance

	case vel > c.t.HighVelocity && !converging &&
		curvOK && curv <= c.t.HighCurvature:
		return CreativeDilation

	case vel > c.t.HighVelocity && curvOK && curv > c.t.HighCurvature:
		// High curvature plus agreement talk: incoherent jumping rather
		// than a productive clash.
		return Dissociation

	default:
		return Transitional
	}
}

// moderateVoice reports whether voice distinctiveness is defined and at
// least the configured floor.
func moderateVoice(v metrics.Value, floor float64) bool {
	return v.Defined && v.V >= floor
}
