package basin

import "github.com/fieldline/trajet/internal/config"

// CoherenceTracker classifies the movement of basin labels over a trailing
// window: locked when one label dominates past the stability threshold,
// breathing when labels oscillate among two or more without a dominant
// one, transitional otherwise (including before the window fills).
type CoherenceTracker struct {
	window         int
	lockedShare    float64
	breathingShare float64
	labels         []Label
}

// NewCoherenceTracker builds a tracker from the analysis configuration.
func NewCoherenceTracker(cfg config.AnalysisConfig) *CoherenceTracker {
	return &CoherenceTracker{
		window:         cfg.CoherenceWindow,
		lockedShare:    cfg.LockedShare,
		breathingShare: cfg.BreathingShare,
	}
}

// Observe appends a label and returns the pattern over the current window.
func (t *CoherenceTracker) Observe(l Label) Pattern {
	t.labels = append(t.labels, l)
	return t.Pattern()
}

// Pattern classifies the current trailing window.
func (t *CoherenceTracker) Pattern() Pattern {
	if len(t.labels) < t.window {
		return PatternTransitional
	}
	win := t.labels[len(t.labels)-t.window:]
	counts := make(map[Label]int)
	max := 0
	for _, l := range win {
		counts[l]++
		if counts[l] > max {
			max = counts[l]
		}
	}
	share := float64(max) / float64(len(win))
	switch {
	case share >= t.lockedShare:
		return PatternLocked
	case len(counts) >= 2 && share <= t.breathingShare:
		return PatternBreathing
	default:
		return PatternTransitional
	}
}

// Labels returns the observed label sequence.
func (t *CoherenceTracker) Labels() []Label { return t.labels }
