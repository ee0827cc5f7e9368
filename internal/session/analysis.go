package session

import (
	"encoding/json"

	"github.com/fieldline/trajet/internal/basin"
	"github.com/fieldline/trajet/internal/metrics"
	"github.com/fieldline/trajet/internal/models"
)

// buildAnalysis replays the stored turn log through fresh metrics and
// basin pipelines and assembles the single authoritative analysis record.
// The replay is deterministic: the same log always yields the same
// analysis. The batch basin sequence may disagree with the labels
// published live (full-series alpha and voice are available here); both
// sequences are kept, never merged.
func (s *Session) buildAnalysis() *models.AnalysisRecord {
	turns := s.Turns()

	eng := metrics.NewEngine(s.analysis.MinAlphaWindow,
		s.analysis.Thresholds.Fragmented, s.analysis.Thresholds.Rigid)
	cls := basin.NewClassifier(s.analysis)
	coh := basin.NewCoherenceTracker(s.analysis)

	batch := make([]basin.Label, 0, len(turns))
	live := make([]basin.Label, 0, len(turns))
	patterns := make(map[string]int)
	speakerCounts := make(map[string]int)

	for i, t := range turns {
		// The series was validated when first recorded; AddTurn cannot
		// reject it here.
		snap, _ := eng.AddTurn(t.Speaker, t.Embedding)
		prev := ""
		if i > 0 {
			prev = turns[i-1].Content
		}
		sig := basin.ExtractSignals(t.Content, prev)
		label := cls.Classify(snap, sig, convergingAt(eng, i))
		batch = append(batch, label)
		live = append(live, t.Basin)
		patterns[string(coh.Observe(label))]++
		speakerCounts[t.Speaker]++
	}

	coherenceDist := make(map[string]float64, len(patterns))
	for p, n := range patterns {
		coherenceDist[p] = float64(n) / float64(len(turns))
	}

	dominant, share := dominantLabel(batch)
	alpha := eng.Alpha()
	score, integrityLabel := eng.Integrity()

	return &models.AnalysisRecord{
		SessionID:      s.id,
		DominantBasin:  string(dominant),
		DominantShare:  share,
		BasinSequence:  mustJSON(batch),
		LiveSequence:   mustJSON(live),
		Transitions:    basin.Transitions(batch),
		CoherenceDist:  mustJSON(coherenceDist),
		Alpha:          alpha.Ptr(),
		AlphaStatus:    metrics.AlphaStatus(alpha),
		EntropyShift:   eng.EntropyShift().Ptr(),
		Voice:          eng.Voice().Ptr(),
		IntegrityScore: score,
		IntegrityLabel: integrityLabel,
		TurnCounts:     mustJSON(speakerCounts),
	}
}

// dominantLabel returns the most frequent label and its share. Ties go to
// the label seen earliest in the sequence, keeping the result independent
// of map iteration order.
func dominantLabel(seq []basin.Label) (basin.Label, float64) {
	if len(seq) == 0 {
		return "", 0
	}
	counts := make(map[basin.Label]int, len(seq))
	for _, l := range seq {
		counts[l]++
	}
	best := seq[0]
	for _, l := range seq {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best, float64(counts[best]) / float64(len(seq))
}

// mustJSON marshals values known to be encodable (labels, maps of
// primitives).
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
