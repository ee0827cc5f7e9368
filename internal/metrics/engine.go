package metrics

import (
	"fmt"
	"math"
	"sort"
)

// Integrity labels.
const (
	IntegrityFragmented = "fragmented"
	IntegrityLiving     = "living"
	IntegrityRigid      = "rigid"
)

// stabilityWindow is the number of recent turning samples feeding the
// short-term curvature stability term of the integrity score.
const stabilityWindow = 5

// Snapshot is the per-turn metrics bundle. Alpha here is always the cheap
// running estimate; the authoritative full-series value lives on the
// end-of-session Analysis, never here.
type Snapshot struct {
	Turn           int
	Speaker        string
	Velocity       Value
	Curvature      Value
	Alpha          Value
	Voice          Value
	IntegrityScore float64
	IntegrityLabel string
}

// Engine accumulates the embedding sequence of one session and computes
// trajectory metrics over it. Velocity and curvature are O(1) incremental
// updates per turn; alpha and voice distinctiveness are full-series
// recomputations. Not safe for concurrent use: the scheduler feeds it from
// a single goroutine, in turn order.
type Engine struct {
	minAlphaWindow int
	fragmented     float64 // integrity score below this
	rigid          float64 // integrity score at or above this

	dim        int
	embeddings [][]float64
	speakers   []string
	velocities []Value // index i = turn i, undefined at 0
	curvatures []Value // index i = turn i, undefined below 2
	turning    []float64 // curvature with zero-length steps as zero turning
	velSeries  []float64 // defined velocities only, DFA input

	centroidSum map[string][]float64
	counts      map[string]int
}

// NewEngine creates a metrics engine. minAlphaWindow is the number of
// velocity samples required before DFA is attempted; fragmented and rigid
// are the integrity score cutoffs.
func NewEngine(minAlphaWindow int, fragmented, rigid float64) *Engine {
	return &Engine{
		minAlphaWindow: minAlphaWindow,
		fragmented:     fragmented,
		rigid:          rigid,
		centroidSum:    make(map[string][]float64),
		counts:         make(map[string]int),
	}
}

// Len returns the number of turns observed.
func (e *Engine) Len() int { return len(e.embeddings) }

// AddTurn appends one turn's embedding and returns the turn's snapshot.
// The embedding dimension must match all earlier turns.
func (e *Engine) AddTurn(speaker string, emb []float64) (Snapshot, error) {
	if len(emb) == 0 {
		return Snapshot{}, fmt.Errorf("metrics: empty embedding")
	}
	if e.dim == 0 {
		e.dim = len(emb)
	} else if len(emb) != e.dim {
		return Snapshot{}, fmt.Errorf("metrics: embedding dimension %d, want %d", len(emb), e.dim)
	}

	i := len(e.embeddings)
	e.embeddings = append(e.embeddings, emb)
	e.speakers = append(e.speakers, speaker)

	vel := Undefined
	if i >= 1 {
		vel = Defined(dist(emb, e.embeddings[i-1]))
		e.velSeries = append(e.velSeries, vel.V)
	}
	e.velocities = append(e.velocities, vel)

	curv := Undefined
	if i >= 2 {
		prev := sub(e.embeddings[i-1], e.embeddings[i-2])
		cur := sub(emb, e.embeddings[i-1])
		if cos, ok := cosine(prev, cur); ok {
			curv = Defined(1 - cos)
			e.turning = append(e.turning, curv.V)
		} else {
			// A zero-length step turns nowhere; it stabilizes the
			// integrity window but the published sample stays undefined.
			e.turning = append(e.turning, 0)
		}
	}
	e.curvatures = append(e.curvatures, curv)

	if speaker != "system" {
		if _, ok := e.centroidSum[speaker]; !ok {
			e.centroidSum[speaker] = make([]float64, e.dim)
		}
		sum := e.centroidSum[speaker]
		for j, x := range emb {
			sum[j] += x
		}
		e.counts[speaker]++
	}

	return e.snapshot(i), nil
}

// snapshot assembles the bundle for turn i from current state.
func (e *Engine) snapshot(i int) Snapshot {
	score, label := e.Integrity()
	return Snapshot{
		Turn:           i,
		Speaker:        e.speakers[i],
		Velocity:       e.velocities[i],
		Curvature:      e.curvatures[i],
		Alpha:          e.Alpha(),
		Voice:          e.Voice(),
		IntegrityScore: score,
		IntegrityLabel: label,
	}
}

// Velocity returns the velocity sample for turn i.
func (e *Engine) Velocity(i int) Value { return e.velocities[i] }

// Curvature returns the turning sample for turn i.
func (e *Engine) Curvature(i int) Value { return e.curvatures[i] }

// Alpha computes the running DFA estimate over the velocity series.
func (e *Engine) Alpha() Value {
	return DFA(e.velSeries, e.minAlphaWindow)
}

// Voice computes voice distinctiveness: the average pairwise distance
// between per-speaker centroid embeddings. Undefined until at least two
// distinct non-system speakers have spoken.
func (e *Engine) Voice() Value {
	if len(e.counts) < 2 {
		return Undefined
	}
	ids := make([]string, 0, len(e.counts))
	for id := range e.counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	centroids := make([][]float64, len(ids))
	for k, id := range ids {
		c := make([]float64, e.dim)
		n := float64(e.counts[id])
		for j, s := range e.centroidSum[id] {
			c[j] = s / n
		}
		centroids[k] = c
	}

	var total float64
	var pairs int
	for a := 0; a < len(centroids); a++ {
		for b := a + 1; b < len(centroids); b++ {
			total += dist(centroids[a], centroids[b])
			pairs++
		}
	}
	return Defined(total / float64(pairs))
}

// Integrity computes the composite integrity score and label: short-term
// curvature stability weighted with long-range persistence from alpha.
func (e *Engine) Integrity() (float64, string) {
	w := e.turning
	if len(w) > stabilityWindow {
		w = w[len(w)-stabilityWindow:]
	}
	stability := 0.5 // neutral before any turning samples exist
	if len(w) >= 2 {
		stability = 1 / (1 + 4*stddev(w))
	}

	persistence := 0.5 // neutral when alpha is unknown
	if a := e.Alpha(); a.Defined {
		persistence = math.Max(0, math.Min(1, (a.V-0.5)/0.5))
	}

	score := 0.7*stability + 0.3*persistence
	switch {
	case score < e.fragmented:
		return score, IntegrityFragmented
	case score >= e.rigid:
		return score, IntegrityRigid
	default:
		return score, IntegrityLiving
	}
}

// EntropyShift estimates the change in distributional spread between the
// two halves of the embedding sequence: each half's entropy proxy is the
// mean log distance of its points to the half centroid. Undefined with
// fewer than four turns. This is a full-series measure, recomputed only
// when the split point changes, in practice once at session end.
func (e *Engine) EntropyShift() Value {
	n := len(e.embeddings)
	if n < 4 {
		return Undefined
	}
	mid := n / 2
	return Defined(spreadEntropy(e.embeddings[mid:]) - spreadEntropy(e.embeddings[:mid]))
}

// spreadEntropy is the per-half entropy proxy.
func spreadEntropy(vecs [][]float64) float64 {
	c := centroid(vecs)
	var sum float64
	for _, v := range vecs {
		sum += math.Log(dist(v, c) + 1e-9)
	}
	return sum / float64(len(vecs))
}

// Embeddings exposes the accumulated sequence for the batch pass.
func (e *Engine) Embeddings() [][]float64 { return e.embeddings }
