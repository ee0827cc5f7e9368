package metrics

import (
	"math"
	"testing"
)

func newTestEngine() *Engine { return NewEngine(16, 0.35, 0.7) }

func TestAddTurn_VelocityAndCurvatureWindows(t *testing.T) {
	e := newTestEngine()

	s0, err := e.AddTurn("a", []float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s0.Velocity.Defined || s0.Curvature.Defined {
		t.Errorf("turn 0: velocity/curvature = %+v/%+v, want undefined", s0.Velocity, s0.Curvature)
	}

	s1, _ := e.AddTurn("b", []float64{3, 4})
	if !s1.Velocity.Defined || s1.Velocity.V != 5 {
		t.Errorf("turn 1 velocity = %+v, want 5", s1.Velocity)
	}
	if s1.Curvature.Defined {
		t.Errorf("turn 1 curvature = %+v, want undefined", s1.Curvature)
	}

	// Continue in the same direction: zero turning.
	s2, _ := e.AddTurn("a", []float64{6, 8})
	if !s2.Curvature.Defined || math.Abs(s2.Curvature.V) > 1e-9 {
		t.Errorf("straight-line curvature = %+v, want 0", s2.Curvature)
	}

	// Reverse direction: turning angle pi, curvature 2.
	s3, _ := e.AddTurn("b", []float64{3, 4})
	if !s3.Curvature.Defined || math.Abs(s3.Curvature.V-2) > 1e-9 {
		t.Errorf("reversal curvature = %+v, want 2", s3.Curvature)
	}
}

func TestAddTurn_ZeroStepCurvatureUndefined(t *testing.T) {
	e := newTestEngine()
	e.AddTurn("a", []float64{1, 1})
	e.AddTurn("b", []float64{2, 2})
	s, _ := e.AddTurn("a", []float64{2, 2}) // zero-length step
	if s.Curvature.Defined {
		t.Errorf("zero-step curvature = %+v, want explicit undefined", s.Curvature)
	}
	if !s.Velocity.Defined || s.Velocity.V != 0 {
		t.Errorf("zero-step velocity = %+v, want defined 0", s.Velocity)
	}
}

func TestAddTurn_DimensionMismatchRejected(t *testing.T) {
	e := newTestEngine()
	if _, err := e.AddTurn("a", []float64{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.AddTurn("b", []float64{1, 2}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestAlpha_SentinelBelowWindow(t *testing.T) {
	e := newTestEngine()
	next := lcg(3)
	// 16 turns produce 15 velocities, one short of the window.
	for i := 0; i < 16; i++ {
		e.AddTurn("a", []float64{next(), next()})
	}
	if a := e.Alpha(); a.Defined {
		t.Errorf("alpha with 15 velocities = %+v, want undefined", a)
	}
	e.AddTurn("a", []float64{next(), next()})
	if a := e.Alpha(); !a.Defined {
		t.Error("alpha with 16 velocities should be defined")
	}
}

func TestVoice_RequiresTwoSpeakers(t *testing.T) {
	e := newTestEngine()
	e.AddTurn("a", []float64{0, 0})
	e.AddTurn("a", []float64{1, 0})
	if v := e.Voice(); v.Defined {
		t.Errorf("voice with one speaker = %+v, want undefined", v)
	}

	e.AddTurn("b", []float64{0, 6})
	v := e.Voice()
	if !v.Defined {
		t.Fatal("voice with two speakers should be defined")
	}
	if v.V < 0 {
		t.Errorf("voice = %v, want non-negative", v.V)
	}
	// Centroids: a at (0.5, 0), b at (0, 6).
	want := math.Sqrt(0.25 + 36)
	if math.Abs(v.V-want) > 1e-9 {
		t.Errorf("voice = %v, want %v", v.V, want)
	}
}

func TestVoice_SystemSpeakerExcluded(t *testing.T) {
	e := newTestEngine()
	e.AddTurn("a", []float64{0, 0})
	e.AddTurn("system", []float64{9, 9})
	if v := e.Voice(); v.Defined {
		t.Errorf("voice with one agent plus system = %+v, want undefined", v)
	}
}

func TestEntropyShift_SpreadingTrajectoryPositive(t *testing.T) {
	e := newTestEngine()
	// First half: tight cluster. Second half: widely spread.
	cluster := [][]float64{{0, 0}, {0.01, 0}, {0, 0.01}, {0.01, 0.01}}
	spread := [][]float64{{5, 0}, {-5, 0}, {0, 5}, {0, -5}}
	for _, v := range cluster {
		e.AddTurn("a", v)
	}
	for _, v := range spread {
		e.AddTurn("b", v)
	}
	dh := e.EntropyShift()
	if !dh.Defined {
		t.Fatal("entropy shift over 8 turns should be defined")
	}
	if dh.V <= 0 {
		t.Errorf("entropy shift = %v, want > 0 for a dilating trajectory", dh.V)
	}
}

func TestEntropyShift_UndefinedOnShortSeries(t *testing.T) {
	e := newTestEngine()
	e.AddTurn("a", []float64{0, 0})
	e.AddTurn("b", []float64{1, 1})
	if dh := e.EntropyShift(); dh.Defined {
		t.Errorf("entropy shift on 2 turns = %+v, want undefined", dh)
	}
}

func TestIntegrity_StableVersusNoisy(t *testing.T) {
	stable := newTestEngine()
	// Constant small steps in one direction: zero turning throughout.
	for i := 0; i < 12; i++ {
		stable.AddTurn("a", []float64{float64(i) * 0.01, 0})
	}
	scoreStable, labelStable := stable.Integrity()
	if labelStable != IntegrityRigid {
		t.Errorf("stable trajectory label = %q (score %v), want %q", labelStable, scoreStable, IntegrityRigid)
	}

	noisy := newTestEngine()
	next := lcg(11)
	for i := 0; i < 12; i++ {
		noisy.AddTurn("a", []float64{next() * 10, next() * 10})
	}
	scoreNoisy, _ := noisy.Integrity()
	if scoreNoisy >= scoreStable {
		t.Errorf("noisy score %v >= stable score %v, want lower", scoreNoisy, scoreStable)
	}
}

func TestSnapshot_RunningAlphaIsNotFinal(t *testing.T) {
	e := newTestEngine()
	next := lcg(5)
	var snaps []Snapshot
	for i := 0; i < 24; i++ {
		s, err := e.AddTurn("a", []float64{next(), next()})
		if err != nil {
			t.Fatal(err)
		}
		snaps = append(snaps, s)
	}
	// Early snapshots carry the sentinel; late ones a live estimate.
	if snaps[4].Alpha.Defined {
		t.Error("turn 4 running alpha should be undefined")
	}
	if !snaps[23].Alpha.Defined {
		t.Error("turn 23 running alpha should be defined")
	}
}
