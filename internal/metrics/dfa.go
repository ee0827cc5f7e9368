package metrics

import "math"

// Alpha value interpretation statuses.
const (
	AlphaOK           = "ok"
	AlphaInsufficient = "insufficient-data"
	AlphaDegenerate   = "degenerate"
)

// DFA estimates the fractal scaling exponent of series via detrended
// fluctuation analysis. It returns Undefined when the series is shorter
// than minWindow or when the fit is impossible (fewer than two usable box
// sizes, or zero fluctuation everywhere, as with a constant series).
// Out-of-range exponents are returned as-is; callers decide whether a
// value is degenerate via AlphaStatus.
func DFA(series []float64, minWindow int) Value {
	n := len(series)
	if n < minWindow || n < 8 {
		return Undefined
	}

	// Integrated, mean-centered profile.
	m := mean(series)
	profile := make([]float64, n)
	var acc float64
	for i, x := range series {
		acc += x - m
		profile[i] = acc
	}

	var logS, logF []float64
	for s := 4; s <= n/2; s = nextBoxSize(s) {
		f := fluctuation(profile, s)
		if f <= 0 {
			continue
		}
		logS = append(logS, math.Log(float64(s)))
		logF = append(logF, math.Log(f))
	}
	if len(logS) < 2 {
		return Undefined
	}

	slope, ok := slopeFit(logS, logF)
	if !ok {
		return Undefined
	}
	return Defined(slope)
}

// AlphaStatus classifies a DFA result for reporting.
func AlphaStatus(a Value) string {
	switch {
	case !a.Defined:
		return AlphaInsufficient
	case a.V <= 0 || a.V >= 2:
		return AlphaDegenerate
	default:
		return AlphaOK
	}
}

// nextBoxSize grows box sizes geometrically, always by at least one.
func nextBoxSize(s int) int {
	next := s * 3 / 2
	if next <= s {
		next = s + 1
	}
	return next
}

// fluctuation computes the RMS residual of profile around per-box linear
// trends for box size s.
func fluctuation(profile []float64, s int) float64 {
	boxes := len(profile) / s
	if boxes == 0 {
		return 0
	}
	var total float64
	for b := 0; b < boxes; b++ {
		seg := profile[b*s : (b+1)*s]
		total += detrendedSquares(seg)
	}
	return math.Sqrt(total / float64(boxes*s))
}

// detrendedSquares fits a least-squares line to seg (x = 0..len-1) and
// returns the sum of squared residuals.
func detrendedSquares(seg []float64) float64 {
	n := float64(len(seg))
	var sx, sy, sxx, sxy float64
	for i, y := range seg {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	var slope, intercept float64
	if den != 0 {
		slope = (n*sxy - sx*sy) / den
		intercept = (sy - slope*sx) / n
	} else {
		intercept = sy / n
	}
	var sum float64
	for i, y := range seg {
		r := y - (slope*float64(i) + intercept)
		sum += r * r
	}
	return sum
}

// slopeFit computes the least-squares slope of y against x. It fails when
// x has no spread.
func slopeFit(x, y []float64) (float64, bool) {
	n := float64(len(x))
	var sx, sy, sxx, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		sxy += x[i] * y[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, false
	}
	return (n*sxy - sx*sy) / den, true
}
