package perfusion

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SlopeEstimator computes least-squares regression slopes of a curve against
// the time axis over sliding windows of fixed length.
//
// For a window with abscissae x and ordinates y the slope is
// Σ(x-x̄)(y-ȳ) / Σ(x-x̄)². Since Σ(x-x̄) = 0 this equals Σ c_k y_k with
// c_k = (x_k-x̄) / Σ(x-x̄)², so the weights depend on the time axis only and
// are computed once per window and shared read-only by all voxels.
type SlopeEstimator struct {
	window  int
	first   int
	weights [][]float64
}

// NewSlopeEstimator prepares every window start in [0, len(axis)-window].
func NewSlopeEstimator(axis []float64, window int) (*SlopeEstimator, error) {
	if window < 2 || window > len(axis) {
		return nil, configErrorf("window_size", "must be in [2, %d], got %d", len(axis), window)
	}
	return newSlopeEstimator(axis, window, 0), nil
}

// NewFinalSlopeEstimator prepares only the trailing window
// [len(axis)-window, len(axis)-1].
func NewFinalSlopeEstimator(axis []float64, window int) (*SlopeEstimator, error) {
	if window < 2 || window > len(axis) {
		return nil, configErrorf("final_slope_time", "final window must be in [2, %d] timepoints, got %d", len(axis), window)
	}
	return newSlopeEstimator(axis, window, len(axis)-window), nil
}

func newSlopeEstimator(axis []float64, window, first int) *SlopeEstimator {
	n := len(axis) - window + 1 - first
	se := &SlopeEstimator{window: window, first: first, weights: make([][]float64, n)}
	for i := range se.weights {
		se.weights[i] = windowWeights(axis[first+i : first+i+window])
	}
	return se
}

// windowWeights returns c_k for one window. A window with no spread in time
// yields NaN weights so every slope through it is NaN.
func windowWeights(x []float64) []float64 {
	mean := floats.Sum(x) / float64(len(x))
	w := make([]float64, len(x))
	var sxx float64
	for k, v := range x {
		w[k] = v - mean
		sxx += w[k] * w[k]
	}
	if sxx == 0 || math.IsNaN(sxx) {
		for k := range w {
			w[k] = math.NaN()
		}
		return w
	}
	floats.Scale(1/sxx, w)
	return w
}

// Window returns the window length in timepoints.
func (se *SlopeEstimator) Window() int {
	return se.window
}

// Len returns the number of slopes produced per curve.
func (se *SlopeEstimator) Len() int {
	return len(se.weights)
}

// Slopes writes the slope of every prepared window of curve into dst, which
// must have length Len(), and returns it. A nil dst is allocated.
func (se *SlopeEstimator) Slopes(dst, curve []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(se.weights))
	}
	for i, w := range se.weights {
		start := se.first + i
		dst[i] = floats.Dot(w, curve[start:start+se.window])
	}
	return dst
}

// Last returns the slope of the last prepared window. For an estimator built
// with NewFinalSlopeEstimator only the trailing samples of curve are read.
func (se *SlopeEstimator) Last(curve []float64) float64 {
	i := len(se.weights) - 1
	start := se.first + i
	return floats.Dot(se.weights[i], curve[start:start+se.window])
}
