package perfusion

import (
	"math"
	"sort"

	"dcemaps/internal/models"
)

const (
	// baselineWindow is the number of consecutive samples averaged into the baseline.
	baselineWindow = 3

	// floorPercentile is the percentile of timepoint-0 intensities inside
	// the mask used as the normalization floor.
	floorPercentile = 1.0

	// MinDivisor is the smallest divisor magnitude considered usable.
	// Smaller divisors mark the voxel as degenerate.
	MinDivisor = 1e-9
)

// BaselineIndex returns the start of the first 3-sample window holding the
// most non-zero samples. Ties resolve to the lowest start index.
func BaselineIndex(curve []float64) int {
	best, bestCount := 0, -1
	for i := 0; i+baselineWindow <= len(curve); i++ {
		count := 0
		for _, s := range curve[i : i+baselineWindow] {
			if s != 0 {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = i, count
		}
	}
	return best
}

// Baseline returns the mean of the window selected by BaselineIndex.
func Baseline(curve []float64) float64 {
	i := BaselineIndex(curve)
	return (curve[i] + curve[i+1] + curve[i+2]) / baselineWindow
}

// Normalizer divides voxel curves by their baseline, optionally floored by
// a population-level value derived from a mask.
type Normalizer struct {
	floor    float64
	hasFloor bool
}

// NewNormalizer returns a normalizer without a floor: the divisor is the
// voxel's own baseline.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NewMaskedNormalizer computes the floor as the 1st percentile of the
// timepoint-0 frame over the voxels the mask marks valid.
func NewMaskedNormalizer(first []float64, mask *models.Mask) (*Normalizer, error) {
	if len(first) != len(mask.Valid) {
		return nil, &ShapeError{Reason: "mask and first timepoint differ in voxel count"}
	}
	values := make([]float64, 0, mask.Count())
	for v, ok := range mask.Valid {
		if ok && !math.IsNaN(first[v]) {
			values = append(values, first[v])
		}
	}
	if len(values) == 0 {
		return nil, configErrorf("mask", "selects no voxels")
	}
	return &Normalizer{floor: Percentile(values, floorPercentile), hasFloor: true}, nil
}

// Floor returns the mask floor and whether one is in effect.
func (n *Normalizer) Floor() (float64, bool) {
	return n.floor, n.hasFloor
}

// Divisor returns the effective divisor for a voxel with baseline b.
func (n *Normalizer) Divisor(b float64) float64 {
	if n.hasFloor {
		return math.Max(b, n.floor)
	}
	return b
}

// Normalize writes curve / divisor into dst and reports whether the divisor
// was usable. A degenerate divisor (non-finite or |e| < MinDivisor) fills dst
// with NaN and returns false.
func (n *Normalizer) Normalize(dst, curve []float64) bool {
	e := n.Divisor(Baseline(curve))
	if math.IsNaN(e) || math.IsInf(e, 0) || math.Abs(e) < MinDivisor {
		for i := range dst {
			dst[i] = math.NaN()
		}
		return false
	}
	for i, s := range curve {
		dst[i] = s / e
	}
	return true
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. values is sorted in place.
func Percentile(values []float64, p float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n == 1 {
		return values[0]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return values[n-1]
	}
	frac := pos - float64(lo)
	return values[lo] + (values[lo+1]-values[lo])*frac
}
