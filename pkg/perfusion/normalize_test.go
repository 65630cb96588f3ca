package perfusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcemaps/internal/models"
)

func TestBaselineIndexPrefersMostNonZeroWindow(t *testing.T) {
	curve := []float64{0, 0, 5, 10, 20}

	assert.Equal(t, 2, BaselineIndex(curve))
	assert.InDelta(t, 35.0/3, Baseline(curve), 1e-12)

	norm := make([]float64, len(curve))
	require.True(t, NewNormalizer().Normalize(norm, curve))

	want := []float64{0, 0, 0.4286, 0.8571, 1.7143}
	for i := range want {
		assert.InDelta(t, want[i], norm[i], 1e-4, "sample %d", i)
	}
}

func TestBaselineIndexTieResolvesToFirstWindow(t *testing.T) {
	// every window holds three non-zero samples
	assert.Equal(t, 0, BaselineIndex([]float64{4, 5, 6, 7, 8}))

	// windows 1 and 3 both hold two non-zero samples
	assert.Equal(t, 1, BaselineIndex([]float64{0, 0, 3, 3, 0, 3, 3}))
}

func TestNormalizeDegenerateWithoutMask(t *testing.T) {
	curve := []float64{0, 0, 0, 0, 0}
	norm := make([]float64, len(curve))

	ok := NewNormalizer().Normalize(norm, curve)

	assert.False(t, ok)
	for i, v := range norm {
		assert.True(t, math.IsNaN(v), "sample %d should be NaN, got %v", i, v)
	}
}

func TestNormalizeNearZeroBaselineIsDegenerate(t *testing.T) {
	curve := []float64{1e-12, 1e-12, 1e-12, 5}
	norm := make([]float64, len(curve))

	assert.False(t, NewNormalizer().Normalize(norm, curve))
}

func TestMaskFloorActivation(t *testing.T) {
	shape := models.Shape{X: 2, Y: 1, Z: 1}
	mask, err := models.NewMask(shape, []float64{1, 0})
	require.NoError(t, err)

	// only voxel 0 is in the mask, so the floor is its timepoint-0 value
	n, err := NewMaskedNormalizer([]float64{2.0, 1000}, mask)
	require.NoError(t, err)

	floor, ok := n.Floor()
	require.True(t, ok)
	assert.Equal(t, 2.0, floor)

	// baseline window [0, 1, -1] averages to exactly zero
	curve := []float64{0, 0, 1, -1, 0}
	require.Equal(t, 0.0, Baseline(curve))
	assert.Equal(t, 2.0, n.Divisor(Baseline(curve)))

	norm := make([]float64, len(curve))
	require.True(t, n.Normalize(norm, curve))
	assert.Equal(t, []float64{0, 0, 0.5, -0.5, 0}, norm)
}

func TestMaskFloorLeavesLargeBaselinesAlone(t *testing.T) {
	mask := &models.Mask{Shape: models.Shape{X: 3, Y: 1, Z: 1}, Valid: []bool{true, true, true}}
	n, err := NewMaskedNormalizer([]float64{1, 2, 3}, mask)
	require.NoError(t, err)

	assert.Equal(t, 100.0, n.Divisor(100))
}

func TestMaskedNormalizerRejectsEmptyMask(t *testing.T) {
	mask := &models.Mask{Shape: models.Shape{X: 2, Y: 1, Z: 1}, Valid: []bool{false, false}}

	_, err := NewMaskedNormalizer([]float64{1, 2}, mask)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestPercentileLinearInterpolation(t *testing.T) {
	values := make([]float64, 101)
	for i := range values {
		values[len(values)-1-i] = float64(i)
	}
	assert.InDelta(t, 1.0, Percentile(values, 1), 1e-12)

	// position 0.01*(4-1) = 0.03 between 10 and 20
	assert.InDelta(t, 10.3, Percentile([]float64{40, 10, 30, 20}, 1), 1e-12)

	assert.Equal(t, 7.0, Percentile([]float64{7}, 1))
}
