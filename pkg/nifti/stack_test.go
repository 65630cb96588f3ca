package nifti

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcemaps/internal/models"
)

func TestStackTimepointFiles(t *testing.T) {
	dir := t.TempDir()
	shape := models.Shape{X: 2, Y: 2, Z: 1}

	// written out of order; names decide acquisition order
	for _, i := range []int{2, 0, 1} {
		frame := []float64{float64(i), float64(10 + i), float64(20 + i), float64(30 + i)}
		require.NoError(t, Write(filepath.Join(dir, fmt.Sprintf("t%02d.nii", i)), nil, shape, 1, frame))
	}

	paths, err := TimepointFiles(dir, ".nii")
	require.NoError(t, err)
	require.Len(t, paths, 3)

	vol, err := Stack(paths, 7.5)
	require.NoError(t, err)
	assert.Equal(t, shape, vol.Shape)
	assert.Equal(t, 3, vol.Timepoints())
	assert.Equal(t, []float64{10, 11, 12}, vol.Curve(1))

	h, ok := vol.Meta.(Header)
	require.True(t, ok)
	assert.Equal(t, 7.5, h.TemporalResolution())

	out := filepath.Join(dir, "stacked", "case.nii.gz")
	require.NoError(t, WriteTimeSeries(out, vol))
	img, err := Read(out)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1, 3}, img.Header.Dims())
	assert.Equal(t, 7.5, img.Header.TemporalResolution())
}

func TestStackRejectsMismatchedFrames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(filepath.Join(dir, "a.nii"), nil, models.Shape{X: 2, Y: 1, Z: 1}, 1, []float64{1, 2}))
	require.NoError(t, Write(filepath.Join(dir, "b.nii"), nil, models.Shape{X: 1, Y: 2, Z: 1}, 1, []float64{1, 2}))

	paths, err := TimepointFiles(dir, ".nii")
	require.NoError(t, err)

	_, err = Stack(paths, 0)
	assert.ErrorIs(t, err, ErrDimensions)

	_, err = Stack(nil, 0)
	assert.Error(t, err)
}
