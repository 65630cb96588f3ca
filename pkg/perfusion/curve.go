package perfusion

import (
	"dcemaps/internal/models"
)

// MeanCurve averages the normalized curves of the voxels selected by mask
// (every voxel when mask is nil), skipping degenerate voxels. It returns the
// mean curve and the number of voxels that contributed.
func (p *Pipeline) MeanCurve(vol *models.TimeSeriesVolume, mask *models.Mask) ([]float64, int) {
	t := vol.Timepoints()
	sum := make([]float64, t)
	norm := make([]float64, t)
	n := 0
	for v := 0; v < vol.Shape.Voxels(); v++ {
		if mask != nil && !mask.Valid[v] {
			continue
		}
		if !p.normalizer.Normalize(norm, vol.Curve(v)) {
			continue
		}
		for i, s := range norm {
			sum[i] += s
		}
		n++
	}
	if n > 0 {
		for i := range sum {
			sum[i] /= float64(n)
		}
	}
	return sum, n
}
