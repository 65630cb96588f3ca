// Package perfusion derives semi-quantitative enhancement parameters from
// DCE-MRI signal curves: initial slope, onset time, maximum enhancement,
// time to maximum and final slope.
//
// Every "maximum" in this package resolves ties to the lowest index
// (baseline window, initial slope, maximum enhancement). NaN samples are
// skipped by the maximum search.
package perfusion

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"dcemaps/internal/models"
)

// Features are the parameters of a single voxel.
type Features struct {
	InitialSlope   float64
	OnsetTime      float64
	MaxEnhancement float64
	TimeToMax      float64
	FinalSlope     float64

	// Degenerate is set when the normalization divisor was unusable;
	// every other field is then NaN.
	Degenerate bool
}

func degenerateFeatures() Features {
	nan := math.NaN()
	return Features{
		InitialSlope:   nan,
		OnsetTime:      nan,
		MaxEnhancement: nan,
		TimeToMax:      nan,
		FinalSlope:     nan,
		Degenerate:     true,
	}
}

// Pipeline is the per-voxel analysis for one time axis and parameter set.
// It holds no mutable state and may be shared between goroutines.
type Pipeline struct {
	axis       []float64
	onsetIdx   int
	normalizer *Normalizer
	initial    *SlopeEstimator
	final      *SlopeEstimator
}

// NewPipeline validates params for a series of the given length and prepares
// both slope estimators. A nil normalizer divides by the voxel baseline only.
func NewPipeline(params Params, timepoints int, normalizer *Normalizer) (*Pipeline, error) {
	if err := params.Validate(timepoints); err != nil {
		return nil, err
	}
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	axis := params.TimeAxis(timepoints)
	initial, err := NewSlopeEstimator(axis, params.WindowSize)
	if err != nil {
		return nil, err
	}
	final, err := NewFinalSlopeEstimator(axis, params.FinalWindowSize(axis))
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		axis:       axis,
		onsetIdx:   params.OnsetIndex(axis),
		normalizer: normalizer,
		initial:    initial,
		final:      final,
	}, nil
}

// TimeAxis returns the time axis in minutes. It must not be modified.
func (p *Pipeline) TimeAxis() []float64 {
	return p.axis
}

// OnsetIndex returns the last timepoint allowed as onset.
func (p *Pipeline) OnsetIndex() int {
	return p.onsetIdx
}

// FinalWindow returns the trailing window length in timepoints.
func (p *Pipeline) FinalWindow() int {
	return p.final.Window()
}

// Analyze computes the features of one curve using caller-owned scratch
// buffers: norm of len(curve) and slopes of len(curve)-window_size+1.
func (p *Pipeline) Analyze(curve, norm, slopes []float64) Features {
	if !p.normalizer.Normalize(norm, curve) {
		return degenerateFeatures()
	}
	p.initial.Slopes(slopes, norm)

	limit := p.onsetIdx
	if limit > len(slopes)-1 {
		limit = len(slopes) - 1
	}
	is := floats.MaxIdx(slopes[:limit+1])
	me := floats.MaxIdx(norm)

	onset := p.axis[is]
	return Features{
		InitialSlope:   slopes[is],
		OnsetTime:      onset,
		MaxEnhancement: norm[me],
		TimeToMax:      p.axis[me] - onset,
		FinalSlope:     p.final.Last(norm),
	}
}

// AnalyzeCurve is Analyze with freshly allocated scratch buffers.
func (p *Pipeline) AnalyzeCurve(curve []float64) Features {
	return p.Analyze(curve, make([]float64, len(curve)), make([]float64, p.initial.Len()))
}

// Normalize returns the normalized copy of curve.
func (p *Pipeline) Normalize(curve []float64) ([]float64, bool) {
	norm := make([]float64, len(curve))
	ok := p.normalizer.Normalize(norm, curve)
	return norm, ok
}

// Result is the outcome of extracting one case.
type Result struct {
	Maps *models.ParameterMaps

	// DegenerateVoxels counts voxels whose outputs are NaN
	DegenerateVoxels int

	// FinalWindow is the trailing window length in timepoints
	FinalWindow int

	// Floor is the mask-derived normalization floor, when a mask was given
	Floor    float64
	HasFloor bool
}

// Extractor computes parameter maps for whole volumes.
type Extractor struct {
	params Params
}

// NewExtractor creates an extractor for the given parameters.
func NewExtractor(params Params) *Extractor {
	return &Extractor{params: params}
}

// Params returns the extractor's parameters.
func (e *Extractor) Params() Params {
	return e.params
}

// Prepare checks vol and mask and builds the per-voxel pipeline. Any error is
// a *ConfigError or *ShapeError and is raised before voxel work starts.
func (e *Extractor) Prepare(vol *models.TimeSeriesVolume, mask *models.Mask) (*Pipeline, error) {
	if vol == nil || vol.Data == nil {
		return nil, &ShapeError{Reason: "no volume data"}
	}
	if rows, _ := vol.Data.Dims(); rows != vol.Shape.Voxels() {
		return nil, &ShapeError{Reason: "volume arena does not match its spatial shape"}
	}
	normalizer := NewNormalizer()
	if mask != nil {
		if mask.Shape != vol.Shape {
			return nil, &ShapeError{Reason: "mask " + mask.Shape.String() + " does not match volume " + vol.Shape.String()}
		}
		var err error
		normalizer, err = NewMaskedNormalizer(vol.Timepoint(0), mask)
		if err != nil {
			return nil, err
		}
	}
	return NewPipeline(e.params, vol.Timepoints(), normalizer)
}

// Extract computes the parameter maps of vol. The voxel range is split into
// contiguous chunks, one per core; each worker writes disjoint map entries.
func (e *Extractor) Extract(vol *models.TimeSeriesVolume, mask *models.Mask) (*Result, error) {
	pipe, err := e.Prepare(vol, mask)
	if err != nil {
		return nil, err
	}

	maps := models.NewParameterMaps(vol.Shape)
	numVoxels := vol.Shape.Voxels()
	numCores := e.params.workers()
	if numCores > numVoxels {
		numCores = numVoxels
	}
	voxelsPerCore := (numVoxels + numCores - 1) / numCores
	degenerate := make([]int, numCores)

	var wg sync.WaitGroup
	for c := 0; c < numCores; c++ {
		start := c * voxelsPerCore
		end := start + voxelsPerCore
		if end > numVoxels {
			end = numVoxels
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(coreID, start, end int) {
			defer wg.Done()

			norm := make([]float64, vol.Timepoints())
			slopes := make([]float64, pipe.initial.Len())
			for v := start; v < end; v++ {
				f := pipe.Analyze(vol.Curve(v), norm, slopes)
				if f.Degenerate {
					degenerate[coreID]++
				}
				maps.InitialSlope[v] = f.InitialSlope
				maps.OnsetTime[v] = f.OnsetTime
				maps.MaxEnhancement[v] = f.MaxEnhancement
				maps.TimeToMax[v] = f.TimeToMax
				maps.FinalSlope[v] = f.FinalSlope
			}
		}(c, start, end)
	}
	wg.Wait()

	res := &Result{Maps: maps, FinalWindow: pipe.FinalWindow()}
	for _, n := range degenerate {
		res.DegenerateVoxels += n
	}
	res.Floor, res.HasFloor = pipe.normalizer.Floor()
	return res, nil
}
