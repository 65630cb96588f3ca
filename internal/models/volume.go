package models

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Shape is the spatial extent of a volume in voxels.
type Shape struct {
	X, Y, Z int
}

// Voxels returns the number of voxels in the spatial grid.
func (s Shape) Voxels() int {
	return s.X * s.Y * s.Z
}

// Index flattens (x, y, z) into a voxel index. The order is row-major with
// z varying fastest: v = (x*Y + y)*Z + z. Every producer and consumer of
// voxel-indexed data in this module goes through Index and Coords.
func (s Shape) Index(x, y, z int) int {
	return (x*s.Y+y)*s.Z + z
}

// Coords is the exact inverse of Index.
func (s Shape) Coords(v int) (x, y, z int) {
	z = v % s.Z
	v /= s.Z
	y = v % s.Y
	x = v / s.Y
	return x, y, z
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	return s.X > 0 && s.Y > 0 && s.Z > 0
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.X, s.Y, s.Z)
}

// TimeSeriesVolume is a 4D DCE acquisition held as a voxel-major arena.
// Row v of Data is the signal curve of voxel v; column t is timepoint t.
type TimeSeriesVolume struct {
	// Shape is the spatial grid of the acquisition
	Shape Shape

	// Data is the V x T sample matrix (V = Shape.Voxels())
	Data *mat.Dense

	// Meta is the spatial metadata of the source image (affine, header).
	// It is carried through untouched and handed back to the writer.
	Meta any
}

// NewTimeSeriesVolume wraps data, laid out voxel-major and time-minor, as a
// volume. The slice is used as backing storage without copying.
func NewTimeSeriesVolume(shape Shape, timepoints int, data []float64, meta any) (*TimeSeriesVolume, error) {
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid spatial shape %s", shape)
	}
	if timepoints < 1 {
		return nil, fmt.Errorf("invalid number of timepoints %d", timepoints)
	}
	if len(data) != shape.Voxels()*timepoints {
		return nil, fmt.Errorf("data length %d does not match %s x %d", len(data), shape, timepoints)
	}
	return &TimeSeriesVolume{
		Shape: shape,
		Data:  mat.NewDense(shape.Voxels(), timepoints, data),
		Meta:  meta,
	}, nil
}

// Timepoints returns T.
func (v *TimeSeriesVolume) Timepoints() int {
	_, t := v.Data.Dims()
	return t
}

// Curve returns the signal curve of voxel idx. The returned slice aliases
// the volume storage and must not be modified.
func (v *TimeSeriesVolume) Curve(idx int) []float64 {
	return v.Data.RawRowView(idx)
}

// Timepoint copies the 3D frame at timepoint t into a voxel-indexed slice.
func (v *TimeSeriesVolume) Timepoint(t int) []float64 {
	return mat.Col(nil, t, v.Data)
}

// StackTimepoints concatenates 3D frames, each voxel-indexed with the same
// shape, into a single 4D volume in acquisition order.
func StackTimepoints(shape Shape, frames [][]float64, meta any) (*TimeSeriesVolume, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no timepoints to stack")
	}
	n := shape.Voxels()
	t := len(frames)
	data := make([]float64, n*t)
	for i, frame := range frames {
		if len(frame) != n {
			return nil, fmt.Errorf("timepoint %d has %d voxels, expected %d (%s)", i, len(frame), n, shape)
		}
		for v, s := range frame {
			data[v*t+i] = s
		}
	}
	return NewTimeSeriesVolume(shape, t, data, meta)
}

// Mask marks which voxels belong to the tissue population used for the
// normalization floor. Valid[v] == true means voxel v is included.
type Mask struct {
	Shape Shape
	Valid []bool
}

// LabelRule decides which label values of a mask image select a voxel.
type LabelRule int

const (
	// NonZeroLabels selects every voxel with a non-zero label.
	NonZeroLabels LabelRule = iota
	// LabelOne selects only voxels labelled exactly 1.
	LabelOne
)

// ParseLabelRule parses "nonzero" or "one".
func ParseLabelRule(s string) (LabelRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nonzero":
		return NonZeroLabels, nil
	case "one":
		return LabelOne, nil
	}
	return 0, fmt.Errorf("unknown mask label rule %q (want nonzero or one)", s)
}

func (r LabelRule) String() string {
	if r == LabelOne {
		return "one"
	}
	return "nonzero"
}

// Selects reports whether a voxel with this label is valid.
func (r LabelRule) Selects(label float64) bool {
	if r == LabelOne {
		return label == 1
	}
	return label != 0
}

// NewMask builds a mask from label values: any non-zero label is valid.
func NewMask(shape Shape, labels []float64) (*Mask, error) {
	return NewLabelMask(shape, labels, NonZeroLabels)
}

// NewLabelMask builds a mask selecting the labels accepted by rule.
func NewLabelMask(shape Shape, labels []float64, rule LabelRule) (*Mask, error) {
	if len(labels) != shape.Voxels() {
		return nil, fmt.Errorf("mask has %d voxels, expected %d (%s)", len(labels), shape.Voxels(), shape)
	}
	valid := make([]bool, len(labels))
	for i, l := range labels {
		valid[i] = rule.Selects(l)
	}
	return &Mask{Shape: shape, Valid: valid}, nil
}

// Count returns the number of valid voxels.
func (m *Mask) Count() int {
	n := 0
	for _, ok := range m.Valid {
		if ok {
			n++
		}
	}
	return n
}

// ParameterMaps holds the per-voxel outputs of one case, each voxel-indexed
// over Shape. Voxels whose normalization was degenerate carry NaN.
type ParameterMaps struct {
	Shape Shape

	// InitialSlope is the steepest early windowed slope (1/min)
	InitialSlope []float64

	// MaxEnhancement is the peak of the normalized curve
	MaxEnhancement []float64

	// TimeToMax is peak time minus onset time (min); it may be negative
	TimeToMax []float64

	// FinalSlope is the slope over the trailing window (1/min)
	FinalSlope []float64

	// OnsetTime is the start time of the steepest early window (min)
	OnsetTime []float64
}

// NewParameterMaps allocates zeroed maps for shape.
func NewParameterMaps(shape Shape) *ParameterMaps {
	n := shape.Voxels()
	return &ParameterMaps{
		Shape:          shape,
		InitialSlope:   make([]float64, n),
		MaxEnhancement: make([]float64, n),
		TimeToMax:      make([]float64, n),
		FinalSlope:     make([]float64, n),
		OnsetTime:      make([]float64, n),
	}
}

// Named returns the persisted maps keyed by their conventional file prefix.
func (p *ParameterMaps) Named(withOnset bool) []NamedMap {
	maps := []NamedMap{
		{Prefix: "IS_", Data: p.InitialSlope},
		{Prefix: "ME_", Data: p.MaxEnhancement},
		{Prefix: "TM_", Data: p.TimeToMax},
		{Prefix: "FS_", Data: p.FinalSlope},
	}
	if withOnset {
		maps = append(maps, NamedMap{Prefix: "OT_", Data: p.OnsetTime})
	}
	return maps
}

// NamedMap pairs a voxel-indexed map with its output file prefix.
type NamedMap struct {
	Prefix string
	Data   []float64
}
