package perfusion

import (
	"fmt"
	"math"
	"runtime"
	"strings"
)

// Rounding selects how the final-slope window length is derived from
// final_slope_time / time_step when the ratio is not an integer.
type Rounding int

const (
	// Truncate drops the fractional part (integer conversion).
	Truncate Rounding = iota
	// Nearest rounds half away from zero.
	Nearest
)

// ParseRounding accepts "truncate" or "nearest" (case-insensitive).
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truncate":
		return Truncate, nil
	case "nearest":
		return Nearest, nil
	}
	return Truncate, fmt.Errorf("unknown rounding %q (must be truncate or nearest)", s)
}

func (r Rounding) String() string {
	if r == Nearest {
		return "nearest"
	}
	return "truncate"
}

// Params holds the acquisition and analysis parameters of one case.
type Params struct {
	// TemporalResolution is the interval between timepoints in seconds
	TemporalResolution float64

	// WindowSize is the sliding window length for the initial slope, in timepoints
	WindowSize int

	// OnsetTimeConstraint is the latest time (minutes) at which the
	// steepest early window may start
	OnsetTimeConstraint float64

	// FinalSlopeTime is the length (minutes) of the trailing window
	FinalSlopeTime float64

	// FinalWindowRounding converts FinalSlopeTime into timepoints
	FinalWindowRounding Rounding

	// NumCores is the number of workers sharing the voxel range.
	// Zero or negative means runtime.NumCPU().
	NumCores int
}

func (p Params) workers() int {
	if p.NumCores <= 0 {
		return runtime.NumCPU()
	}
	return p.NumCores
}

// TimeAxis returns time[t] = t * TemporalResolution / 60 in minutes.
func (p Params) TimeAxis(timepoints int) []float64 {
	axis := make([]float64, timepoints)
	for t := range axis {
		axis[t] = float64(t) * p.TemporalResolution / 60
	}
	return axis
}

// FinalWindowSize returns the number of trailing timepoints the final slope
// is fitted over, for the given time axis.
func (p Params) FinalWindowSize(axis []float64) int {
	if len(axis) < 2 {
		return 0
	}
	ratio := p.FinalSlopeTime / (axis[1] - axis[0])
	if p.FinalWindowRounding == Nearest {
		return int(math.Round(ratio))
	}
	return int(ratio)
}

// OnsetIndex returns the largest index t with axis[t] <= OnsetTimeConstraint,
// or -1 when no timepoint qualifies.
func (p Params) OnsetIndex(axis []float64) int {
	idx := -1
	for t, v := range axis {
		if v <= p.OnsetTimeConstraint {
			idx = t
		}
	}
	return idx
}

// Validate checks the parameters against a series of the given length.
func (p Params) Validate(timepoints int) error {
	if timepoints < baselineWindow {
		return &ShapeError{Reason: fmt.Sprintf("need at least %d timepoints, got %d", baselineWindow, timepoints)}
	}
	if !(p.TemporalResolution > 0) || math.IsInf(p.TemporalResolution, 0) {
		return configErrorf("temporal_resolution", "must be a positive number of seconds, got %v", p.TemporalResolution)
	}
	if p.WindowSize < 2 || p.WindowSize > timepoints {
		return configErrorf("window_size", "must be in [2, %d], got %d", timepoints, p.WindowSize)
	}
	if !(p.OnsetTimeConstraint >= 0) {
		return configErrorf("onset_time_constraint", "must be >= 0 minutes, got %v", p.OnsetTimeConstraint)
	}
	if !(p.FinalSlopeTime > 0) || math.IsInf(p.FinalSlopeTime, 0) {
		return configErrorf("final_slope_time", "must be a positive number of minutes, got %v", p.FinalSlopeTime)
	}
	axis := p.TimeAxis(timepoints)
	if p.OnsetIndex(axis) < 0 {
		return configErrorf("onset_time_constraint", "%v selects no timepoint", p.OnsetTimeConstraint)
	}
	if wf := p.FinalWindowSize(axis); wf < 2 || wf > timepoints {
		return configErrorf("final_slope_time", "%v min spans %d timepoints, must be in [2, %d]", p.FinalSlopeTime, wf, timepoints)
	}
	return nil
}
