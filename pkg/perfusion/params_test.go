package perfusion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		TemporalResolution:  30,
		WindowSize:          2,
		OnsetTimeConstraint: 2.0,
		FinalSlopeTime:      1.0,
		NumCores:            2,
	}
}

func TestTimeAxisMinutes(t *testing.T) {
	axis := validParams().TimeAxis(6)
	assert.Equal(t, []float64{0, 0.5, 1.0, 1.5, 2.0, 2.5}, axis)
}

func TestOnsetIndexIsInclusive(t *testing.T) {
	p := validParams()
	axis := p.TimeAxis(6)

	assert.Equal(t, 4, p.OnsetIndex(axis))

	p.OnsetTimeConstraint = 0
	assert.Equal(t, 0, p.OnsetIndex(axis))

	p.OnsetTimeConstraint = 100
	assert.Equal(t, 5, p.OnsetIndex(axis))
}

func TestFinalWindowSizeRounding(t *testing.T) {
	p := validParams()
	axis := p.TimeAxis(10)

	p.FinalSlopeTime = 1.7 // 3.4 timepoints
	assert.Equal(t, 3, p.FinalWindowSize(axis))

	p.FinalWindowRounding = Nearest
	p.FinalSlopeTime = 1.8 // 3.6 timepoints
	assert.Equal(t, 4, p.FinalWindowSize(axis))

	p.FinalWindowRounding = Truncate
	assert.Equal(t, 3, p.FinalWindowSize(axis))
}

func TestParseRounding(t *testing.T) {
	r, err := ParseRounding("Nearest")
	require.NoError(t, err)
	assert.Equal(t, Nearest, r)

	r, err = ParseRounding("")
	require.NoError(t, err)
	assert.Equal(t, Truncate, r)

	_, err = ParseRounding("ceil")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
		t      int
		param  string
		shape  bool
	}{
		{name: "valid", modify: func(*Params) {}, t: 6},
		{name: "too few timepoints", modify: func(*Params) {}, t: 2, shape: true},
		{name: "zero resolution", modify: func(p *Params) { p.TemporalResolution = 0 }, t: 6, param: "temporal_resolution"},
		{name: "negative resolution", modify: func(p *Params) { p.TemporalResolution = -3 }, t: 6, param: "temporal_resolution"},
		{name: "window too small", modify: func(p *Params) { p.WindowSize = 1 }, t: 6, param: "window_size"},
		{name: "window too large", modify: func(p *Params) { p.WindowSize = 7 }, t: 6, param: "window_size"},
		{name: "negative onset", modify: func(p *Params) { p.OnsetTimeConstraint = -0.1 }, t: 6, param: "onset_time_constraint"},
		{name: "final window too short", modify: func(p *Params) { p.FinalSlopeTime = 0.6 }, t: 6, param: "final_slope_time"},
		{name: "final window too long", modify: func(p *Params) { p.FinalSlopeTime = 10 }, t: 6, param: "final_slope_time"},
		{name: "final time zero", modify: func(p *Params) { p.FinalSlopeTime = 0 }, t: 6, param: "final_slope_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.modify(&p)
			err := p.Validate(tt.t)

			switch {
			case tt.shape:
				assert.ErrorIs(t, err, ErrShape)
			case tt.param != "":
				var cfgErr *ConfigError
				require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
				assert.Equal(t, tt.param, cfgErr.Param)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
