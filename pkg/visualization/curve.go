package visualization

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotCurve saves a line chart of an enhancement curve against time in
// minutes. The format follows the file extension (png, svg, pdf).
func PlotCurve(path, title string, times, values []float64) error {
	if len(times) != len(values) {
		return fmt.Errorf("curve has %d times and %d values", len(times), len(values))
	}

	pts := make(plotter.XYs, 0, len(times))
	for i := range times {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: times[i], Y: values[i]})
	}
	if len(pts) == 0 {
		return fmt.Errorf("curve has no finite samples")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (min)"
	p.Y.Label.Text = "Normalized signal"
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("failed to build curve: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line, points)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
