package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dcemaps/internal/models"
	"dcemaps/pkg/nifti"
	"dcemaps/pkg/perfusion"
	"dcemaps/pkg/visualization"
)

// Options configures a Runner.
type Options struct {
	// Params are the analysis parameters shared by all cases
	Params perfusion.Params

	// Policy decides whether a failed case stops the batch
	Policy FailurePolicy

	// CaseWorkers is the number of cases processed at once (minimum 1)
	CaseWorkers int

	// OutputDir receives the parameter maps
	OutputDir string

	// SaveOnsetTime also persists the OT_ onset time map
	SaveOnsetTime bool

	// SavePreviews writes PNG slices of each map under OutputDir/previews
	SavePreviews bool

	// SaveCurvePlot writes the mean normalized curve chart under OutputDir/curves
	SaveCurvePlot bool
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case    Case
	Outputs []string

	// DegenerateVoxels counts voxels whose maps hold NaN
	DegenerateVoxels int

	Elapsed time.Duration
	Err     error

	// Skipped is set for cases never started, or interrupted, because the
	// batch stopped early
	Skipped bool
}

// Summary collects the results of a batch in case order.
type Summary struct {
	RunID   string
	Results []CaseResult
}

// Succeeded returns the number of cases that produced maps.
func (s *Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if !r.Skipped && r.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results of cases that returned an error.
func (s *Summary) Failed() []CaseResult {
	var failed []CaseResult
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Runner processes batches of cases.
type Runner struct {
	opts      Options
	loader    Loader
	writer    Writer
	extractor *perfusion.Extractor
	log       *logrus.Logger
}

// NewRunner creates a runner. A nil logger uses the logrus standard logger.
func NewRunner(opts Options, loader Loader, writer Writer, log *logrus.Logger) *Runner {
	if opts.CaseWorkers < 1 {
		opts.CaseWorkers = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		opts:      opts,
		loader:    loader,
		writer:    writer,
		extractor: perfusion.NewExtractor(opts.Params),
		log:       log,
	}
}

// Run processes cases in order with up to CaseWorkers in flight. Under
// FailFast the first case error cancels the remaining cases and is returned;
// under SkipAndContinue errors are only recorded in the summary.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString(), Results: make([]CaseResult, len(cases))}
	log := r.log.WithField("run", summary.RunID)
	log.WithFields(logrus.Fields{
		"cases":   len(cases),
		"workers": r.opts.CaseWorkers,
		"policy":  r.opts.Policy.String(),
	}).Info("Starting batch")

	for i, c := range cases {
		summary.Results[i] = CaseResult{Case: c, Skipped: true}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.CaseWorkers)
	var failures atomic.Int32

	for i, c := range cases {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := r.RunCase(gctx, c)
			entry := log.WithField("case", c.ID)
			if res.Err != nil && gctx.Err() != nil && errors.Is(res.Err, context.Canceled) {
				// interrupted by another case or the caller, not failed
				summary.Results[i] = CaseResult{Case: c, Elapsed: res.Elapsed, Skipped: true}
				entry.Debug("Case cancelled")
				return nil
			}
			summary.Results[i] = res

			if res.Err == nil {
				entry.WithFields(logrus.Fields{
					"outputs":    len(res.Outputs),
					"degenerate": res.DegenerateVoxels,
					"elapsed":    res.Elapsed.Round(time.Millisecond),
				}).Info("Case completed")
				return nil
			}

			failures.Add(1)
			entry.WithError(res.Err).Error("Case failed")
			if r.opts.Policy == FailFast {
				return fmt.Errorf("case %s: %w", c.ID, res.Err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded(),
		"failed":    failures.Load(),
	}).Info("Batch finished")
	return summary, err
}

// RunCase loads, extracts and persists a single case. Configuration and
// shape errors are detected before any voxel work and leave no outputs.
func (r *Runner) RunCase(ctx context.Context, c Case) CaseResult {
	start := time.Now()
	res := CaseResult{Case: c}
	fail := func(err error) CaseResult {
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}

	vol, err := r.loader.LoadVolume(ctx, c.VolumePath)
	if err != nil {
		return fail(asShapeError(pkgerrors.Wrap(err, "failed to load volume")))
	}
	var mask *models.Mask
	if c.MaskPath != "" {
		if mask, err = r.loader.LoadMask(ctx, c.MaskPath); err != nil {
			return fail(asShapeError(pkgerrors.Wrap(err, "failed to load mask")))
		}
	}

	r.log.WithFields(logrus.Fields{
		"case":       c.ID,
		"shape":      vol.Shape.String(),
		"timepoints": vol.Timepoints(),
		"masked":     mask != nil,
	}).Debug("Extracting parameter maps")

	result, err := r.extractor.Extract(vol, mask)
	if err != nil {
		return fail(err)
	}
	res.DegenerateVoxels = result.DegenerateVoxels

	name := c.OutputName()
	var outputs []Output
	for _, m := range result.Maps.Named(r.opts.SaveOnsetTime) {
		outputs = append(outputs, Output{
			Path:  filepath.Join(r.opts.OutputDir, m.Prefix+name),
			Meta:  vol.Meta,
			Shape: result.Maps.Shape,
			Data:  m.Data,
		})
	}
	if err := r.writer.WriteMaps(ctx, outputs); err != nil {
		return fail(pkgerrors.Wrap(err, "failed to write maps"))
	}
	for _, o := range outputs {
		res.Outputs = append(res.Outputs, o.Path)
	}

	r.saveQC(c, vol, mask, result)

	res.Elapsed = time.Since(start)
	return res
}

// saveQC writes optional previews; failures only warn.
func (r *Runner) saveQC(c Case, vol *models.TimeSeriesVolume, mask *models.Mask, result *perfusion.Result) {
	log := r.log.WithField("case", c.ID)
	base := nifti.TrimExtension(c.OutputName())

	if r.opts.SavePreviews {
		for _, m := range result.Maps.Named(r.opts.SaveOnsetTime) {
			viewer := visualization.NewViewer(m.Data, result.Maps.Shape)
			dir := filepath.Join(r.opts.OutputDir, "previews", base, m.Prefix[:2])
			if err := viewer.SaveSliceSequence("z", dir); err != nil {
				log.WithError(err).Warnf("Failed to save %s previews", m.Prefix[:2])
			}
		}
	}

	if r.opts.SaveCurvePlot {
		pipe, err := r.extractor.Prepare(vol, mask)
		if err != nil {
			log.WithError(err).Warn("Failed to prepare curve plot")
			return
		}
		mean, n := pipe.MeanCurve(vol, mask)
		path := filepath.Join(r.opts.OutputDir, "curves", base+".png")
		title := fmt.Sprintf("%s (mean of %d voxels)", c.ID, n)
		if err := visualization.PlotCurve(path, title, pipe.TimeAxis(), mean); err != nil {
			log.WithError(err).Warn("Failed to save curve plot")
		}
	}
}

// asShapeError reports images of the wrong dimensionality as shape errors.
func asShapeError(err error) error {
	if errors.Is(err, nifti.ErrDimensions) {
		return &perfusion.ShapeError{Reason: err.Error()}
	}
	return err
}
