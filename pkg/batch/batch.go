// Package batch runs the parameter-map pipeline over an explicit list of
// cases, persisting IS_, ME_, TM_ and FS_ maps per case.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dcemaps/internal/models"
	"dcemaps/pkg/nifti"
)

// FailurePolicy decides what a case-level error does to the rest of a batch.
type FailurePolicy int

const (
	// SkipAndContinue logs the failed case and carries on.
	SkipAndContinue FailurePolicy = iota
	// FailFast stops dispatching cases and returns the first error.
	FailFast
)

func (p FailurePolicy) String() string {
	if p == FailFast {
		return "fail-fast"
	}
	return "skip"
}

// ParseFailurePolicy accepts "skip" or "fail-fast".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip", "skip-and-continue":
		return SkipAndContinue, nil
	case "fail-fast", "failfast":
		return FailFast, nil
	}
	return SkipAndContinue, fmt.Errorf("unknown failure policy %q (must be skip or fail-fast)", s)
}

// Case describes one acquisition to process.
type Case struct {
	// ID names the case in logs
	ID string

	// VolumePath is the 4D DCE image
	VolumePath string

	// MaskPath is an optional 3D mask in the same space
	MaskPath string
}

// OutputName is the file name the maps of this case are derived from.
func (c Case) OutputName() string {
	if c.VolumePath != "" {
		return filepath.Base(c.VolumePath)
	}
	return c.ID + ".nii.gz"
}

// Discover lists the files in dir ending with ext as cases, sorted by name.
// When maskDir is set, each case is paired with the mask of the same file
// name in maskDir.
func Discover(dir, ext, maskDir string) ([]Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	var cases []Case
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		c := Case{
			ID:         strings.TrimSuffix(e.Name(), ext),
			VolumePath: filepath.Join(dir, e.Name()),
		}
		if maskDir != "" {
			c.MaskPath = filepath.Join(maskDir, e.Name())
		}
		cases = append(cases, c)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].VolumePath < cases[j].VolumePath })
	return cases, nil
}

// Loader reads case inputs.
type Loader interface {
	LoadVolume(ctx context.Context, path string) (*models.TimeSeriesVolume, error)
	LoadMask(ctx context.Context, path string) (*models.Mask, error)
}

// Output is one map ready to persist.
type Output struct {
	Path  string
	Meta  any
	Shape models.Shape
	Data  []float64
}

// Writer persists the outputs of a case. Either all outputs are written or
// none are left behind.
type Writer interface {
	WriteMaps(ctx context.Context, outputs []Output) error
}

// NiftiIO loads and writes NIfTI-1 files. MaskRule selects which mask
// labels are valid; the zero value accepts any non-zero label.
type NiftiIO struct {
	MaskRule models.LabelRule
}

// LoadVolume reads a 4D image.
func (NiftiIO) LoadVolume(_ context.Context, path string) (*models.TimeSeriesVolume, error) {
	img, err := nifti.Read(path)
	if err != nil {
		return nil, err
	}
	return img.TimeSeries()
}

// LoadMask reads a 3D mask and applies MaskRule to its labels.
func (n NiftiIO) LoadMask(_ context.Context, path string) (*models.Mask, error) {
	img, err := nifti.Read(path)
	if err != nil {
		return nil, err
	}
	shape, labels, err := img.Volume()
	if err != nil {
		return nil, err
	}
	return models.NewLabelMask(shape, labels, n.MaskRule)
}

// WriteMaps writes every output to a temporary file first and renames them
// into place only once all were written.
func (NiftiIO) WriteMaps(ctx context.Context, outputs []Output) error {
	var written []string
	cleanup := func() {
		for _, p := range written {
			os.Remove(p)
		}
	}
	for _, o := range outputs {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		tmp := tempName(o.Path)
		if err := nifti.Write(tmp, o.Meta, o.Shape, 1, o.Data); err != nil {
			cleanup()
			return err
		}
		written = append(written, tmp)
	}
	for i, o := range outputs {
		if err := os.Rename(written[i], o.Path); err != nil {
			for _, done := range outputs[:i] {
				os.Remove(done.Path)
			}
			written = written[i:]
			cleanup()
			return fmt.Errorf("failed to move %s into place: %w", o.Path, err)
		}
	}
	return nil
}

// tempName keeps the extension so the writer still compresses .gz outputs.
func tempName(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, ".tmp-"+base)
}
