package nifti

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"dcemaps/internal/models"
)

// TimepointFiles lists the files in dir ending with ext, in name order.
func TimepointFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list timepoints")
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Stack reads 3D timepoint images and concatenates them, in the given order,
// into one 4D volume carrying the first image's header. A positive
// temporalResolution (seconds) is recorded in pixdim[4].
func Stack(paths []string, temporalResolution float64) (*models.TimeSeriesVolume, error) {
	if len(paths) == 0 {
		return nil, errors.New("no timepoint images")
	}

	var (
		header Header
		shape  models.Shape
		frames = make([][]float64, 0, len(paths))
	)
	for i, path := range paths {
		img, err := Read(path)
		if err != nil {
			return nil, err
		}
		s, frame, err := img.Volume()
		if err != nil {
			return nil, errors.Wrapf(err, "timepoint %s", path)
		}
		if i == 0 {
			header, shape = img.Header, s
		} else if s != shape {
			return nil, errors.Wrapf(ErrDimensions, "timepoint %s is %s, expected %s", path, s, shape)
		}
		frames = append(frames, frame)
	}

	if temporalResolution > 0 {
		header.PixDim[4] = float32(temporalResolution)
		header.XYZTUnits = header.XYZTUnits&0x07 | 8 // seconds
	}
	return models.StackTimepoints(shape, frames, header)
}
