package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"dcemaps/internal/models"
)

// Viewer renders 2D slices of a voxel-indexed 3D map as grayscale images.
// Intensities are windowed to the finite [min, max] range of the map; NaN
// voxels render black.
type Viewer struct {
	// data holds the voxel-indexed map
	data []float64

	// shape is the spatial grid of the map
	shape models.Shape

	// lo and hi bound the display window
	lo, hi float64
}

// NewViewer creates a viewer over data laid out by shape.Index.
func NewViewer(data []float64, shape models.Shape) *Viewer {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		lo, hi = 0, 1
	}
	return &Viewer{data: data, shape: shape, lo: lo, hi: hi}
}

// Window returns the display range.
func (v *Viewer) Window() (lo, hi float64) {
	return v.lo, v.hi
}

func (v *Viewer) gray(x, y, z int) color.Gray16 {
	val := v.data[v.shape.Index(x, y, z)]
	if math.IsNaN(val) || v.hi == v.lo {
		return color.Gray16{}
	}
	scaled := (val - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, scaled*65535)))}
}

// ExtractSlice extracts a 2D slice from the map along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Extract slice along YZ plane
		if position >= v.shape.X {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.shape.X)
		}

		img = image.NewGray16(image.Rect(0, 0, v.shape.Y, v.shape.Z))
		for z := 0; z < v.shape.Z; z++ {
			for y := 0; y < v.shape.Y; y++ {
				img.SetGray16(y, z, v.gray(position, y, z))
			}
		}

	case "y", "Y":
		// Extract slice along XZ plane
		if position >= v.shape.Y {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.shape.Y)
		}

		img = image.NewGray16(image.Rect(0, 0, v.shape.X, v.shape.Z))
		for z := 0; z < v.shape.Z; z++ {
			for x := 0; x < v.shape.X; x++ {
				img.SetGray16(x, z, v.gray(x, position, z))
			}
		}

	case "z", "Z":
		// Extract slice along XY plane
		if position >= v.shape.Z {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.shape.Z)
		}

		img = image.NewGray16(image.Rect(0, 0, v.shape.X, v.shape.Y))
		for y := 0; y < v.shape.Y; y++ {
			for x := 0; x < v.shape.X; x++ {
				img.SetGray16(x, y, v.gray(x, y, position))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.shape.X
	case "y", "Y":
		maxPos = v.shape.Y
	case "z", "Z":
		maxPos = v.shape.Z
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
