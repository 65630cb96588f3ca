package visualization

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"dcemaps/internal/models"
)

// TestNewViewer verifies that the display window spans the finite values
func TestNewViewer(t *testing.T) {
	shape := models.Shape{X: 4, Y: 3, Z: 2}
	data := make([]float64, shape.Voxels())
	for i := range data {
		data[i] = float64(i) - 5
	}
	data[3] = math.NaN()
	data[4] = math.Inf(1)

	viewer := NewViewer(data, shape)

	lo, hi := viewer.Window()
	if lo != -5 {
		t.Errorf("Expected window low -5, got %f", lo)
	}
	if hi != float64(shape.Voxels()-6) {
		t.Errorf("Expected window high %d, got %f", shape.Voxels()-6, hi)
	}
}

// TestExtractSlice verifies that slices are correctly extracted from the map
func TestExtractSlice(t *testing.T) {
	shape := models.Shape{X: 10, Y: 8, Z: 5}
	data := make([]float64, shape.Voxels())

	// Fill with test pattern: each slice along Z has a unique value
	for x := 0; x < shape.X; x++ {
		for y := 0; y < shape.Y; y++ {
			for z := 0; z < shape.Z; z++ {
				data[shape.Index(x, y, z)] = float64(z)
			}
		}
	}

	viewer := NewViewer(data, shape)

	// Test extracting Z slices
	for z := 0; z < shape.Z; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != shape.X || bounds.Dy() != shape.Y {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				shape.X, shape.Y, bounds.Dx(), bounds.Dy())
		}

		gray16Img, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}

		expectedValue := uint16(float64(z) / float64(shape.Z-1) * 65535)
		centerValue := gray16Img.Gray16At(shape.X/2, shape.Y/2).Y
		if math.Abs(float64(centerValue)-float64(expectedValue)) > 1.0 {
			t.Errorf("Expected Z slice value ~%d at center, got %d", expectedValue, centerValue)
		}
	}

	imgX, err := viewer.ExtractSlice("x", shape.X/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != shape.Y || b.Dy() != shape.Z {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", shape.Y, shape.Z, b.Dx(), b.Dy())
	}

	imgY, err := viewer.ExtractSlice("y", shape.Y/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != shape.X || b.Dy() != shape.Z {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", shape.X, shape.Z, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}

	if _, err := viewer.ExtractSlice("z", shape.Z+1); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
}

// TestExtractSliceRendersNaNBlack verifies degenerate voxels are black
func TestExtractSliceRendersNaNBlack(t *testing.T) {
	shape := models.Shape{X: 2, Y: 1, Z: 1}
	viewer := NewViewer([]float64{math.NaN(), 3}, shape)

	img, err := viewer.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}

	gray := img.(*image.Gray16)
	if v := gray.Gray16At(0, 0).Y; v != 0 {
		t.Errorf("Expected NaN voxel to render black, got %d", v)
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	tempDir := t.TempDir()

	shape := models.Shape{X: 5, Y: 5, Z: 3}
	data := make([]float64, shape.Voxels())
	for i := range data {
		data[i] = float64(i % 7)
	}

	viewer := NewViewer(data, shape)

	outputDir := filepath.Join(tempDir, "slices")
	if err := viewer.SaveSliceSequence("z", outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < shape.Z; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.png", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if err := viewer.SaveSliceSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestPlotCurve verifies that a curve chart is written
func TestPlotCurve(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	path := filepath.Join(t.TempDir(), "curves", "case01.png")
	times := []float64{0, 0.5, 1, 1.5, 2}
	values := []float64{1, 1, 1.8, math.NaN(), 1.6}

	if err := PlotCurve(path, "case01", times, values); err != nil {
		t.Fatalf("Failed to plot curve: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("Expected non-empty chart at %s (err: %v)", path, err)
	}

	if err := PlotCurve(path, "bad", times, values[:2]); err == nil {
		t.Error("Expected error for mismatched lengths, got nil")
	}
	if err := PlotCurve(path, "empty", []float64{0}, []float64{math.NaN()}); err == nil {
		t.Error("Expected error for a curve without finite samples, got nil")
	}
}
