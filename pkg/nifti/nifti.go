package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"dcemaps/internal/models"
)

// ErrDimensions is returned when an image does not have the dimensionality
// the caller asked for.
var ErrDimensions = errors.New("unexpected image dimensions")

// Image is a decoded NIfTI-1 image. Data holds the scaled samples in file
// order (x fastest, then y, z, t).
type Image struct {
	Header Header
	Data   []float64
}

// Read loads a .nii or .nii.gz file.
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if isGzip(path) {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read gzip stream of %s", path)
		}
		defer gz.Close()
		r = gz
	}

	img, err := Decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return img, nil
}

// Decode reads an uncompressed single-file NIfTI-1 stream.
func Decode(r io.Reader) (*Image, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image")
	}
	order, err := byteOrder(raw)
	if err != nil {
		return nil, err
	}

	img := &Image{}
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), order, &img.Header); err != nil {
		return nil, errors.Wrap(err, "failed to parse header")
	}
	h := &img.Header
	if err := h.validate(); err != nil {
		return nil, err
	}

	size, _ := bytesPerVoxel(h.DataType)
	offset := minDataOffset
	if vox := float64(h.VoxOffset); vox > minDataOffset {
		if vox > float64(len(raw)) {
			return nil, errors.Errorf("truncated data: vox_offset %g beyond end of file (%d bytes)", vox, len(raw))
		}
		offset = int(vox)
	}
	if offset > len(raw) {
		return nil, errors.Errorf("truncated data: no bytes after offset %d", offset)
	}

	// bound the voxel count by the bytes present so the product cannot overflow
	avail := (len(raw) - offset) / size
	n := 1
	for _, d := range h.Dims() {
		if d > avail/n {
			return nil, errors.Errorf("truncated data: dimensions %v need more than the %d bytes after offset %d", h.Dims(), len(raw)-offset, offset)
		}
		n *= d
	}

	img.Data = decodeSamples(raw[offset:offset+n*size], h.DataType, order, n)

	if slope := float64(h.SclSlope); slope != 0 && !(slope == 1 && h.SclInter == 0) {
		inter := float64(h.SclInter)
		for i, v := range img.Data {
			img.Data[i] = v*slope + inter
		}
	}
	return img, nil
}

func decodeSamples(b []byte, datatype int16, order binary.ByteOrder, n int) []float64 {
	out := make([]float64, n)
	switch datatype {
	case DTUint8:
		for i := range out {
			out[i] = float64(b[i])
		}
	case DTInt8:
		for i := range out {
			out[i] = float64(int8(b[i]))
		}
	case DTInt16:
		for i := range out {
			out[i] = float64(int16(order.Uint16(b[2*i:])))
		}
	case DTUint16:
		for i := range out {
			out[i] = float64(order.Uint16(b[2*i:]))
		}
	case DTInt32:
		for i := range out {
			out[i] = float64(int32(order.Uint32(b[4*i:])))
		}
	case DTUint32:
		for i := range out {
			out[i] = float64(order.Uint32(b[4*i:]))
		}
	case DTFloat32:
		for i := range out {
			out[i] = float64(math.Float32frombits(order.Uint32(b[4*i:])))
		}
	case DTFloat64:
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(b[8*i:]))
		}
	}
	return out
}

// Shape returns the spatial grid. Images with fewer than three dimensions
// are treated as having extent 1 along the missing axes.
func (img *Image) Shape() models.Shape {
	s := models.Shape{X: 1, Y: 1, Z: 1}
	dims := img.Header.Dims()
	if len(dims) > 0 {
		s.X = dims[0]
	}
	if len(dims) > 1 {
		s.Y = dims[1]
	}
	if len(dims) > 2 {
		s.Z = dims[2]
	}
	return s
}

// TimeSeries converts a 4D image into the voxel-major arena. The header is
// attached as the volume's metadata.
func (img *Image) TimeSeries() (*models.TimeSeriesVolume, error) {
	if img.Header.NDim() != 4 {
		return nil, errors.Wrapf(ErrDimensions, "expected a 4D image, got %dD", img.Header.NDim())
	}
	shape := img.Shape()
	t := int(img.Header.Dim[4])
	nx, nxy := shape.X, shape.X*shape.Y
	nxyz := nxy * shape.Z

	data := make([]float64, nxyz*t)
	for x := 0; x < shape.X; x++ {
		for y := 0; y < shape.Y; y++ {
			for z := 0; z < shape.Z; z++ {
				v := shape.Index(x, y, z)
				src := x + nx*y + nxy*z
				for i := 0; i < t; i++ {
					data[v*t+i] = img.Data[src+nxyz*i]
				}
			}
		}
	}
	return models.NewTimeSeriesVolume(shape, t, data, img.Header)
}

// Volume converts a 3D image (or a 4D image with a single timepoint) into a
// voxel-indexed slice.
func (img *Image) Volume() (models.Shape, []float64, error) {
	nd := img.Header.NDim()
	if nd > 4 || nd < 1 || (nd == 4 && img.Header.Dim[4] != 1) {
		return models.Shape{}, nil, errors.Wrapf(ErrDimensions, "expected a 3D image, got %v", img.Header.Dims())
	}
	shape := img.Shape()
	return shape, fromFileOrder(shape, img.Data), nil
}

func fromFileOrder(shape models.Shape, src []float64) []float64 {
	dst := make([]float64, shape.Voxels())
	i := 0
	for z := 0; z < shape.Z; z++ {
		for y := 0; y < shape.Y; y++ {
			for x := 0; x < shape.X; x++ {
				dst[shape.Index(x, y, z)] = src[i]
				i++
			}
		}
	}
	return dst
}

// Encode writes a float64 image built from meta. meta is a Header (or
// *Header) from a previously read image, or nil for a default header. data
// is voxel-major with timepoints innermost; timepoints is 1 for 3D output.
func Encode(w io.Writer, meta any, shape models.Shape, timepoints int, data []float64) error {
	if len(data) != shape.Voxels()*timepoints {
		return errors.Errorf("data length %d does not match %s x %d", len(data), shape, timepoints)
	}

	h := defaultHeader()
	switch m := meta.(type) {
	case Header:
		h = m
	case *Header:
		h = *m
	}
	h.SizeOfHdr = headerSize
	h.Magic = magicSingleFile
	h.Dim = [8]int16{3, int16(shape.X), int16(shape.Y), int16(shape.Z), 1, 1, 1, 1}
	if timepoints > 1 {
		h.Dim[0] = 4
		h.Dim[4] = int16(timepoints)
	}
	h.DataType = DTFloat64
	h.BitPix = 64
	h.VoxOffset = minDataOffset
	h.SclSlope = 1
	h.SclInter = 0
	h.CalMin, h.CalMax = 0, 0

	order := binary.LittleEndian
	if err := binary.Write(w, order, &h); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	// no extensions
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return errors.Wrap(err, "failed to write extension flag")
	}

	buf := make([]byte, 8*shape.X)
	for t := 0; t < timepoints; t++ {
		for z := 0; z < shape.Z; z++ {
			for y := 0; y < shape.Y; y++ {
				for x := 0; x < shape.X; x++ {
					v := shape.Index(x, y, z)
					order.PutUint64(buf[8*x:], math.Float64bits(data[v*timepoints+t]))
				}
				if _, err := w.Write(buf); err != nil {
					return errors.Wrap(err, "failed to write data")
				}
			}
		}
	}
	return nil
}

// Write encodes an image to path, compressing when the name ends in .gz.
func Write(path string, meta any, shape models.Shape, timepoints int, data []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create image")
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var gz *gzip.Writer
	if isGzip(path) {
		gz = gzip.NewWriter(bw)
		w = gz
	}
	if err := Encode(w, meta, shape, timepoints, data); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return errors.Wrap(err, "failed to finish gzip stream")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush image")
	}
	return f.Close()
}

// WriteTimeSeries writes a 4D volume with its own metadata.
func WriteTimeSeries(path string, vol *models.TimeSeriesVolume) error {
	return Write(path, vol.Meta, vol.Shape, vol.Timepoints(), vol.Data.RawMatrix().Data)
}

// TrimExtension removes .nii or .nii.gz from a file name.
func TrimExtension(name string) string {
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, ".nii")
}

func isGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}
