// Package nifti reads and writes single-file NIfTI-1 images (.nii, .nii.gz).
//
// It is the volume loader and writer around the parameter-map pipeline: the
// Header is handed through the pipeline untouched so outputs keep the
// orientation of their source. Only what DCE processing needs is supported.
// Header extensions are skipped using vox_offset and never written back;
// .hdr/.img pairs and NIfTI-2 are rejected.
package nifti

import (
	"encoding/binary"
	"fmt"
)

const (
	headerSize    = 348
	minDataOffset = 352
)

// Datatype codes (NIFTI_TYPE_*).
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
	DTInt8    = 256
	DTUint16  = 512
	DTUint32  = 768
)

var magicSingleFile = [4]byte{'n', '+', '1', 0}

// Header is the 348-byte NIfTI-1 header.
type Header struct {
	SizeOfHdr      int32
	DataTypeUnused [10]byte
	DbName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte

	Dim        [8]int16
	IntentP1   float32
	IntentP2   float32
	IntentP3   float32
	IntentCode int16
	DataType   int16
	BitPix     int16
	SliceStart int16
	PixDim     [8]float32
	VoxOffset  float32
	SclSlope   float32
	SclInter   float32
	SliceEnd   int16
	SliceCode  byte
	XYZTUnits  byte
	CalMax     float32
	CalMin     float32
	SliceDur   float32
	TOffset    float32
	Glmax      int32
	Glmin      int32

	Descrip [80]byte
	AuxFile [24]byte

	QFormCode int16
	SFormCode int16
	QuaternB  float32
	QuaternC  float32
	QuaternD  float32
	QOffsetX  float32
	QOffsetY  float32
	QOffsetZ  float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]byte
	Magic      [4]byte
}

// NDim returns dim[0].
func (h *Header) NDim() int {
	return int(h.Dim[0])
}

// Dims returns dim[1..dim[0]].
func (h *Header) Dims() []int {
	n := h.NDim()
	dims := make([]int, n)
	for i := range dims {
		dims[i] = int(h.Dim[i+1])
	}
	return dims
}

// TemporalResolution returns pixdim[4] in seconds, converting from the
// units recorded in xyzt_units. Zero means unknown.
func (h *Header) TemporalResolution() float64 {
	dt := float64(h.PixDim[4])
	switch h.XYZTUnits & 0x38 {
	case 16: // msec
		return dt / 1000
	case 24: // usec
		return dt / 1e6
	}
	return dt
}

// SetDescription stores s, truncated, in the descrip field.
func (h *Header) SetDescription(s string) {
	h.Descrip = [80]byte{}
	copy(h.Descrip[:len(h.Descrip)-1], s)
}

func bytesPerVoxel(datatype int16) (int, error) {
	switch datatype {
	case DTUint8, DTInt8:
		return 1, nil
	case DTInt16, DTUint16:
		return 2, nil
	case DTInt32, DTUint32, DTFloat32:
		return 4, nil
	case DTFloat64:
		return 8, nil
	}
	return 0, fmt.Errorf("unsupported datatype %d", datatype)
}

// byteOrder infers the file byte order from sizeof_hdr.
func byteOrder(b []byte) (binary.ByteOrder, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("file too short for a NIfTI-1 header: %d bytes", len(b))
	}
	if binary.LittleEndian.Uint32(b) == headerSize {
		return binary.LittleEndian, nil
	}
	if binary.BigEndian.Uint32(b) == headerSize {
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("sizeof_hdr is not %d in either byte order", headerSize)
}

func (h *Header) validate() error {
	if h.Magic != magicSingleFile {
		return fmt.Errorf("unsupported magic %q: only single-file NIfTI-1 is supported", h.Magic[:3])
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return fmt.Errorf("dim[0] = %d is out of range [1, 7]", h.Dim[0])
	}
	for i := 1; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] < 1 {
			return fmt.Errorf("dim[%d] = %d must be positive", i, h.Dim[i])
		}
	}
	if _, err := bytesPerVoxel(h.DataType); err != nil {
		return err
	}
	return nil
}

// defaultHeader is used when writing data that did not come from a file.
func defaultHeader() Header {
	h := Header{SizeOfHdr: headerSize, Magic: magicSingleFile}
	h.PixDim = [8]float32{1, 1, 1, 1, 1, 1, 1, 1}
	h.XYZTUnits = 2 | 8 // mm, sec
	return h
}
