// Package nifti implements the subset of the NIfTI-1 format needed for
// single-file (.nii) functional MRI volumes: the fixed 348-byte header, raw
// voxel storage, and the shape manipulations used when assembling 4-D runs.
//
// Header layout follows the official definition,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

// Data type codes for the Datatype header field.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
)

// Unit codes for the XYZTUnits header field.
const (
	UnitsMillimeter int8 = 2
	UnitsSecond     int8 = 8
)

// Transform codes for QFormCode/SFormCode.
const (
	XFormUnknown    int16 = 0
	XFormScannerAnat int16 = 1
	XFormAlignedAnat int16 = 2
)

const (
	headerSize    = 348
	singleFileVox = 352 // header + 4 byte extension flag
)

// magicSingle marks a single-file NIfTI-1 image ("n+1\0").
var magicSingle = [4]byte{'n', '+', '1', 0}

// Header is the NIfTI-1 header as stored on disk. Field order and sizes are
// binary-compatible with the C struct; it is read and written whole with
// encoding/binary.
//
// C to Go translation: int -> int32, float -> float32, short -> int16,
// char -> int8 (byte for text fields).
type Header struct {
	SizeOfHdr          int32    // must be 348
	UnusedDataType     [10]byte // unused
	UnusedDbName       [18]byte // unused
	UnusedExtents      int32    // unused
	UnusedSessionError int16    // unused
	UnusedRegular      byte     // unused
	DimInfo            int8     // MRI slice ordering

	Dim           [8]int16   // data array dimensions, Dim[0] = rank
	IntentP1      float32    // 1st intent parameter
	IntentP2      float32    // 2nd intent parameter
	IntentP3      float32    // 3rd intent parameter
	IntentCode    int16      // NIFTI_INTENT_* code
	Datatype      int16      // voxel data type, DT* code
	BitPix        int16      // bits per voxel
	SliceStart    int16      // first slice index
	PixDim        [8]float32 // grid spacing; PixDim[4] is the TR
	VoxOffset     float32    // offset into .nii file
	SclSlope      float32    // data scaling: slope
	SclInter      float32    // data scaling: offset
	SliceEnd      int16      // last slice index
	SliceCode     int8       // slice timing order
	XYZTUnits     int8       // units of PixDim[1..4]
	CalMax        float32    // max display intensity
	CalMin        float32    // min display intensity
	SliceDuration float32    // time for one slice
	TOffset       float32    // time axis shift
	UnusedGlmax   int32      // unused
	UnusedGlmin   int32      // unused

	Descrip [80]byte // free text
	AuxFile [24]byte // auxiliary filename

	QFormCode int16 // NIFTI_XFORM_* code
	SFormCode int16 // NIFTI_XFORM_* code

	QuaternB float32 // quaternion b
	QuaternC float32 // quaternion c
	QuaternD float32 // quaternion d
	QOffsetX float32 // quaternion x shift
	QOffsetY float32 // quaternion y shift
	QOffsetZ float32 // quaternion z shift

	SRowX [4]float32 // 1st row of affine transform
	SRowY [4]float32 // 2nd row of affine transform
	SRowZ [4]float32 // 3rd row of affine transform

	IntentName [16]byte // meaning of the data

	Magic [4]byte // "n+1\0" for single-file images
}

// Rank returns the number of dimensions declared in the header.
func (h *Header) Rank() int {
	return int(h.Dim[0])
}

// Dims returns the declared dimensions as a slice of length Rank.
func (h *Header) Dims() []int {
	dims := make([]int, h.Rank())
	for i := range dims {
		dims[i] = int(h.Dim[i+1])
	}
	return dims
}

// NumVoxels returns the total voxel count declared by Dim.
func (h *Header) NumVoxels() int {
	n := 1
	for _, d := range h.Dims() {
		n *= d
	}
	return n
}

// BytesPerVoxel returns the on-disk size of one voxel.
func (h *Header) BytesPerVoxel() int {
	return int(h.BitPix) / 8
}

// Affine returns the sform affine as a 4x4 row-major matrix.
func (h *Header) Affine() [4][4]float64 {
	var m [4][4]float64
	rows := [3][4]float32{h.SRowX, h.SRowY, h.SRowZ}
	for i, row := range rows {
		for j, v := range row {
			m[i][j] = float64(v)
		}
	}
	m[3] = [4]float64{0, 0, 0, 1}
	return m
}

// SetAffine stores a 4x4 row-major affine into the sform rows and marks the
// sform as scanner-anatomical.
func (h *Header) SetAffine(m [4][4]float64) {
	for j := 0; j < 4; j++ {
		h.SRowX[j] = float32(m[0][j])
		h.SRowY[j] = float32(m[1][j])
		h.SRowZ[j] = float32(m[2][j])
	}
	h.SFormCode = XFormScannerAnat
}

// bitsFor returns the BitPix value for a datatype code.
func bitsFor(datatype int16) int16 {
	switch datatype {
	case DTUint8:
		return 8
	case DTInt16:
		return 16
	case DTInt32, DTFloat32:
		return 32
	case DTFloat64:
		return 64
	default:
		return 0
	}
}
