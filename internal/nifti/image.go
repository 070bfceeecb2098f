package nifti

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Image is a NIfTI-1 image held in memory: a header plus the raw voxel
// bytes. Voxels are stored x-fastest (column-major), so the time axis is the
// slowest-varying dimension and a 4-D run is a plain concatenation of its
// 3-D volumes.
type Image struct {
	Header Header
	data   []byte
}

// NewImage builds an image from raw voxel bytes. dims is the full shape
// (3 or 4 entries), pixdim the corresponding grid spacings in mm (and
// seconds for the 4th entry). The data length must match the shape.
func NewImage(data []byte, datatype int16, dims []int, pixdim []float64) (*Image, error) {
	if len(dims) < 1 || len(dims) > 7 {
		return nil, fmt.Errorf("unsupported rank %d", len(dims))
	}
	bits := bitsFor(datatype)
	if bits == 0 {
		return nil, fmt.Errorf("unsupported datatype code %d", datatype)
	}

	h := Header{
		SizeOfHdr: headerSize,
		Datatype:  datatype,
		BitPix:    bits,
		VoxOffset: singleFileVox,
		SclSlope:  1,
		XYZTUnits: UnitsMillimeter | UnitsSecond,
		Magic:     magicSingle,
	}
	h.Dim[0] = int16(len(dims))
	for i := range h.Dim[1:] {
		h.Dim[i+1] = 1
	}
	for i, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("dimension %d must be positive, got %d", i, d)
		}
		h.Dim[i+1] = int16(d)
	}
	h.PixDim[0] = 1
	for i := range h.PixDim[1:] {
		h.PixDim[i+1] = 1
	}
	for i, p := range pixdim {
		if i+1 < len(h.PixDim) {
			h.PixDim[i+1] = float32(p)
		}
	}

	img := &Image{Header: h, data: data}
	if want := h.NumVoxels() * h.BytesPerVoxel(); len(data) != want {
		return nil, fmt.Errorf("data size %d does not match shape %v (%d bytes expected)",
			len(data), dims, want)
	}
	return img, nil
}

// Data returns a copy of the raw voxel bytes.
func (img *Image) Data() []byte {
	out := make([]byte, len(img.data))
	copy(out, img.data)
	return out
}

// RawData returns the underlying voxel bytes without copying. Callers must
// not mutate the result.
func (img *Image) RawData() []byte {
	return img.data
}

// Dims returns the image shape.
func (img *Image) Dims() []int {
	return img.Header.Dims()
}

// Rank returns the number of dimensions.
func (img *Image) Rank() int {
	return img.Header.Rank()
}

// Clone returns a deep copy of the image.
func (img *Image) Clone() *Image {
	return &Image{Header: img.Header, data: img.Data()}
}

// Squeeze drops trailing singleton dimensions. The voxel bytes are
// untouched; only the declared shape changes.
func (img *Image) Squeeze() {
	rank := img.Header.Rank()
	for rank > 1 && img.Header.Dim[rank] == 1 {
		img.Header.Dim[rank] = 1
		rank--
	}
	if rank < 1 {
		rank = 1
	}
	img.Header.Dim[0] = int16(rank)
}

// PromoteTo4D appends a singleton time axis to a 3-D image and records the
// repetition time, in seconds, in PixDim[4].
func (img *Image) PromoteTo4D(repetitionTime float64) error {
	if img.Rank() != 3 {
		return fmt.Errorf("can only promote a 3-D image, got rank %d", img.Rank())
	}
	img.Header.Dim[0] = 4
	img.Header.Dim[4] = 1
	img.Header.PixDim[4] = float32(repetitionTime)
	return nil
}

// NumTimepoints returns the size of the time axis (1 for a 3-D image).
func (img *Image) NumTimepoints() int {
	if img.Rank() < 4 {
		return 1
	}
	return int(img.Header.Dim[4])
}

// volumeBytes is the byte size of one 3-D volume.
func (img *Image) volumeBytes() int {
	n := img.Header.BytesPerVoxel()
	for i := 1; i <= 3 && i <= img.Rank(); i++ {
		n *= int(img.Header.Dim[i])
	}
	return n
}

// VolumeAt extracts the 3-D volume at time index t as a new image sharing
// the header geometry.
func (img *Image) VolumeAt(t int) (*Image, error) {
	if t < 0 || t >= img.NumTimepoints() {
		return nil, fmt.Errorf("time index %d out of range [0, %d)", t, img.NumTimepoints())
	}
	vb := img.volumeBytes()
	data := make([]byte, vb)
	copy(data, img.data[t*vb:(t+1)*vb])

	out := &Image{Header: img.Header, data: data}
	out.Header.Dim[0] = 3
	out.Header.Dim[4] = 1
	return out, nil
}

// ConcatAlongTime returns a new 4-D image holding the receiver's volumes
// followed by other's. The receiver's header (affine, spacing, scaling)
// carries over; only the time dimension is refreshed. Spatial shapes and
// datatypes must agree.
func (img *Image) ConcatAlongTime(other *Image) (*Image, error) {
	if img.Header.Datatype != other.Header.Datatype {
		return nil, fmt.Errorf("datatype mismatch: %d vs %d",
			img.Header.Datatype, other.Header.Datatype)
	}
	for i := 1; i <= 3; i++ {
		if img.Header.Dim[i] != other.Header.Dim[i] {
			return nil, fmt.Errorf("spatial dimension %d mismatch: %d vs %d",
				i, img.Header.Dim[i], other.Header.Dim[i])
		}
	}

	data := make([]byte, 0, len(img.data)+len(other.data))
	data = append(data, img.data...)
	data = append(data, other.data...)

	out := &Image{Header: img.Header, data: data}
	out.Header.Dim[0] = 4
	out.Header.Dim[4] = int16(img.NumTimepoints() + other.NumTimepoints())
	return out, nil
}

// Floats64 decodes the voxel bytes into float64 values in storage order.
func (img *Image) Floats64() ([]float64, error) {
	n := img.Header.NumVoxels()
	out := make([]float64, n)
	order := binary.LittleEndian

	switch img.Header.Datatype {
	case DTUint8:
		for i := 0; i < n; i++ {
			out[i] = float64(img.data[i])
		}
	case DTInt16:
		for i := 0; i < n; i++ {
			out[i] = float64(int16(order.Uint16(img.data[i*2:])))
		}
	case DTInt32:
		for i := 0; i < n; i++ {
			out[i] = float64(int32(order.Uint32(img.data[i*4:])))
		}
	case DTFloat32:
		for i := 0; i < n; i++ {
			out[i] = float64(math.Float32frombits(order.Uint32(img.data[i*4:])))
		}
	case DTFloat64:
		for i := 0; i < n; i++ {
			out[i] = math.Float64frombits(order.Uint64(img.data[i*8:]))
		}
	default:
		return nil, fmt.Errorf("unsupported datatype code %d", img.Header.Datatype)
	}
	return out, nil
}
