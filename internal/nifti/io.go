package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// ReadFile reads a single-file (.nii) NIfTI-1 image. Byte order is inferred
// from Dim[0], which must land in [1, 7] under the correct order.
func ReadFile(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nifti file: %w", err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("file %s too small for a nifti header (%d bytes)", path, len(raw))
	}

	var h Header
	order := byteOrderFor(raw)
	if order == nil {
		return nil, fmt.Errorf("cannot infer byte order of %s: dim[0] not in [1, 7]", path)
	}
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return nil, fmt.Errorf("decode nifti header: %w", err)
	}
	if err := validateHeader(&h); err != nil {
		return nil, fmt.Errorf("invalid nifti header in %s: %w", path, err)
	}

	offset := int(h.VoxOffset)
	if offset < singleFileVox {
		offset = singleFileVox
	}
	size := h.NumVoxels() * h.BytesPerVoxel()
	if offset+size > len(raw) {
		return nil, fmt.Errorf("file %s truncated: need %d bytes of voxel data, have %d",
			path, size, len(raw)-offset)
	}

	data := make([]byte, size)
	copy(data, raw[offset:offset+size])
	if order == binary.BigEndian {
		swapToLittle(data, h.BytesPerVoxel())
		h.VoxOffset = singleFileVox
	}
	return &Image{Header: h, data: data}, nil
}

// WriteFile writes the image as a little-endian single-file .nii at path.
// The write is all-or-nothing: data lands in a temp file first and is
// renamed into place.
func WriteFile(img *Image, path string) error {
	h := img.Header
	h.SizeOfHdr = headerSize
	h.VoxOffset = singleFileVox
	h.Magic = magicSingle

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("encode nifti header: %w", err)
	}
	// Extension flag: four zero bytes, no extensions.
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write(img.data)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".nii-*")
	if err != nil {
		return fmt.Errorf("create temp image file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write image data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close image file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize image file: %w", err)
	}
	return nil
}

// byteOrderFor sniffs the byte order from the raw header bytes, returning
// nil when neither order yields a plausible rank.
func byteOrderFor(raw []byte) binary.ByteOrder {
	// Dim[0] lives at offset 40.
	le := int16(binary.LittleEndian.Uint16(raw[40:42]))
	if le >= 1 && le <= 7 {
		return binary.LittleEndian
	}
	be := int16(binary.BigEndian.Uint16(raw[40:42]))
	if be >= 1 && be <= 7 {
		return binary.BigEndian
	}
	return nil
}

func validateHeader(h *Header) error {
	if h.SizeOfHdr != headerSize {
		return fmt.Errorf("header size %d, want %d", h.SizeOfHdr, headerSize)
	}
	if h.Magic != magicSingle {
		return fmt.Errorf("magic %q: only single-file n+1 images are supported", h.Magic[:3])
	}
	if bitsFor(h.Datatype) == 0 {
		return fmt.Errorf("unsupported datatype code %d", h.Datatype)
	}
	return nil
}

// swapToLittle converts big-endian voxel bytes to little-endian in place.
func swapToLittle(data []byte, elemSize int) {
	for i := 0; i+elemSize <= len(data); i += elemSize {
		for a, b := i, i+elemSize-1; a < b; a, b = a+1, b-1 {
			data[a], data[b] = data[b], data[a]
		}
	}
}
