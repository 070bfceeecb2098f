package bids

import (
	"encoding/binary"
	"testing"

	"github.com/mrsinham/bidsforge/internal/nifti"
)

// makeTestImage builds a small int16 image with deterministic content,
// offset by seed so different acquisitions get different voxels.
func makeTestImage(t *testing.T, dims []int, seed int) *nifti.Image {
	t.Helper()

	n := 1
	for _, d := range dims {
		n *= d
	}
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16((i+seed)%4096))
	}

	pixdim := []float64{3, 3, 3, 1.5}
	img, err := nifti.NewImage(data, nifti.DTInt16, dims, pixdim[:min(len(dims), 4)])
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	img.Header.SetAffine([4][4]float64{
		{3, 0, 0, -100},
		{0, 3, 0, -100},
		{0, 0, 3, -100},
		{0, 0, 0, 1},
	})
	return img
}

// testImageMetadata returns metadata with all required fields plus the
// extras a DICOM conversion typically carries. Times are in scanner
// milliseconds to exercise unit normalization.
func testImageMetadata() map[string]any {
	return map[string]any{
		"subject":         "01",
		"task":            "faces",
		"suffix":          "bold",
		"datatype":        "func",
		"session":         "01",
		"run":             1,
		"RepetitionTime":  1500,
		"EchoTime":        25,
		"ProtocolName":    "func_ses-01_task-faces_run-01",
		"Manufacturer":    "SIEMENS",
		"AcquisitionTime": "124758.653000",
	}
}

// makeTestIncremental builds a known-valid incremental from the fixtures.
func makeTestIncremental(t *testing.T, seed int) *Incremental {
	t.Helper()

	inc, err := NewIncremental(makeTestImage(t, []int{8, 8, 4}, seed), testImageMetadata(), nil)
	if err != nil {
		t.Fatalf("NewIncremental failed: %v", err)
	}
	return inc
}
