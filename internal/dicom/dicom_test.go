package dicom

import (
	"path/filepath"
	"testing"

	"github.com/mrsinham/bidsforge/internal/bids"
)

func generateTestSeries(t *testing.T, numVolumes int) (string, []string) {
	t.Helper()

	dir := t.TempDir()
	files, err := GenerateSeries(GeneratorOptions{
		OutputDir:  dir,
		NumVolumes: numVolumes,
		Rows:       16,
		Cols:       16,
		Slices:     4,
		Seed:       42,
	})
	if err != nil {
		t.Fatalf("GenerateSeries failed: %v", err)
	}
	if len(files) != numVolumes {
		t.Fatalf("generated %d files, want %d", len(files), numVolumes)
	}
	return dir, files
}

func TestGenerateAndReadSeries(t *testing.T) {
	_, files := generateTestSeries(t, 2)

	f, err := ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	wantDims := []int{16, 16, 4}
	dims := f.Image.Dims()
	if len(dims) != 3 {
		t.Fatalf("image rank = %d, want 3", len(dims))
	}
	for i, d := range wantDims {
		if dims[i] != d {
			t.Errorf("dim %d = %d, want %d", i, dims[i], d)
		}
	}

	// The gradient peaks at the center of each slice.
	vals, err := f.Image.Floats64()
	if err != nil {
		t.Fatalf("Floats64 failed: %v", err)
	}
	center := vals[8*16+8]
	corner := vals[0]
	if center <= corner {
		t.Errorf("center intensity %v not above corner %v", center, corner)
	}

	for field, want := range map[string]any{
		"Manufacturer":   "SIEMENS",
		"Modality":       "MR",
		"ProtocolName":   "func_ses-01_task-faces_run-01",
		"RepetitionTime": "1500",
		"PatientID":      "TEST01",
	} {
		if got := f.Public[field]; got != want {
			t.Errorf("metadata %s = %v, want %v", field, got, want)
		}
	}

	// Pixel spacing flows into the header grid.
	if got := f.Image.Header.PixDim[1]; got != 3 {
		t.Errorf("pixdim[1] = %v, want 3", got)
	}
}

func TestReadFile_DistinctAcquisitions(t *testing.T) {
	_, files := generateTestSeries(t, 2)

	f0, err := ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	f1, err := ReadFile(files[1])
	if err != nil {
		t.Fatal(err)
	}

	if f0.Public["AcquisitionTime"] == f1.Public["AcquisitionTime"] {
		t.Error("consecutive volumes share an AcquisitionTime")
	}
	if f0.Public["SeriesInstanceUID"] != f1.Public["SeriesInstanceUID"] {
		t.Error("volumes of one series have different SeriesInstanceUID")
	}
}

func TestListSeries_OrderAndFilter(t *testing.T) {
	dir, files := generateTestSeries(t, 3)

	got, err := ListSeries(dir)
	if err != nil {
		t.Fatalf("ListSeries failed: %v", err)
	}
	if len(got) != len(files) {
		t.Fatalf("listed %d files, want %d", len(got), len(files))
	}
	for i := range files {
		if got[i] != files[i] {
			t.Errorf("file %d = %s, want %s (acquisition order)", i, got[i], files[i])
		}
	}
}

func requiredTestMetadata() map[string]any {
	return map[string]any{
		"subject":  "01",
		"task":     "faces",
		"suffix":   "bold",
		"datatype": "func",
	}
}

func TestToIncremental(t *testing.T) {
	_, files := generateTestSeries(t, 1)

	inc, err := ToIncremental(files[0], requiredTestMetadata(), nil)
	if err != nil {
		t.Fatalf("ToIncremental failed: %v", err)
	}

	dims := inc.Dimensions()
	if len(dims) != 4 || dims[3] != 1 {
		t.Fatalf("dimensions = %v, want a single 4-D volume", dims)
	}

	// Scanner milliseconds must come out normalized to seconds.
	if tr, _ := inc.GetMetadataField("RepetitionTime", false); tr != 1.5 {
		t.Errorf("RepetitionTime = %v, want 1.5", tr)
	}
	// Entities parsed from the protocol name.
	if run, _ := inc.GetMetadataField("run", false); run != 1 {
		t.Errorf("run = %v, want 1", run)
	}
	if ses, _ := inc.GetMetadataField("session", false); ses != "01" {
		t.Errorf("session = %v, want 01", ses)
	}

	if got, want := inc.ImageFilePath(),
		"sub-01/ses-01/func/sub-01_ses-01_task-faces_run-1_bold.nii"; got != want {
		t.Errorf("image path = %q, want %q", got, want)
	}
}

func TestDirToIncrementals_AppendsIntoArchive(t *testing.T) {
	dir, _ := generateTestSeries(t, 3)

	incs, err := DirToIncrementals(dir, requiredTestMetadata(), nil)
	if err != nil {
		t.Fatalf("DirToIncrementals failed: %v", err)
	}
	if len(incs) != 3 {
		t.Fatalf("converted %d incrementals, want 3", len(incs))
	}

	archive := bids.NewArchive(filepath.Join(t.TempDir(), "dataset"))
	opts := bids.AppendOptions{CreatePathIfMissing: true}
	for i, inc := range incs {
		if err := archive.AppendIncremental(inc, opts); err != nil {
			t.Fatalf("append volume %d: %v", i, err)
		}
	}

	img, err := archive.GetImage(incs[0].ImageFilePath())
	if err != nil {
		t.Fatalf("read back merged run: %v", err)
	}
	if img.NumTimepoints() != 3 {
		t.Errorf("timepoints = %d, want 3", img.NumTimepoints())
	}
	t.Logf("✓ converted and merged a %d-volume series", len(incs))
}

func TestDirToIncrementals_EmptyDir(t *testing.T) {
	if _, err := DirToIncrementals(t.TempDir(), requiredTestMetadata(), nil); err == nil {
		t.Fatal("expected error for a directory without DICOM files")
	}
}
