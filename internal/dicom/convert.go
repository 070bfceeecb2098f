package dicom

import (
	"fmt"

	"github.com/mrsinham/bidsforge/internal/bids"
)

// ToIncremental converts one DICOM file into a BIDS Incremental. The
// file's merged metadata is overlaid with requiredMetadata (caller-supplied
// fields like subject, task, suffix, datatype win over scanner values), and
// datasetMetadata (nil for the default) becomes the dataset description.
func ToIncremental(path string, requiredMetadata map[string]any, datasetMetadata map[string]any) (*bids.Incremental, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	meta := f.Metadata()
	for k, v := range requiredMetadata {
		meta[k] = v
	}

	inc, err := bids.NewIncremental(f.Image, meta, datasetMetadata)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	return inc, nil
}

// DirToIncrementals converts every DICOM file in a series directory, in
// acquisition order, one incremental per scan volume.
func DirToIncrementals(dir string, requiredMetadata map[string]any, datasetMetadata map[string]any) ([]*bids.Incremental, error) {
	files, err := ListSeries(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no DICOM files in %s", dir)
	}

	incs := make([]*bids.Incremental, 0, len(files))
	for _, path := range files {
		inc, err := ToIncremental(path, requiredMetadata, datasetMetadata)
		if err != nil {
			return nil, err
		}
		incs = append(incs, inc)
	}
	return incs, nil
}
