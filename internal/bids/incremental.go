package bids

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mrsinham/bidsforge/internal/nifti"
)

// incrementalVersion is the BIDS-I format version written on serialization.
const incrementalVersion = 1

// defaultReadme is the README text written to archives seeded from an
// incremental.
const defaultReadme = "Generated BIDS-Incremental dataset from bidsforge"

// eventColumns are the default columns of the events table.
var eventColumns = []string{"onset", "duration", "response_time"}

// Incremental is one streamable unit of BIDS data: a single 4-D image, its
// normalized metadata, and the dataset-level description it would carry in
// an archive. The image shape is fixed at construction; metadata content
// may change afterwards through the field operations.
type Incremental struct {
	image           *nifti.Image
	imageMetadata   Metadata
	datasetMetadata map[string]any

	readme  string
	events  [][]string
	version int
}

// NewIncremental validates, normalizes, and wraps an image and its
// metadata.
//
// The image must be 3-D or 4-D after dropping singleton dimensions; a 3-D
// image is promoted to 4-D with a singleton time axis and the repetition
// time written to the header's time step. A nil datasetMetadata gets a
// fresh default description.
func NewIncremental(image *nifti.Image, imageMetadata map[string]any, datasetMetadata map[string]any) (*Incremental, error) {
	if image == nil {
		return nil, fmt.Errorf("%w: got nil", ErrUnsupportedImage)
	}

	if datasetMetadata != nil {
		if missing := missingDatasetMetadata(datasetMetadata); len(missing) > 0 {
			return nil, &MissingMetadataError{Scope: "dataset", Fields: missing}
		}
		datasetMetadata = copyMetadata(datasetMetadata)
	} else {
		datasetMetadata = DefaultDatasetDescription()
	}

	md, err := NormalizeMetadata(imageMetadata)
	if err != nil {
		return nil, err
	}

	img := image.Clone()
	img.Squeeze()
	switch img.Rank() {
	case 3:
		tr, _ := toFloat(md["RepetitionTime"])
		if err := img.PromoteTo4D(tr); err != nil {
			return nil, err
		}
	case 4:
		// Already canonical.
	default:
		return nil, fmt.Errorf("%w: got %d non-singleton dimensions",
			ErrImageRank, img.Rank())
	}

	return &Incremental{
		image:           img,
		imageMetadata:   md,
		datasetMetadata: datasetMetadata,
		readme:          defaultReadme,
		version:         incrementalVersion,
	}, nil
}

func (inc *Incremental) String() string {
	return fmt.Sprintf("Image shape: %v; Metadata Key Count: %d; BIDS-I Version: %d",
		inc.Dimensions(), len(inc.imageMetadata), inc.version)
}

// Dimensions returns the image shape. The rank is always 4.
func (inc *Incremental) Dimensions() []int {
	return inc.image.Dims()
}

// Image returns a deep copy of the wrapped image.
func (inc *Incremental) Image() *nifti.Image {
	return inc.image.Clone()
}

// ImageData returns a copy of the raw voxel bytes.
func (inc *Incremental) ImageData() []byte {
	return inc.image.Data()
}

// Header returns a copy of the image header.
func (inc *Incremental) Header() nifti.Header {
	return inc.image.Header
}

// Version returns the BIDS-I serialization version.
func (inc *Incremental) Version() int {
	return inc.version
}

// GetMetadataField returns the value for field, or nil when absent. With
// strict set, field must be a recognized BIDS entity name.
func (inc *Incremental) GetMetadataField(field string, strict bool) (any, error) {
	if strict && !IsEntity(field) {
		return nil, fmt.Errorf("%q: %w", field, ErrUnknownEntity)
	}
	return inc.imageMetadata[field], nil
}

// SetMetadataField sets field to value. With strict set, field must be a
// recognized BIDS entity name.
func (inc *Incremental) SetMetadataField(field string, value any, strict bool) error {
	if field == "" {
		return fmt.Errorf("metadata field to set cannot be empty")
	}
	if strict && !IsEntity(field) {
		return fmt.Errorf("%q: %w", field, ErrUnknownEntity)
	}
	inc.imageMetadata[field] = value
	return nil
}

// RemoveMetadataField deletes field from the metadata. Required fields
// cannot be removed. With strict set, field must be a recognized BIDS
// entity name.
func (inc *Incremental) RemoveMetadataField(field string, strict bool) error {
	for _, required := range RequiredImageMetadata {
		if field == required {
			return fmt.Errorf("%q: %w", field, ErrRequiredField)
		}
	}
	if strict && !IsEntity(field) {
		return fmt.Errorf("%q: %w", field, ErrUnknownEntity)
	}
	delete(inc.imageMetadata, field)
	return nil
}

// Suffix returns the imaging method, e.g. "bold".
func (inc *Incremental) Suffix() string {
	return asString(inc.imageMetadata["suffix"])
}

// Datatype returns the BIDS datatype directory name, e.g. "func" or "anat".
func (inc *Incremental) Datatype() string {
	return asString(inc.imageMetadata["datatype"])
}

// ImageMetadata returns a defensive copy of the full metadata mapping.
func (inc *Incremental) ImageMetadata() Metadata {
	return copyMetadata(inc.imageMetadata)
}

// Entities returns the BIDS entities present in the metadata.
func (inc *Incremental) Entities() Metadata {
	return FilterEntities(inc.imageMetadata)
}

// DatasetMetadata returns a defensive copy of the dataset description.
func (inc *Incremental) DatasetMetadata() map[string]any {
	return copyMetadata(inc.datasetMetadata)
}

// DatasetName returns the Name field of the dataset description.
func (inc *Incremental) DatasetName() string {
	return asString(inc.datasetMetadata["Name"])
}

// Equal reports deep equality: image headers, image metadata, dataset
// metadata, and voxel data. Header comparison is NaN-safe. The first
// differing component is logged at debug level for diagnostics.
func (inc *Incremental) Equal(other *Incremental) bool {
	if other == nil {
		return false
	}
	h1, h2 := inc.image.Header, other.image.Header
	if field, ok := headersIdentical(&h1, &h2); !ok {
		slog.Debug("image headers didn't match", "field", field)
		return false
	}
	if !metadataEqual(inc.imageMetadata, other.imageMetadata) {
		slog.Debug("image metadata didn't match",
			"difference", symmetricMapDifference(inc.imageMetadata, other.imageMetadata))
		return false
	}
	if !metadataEqual(inc.datasetMetadata, other.datasetMetadata) {
		slog.Debug("dataset metadata didn't match",
			"difference", symmetricMapDifference(inc.datasetMetadata, other.datasetMetadata))
		return false
	}
	if !bytes.Equal(inc.image.RawData(), other.image.RawData()) {
		slog.Debug("image data didn't match")
		return false
	}
	return true
}

/*
Archive emulation.

A BIDS-I emulates a valid one-image BIDS archive: the derivations below
produce the paths and filenames its data would have if it were on disk,
which is how the append engine addresses archive content.
*/

// ImageFileName returns the BIDS-compliant image filename.
func (inc *Incremental) ImageFileName() string {
	return buildFileName(inc.imageMetadata, ImageFile)
}

// MetadataFileName returns the sidecar JSON filename.
func (inc *Incremental) MetadataFileName() string {
	return buildFileName(inc.imageMetadata, MetadataFile)
}

// EventsFileName returns the events table filename.
func (inc *Incremental) EventsFileName() string {
	return buildFileName(inc.imageMetadata, EventsFile)
}

// DataDirPath returns the archive-relative directory for this incremental's
// files, e.g. "sub-01/ses-2011/anat".
func (inc *Incremental) DataDirPath() string {
	return buildDataDirPath(inc.imageMetadata)
}

// ImageFilePath returns the archive-relative image path.
func (inc *Incremental) ImageFilePath() string {
	return path.Join(inc.DataDirPath(), inc.ImageFileName())
}

// MetadataFilePath returns the archive-relative sidecar path.
func (inc *Incremental) MetadataFilePath() string {
	return path.Join(inc.DataDirPath(), inc.MetadataFileName())
}

// WriteToArchive writes the incremental's files under datasetRoot: image,
// sidecar, events table, dataset description, and README. The target
// directory is assumed empty; conflicting filenames are overwritten without
// checks.
func (inc *Incremental) WriteToArchive(datasetRoot string) error {
	dataDir := filepath.Join(datasetRoot, filepath.FromSlash(inc.DataDirPath()))
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	if err := nifti.WriteFile(inc.image, filepath.Join(dataDir, inc.ImageFileName())); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	// Entities live in the filename; everything else goes to the sidecar.
	sidecar := make(Metadata, len(inc.imageMetadata))
	for k, v := range inc.imageMetadata {
		if !IsEntity(k) {
			sidecar[k] = v
		}
	}
	if err := writeJSON(filepath.Join(dataDir, inc.MetadataFileName()), sidecar); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	if err := inc.writeEvents(filepath.Join(dataDir, inc.EventsFileName())); err != nil {
		return fmt.Errorf("write events: %w", err)
	}

	if err := writeJSON(filepath.Join(datasetRoot, "dataset_description.json"), inc.datasetMetadata); err != nil {
		return fmt.Errorf("write dataset description: %w", err)
	}

	if err := os.WriteFile(filepath.Join(datasetRoot, "README"), []byte(inc.readme), 0o644); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	return nil
}

// writeEvents writes the events table as tab-separated text. The table is
// usually empty; the header row alone satisfies BIDS validation.
func (inc *Incremental) writeEvents(path string) error {
	var sb strings.Builder
	sb.WriteString(strings.Join(eventColumns, "\t"))
	sb.WriteByte('\n')
	for _, row := range inc.events {
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
