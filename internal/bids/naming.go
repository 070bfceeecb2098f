package bids

import (
	"fmt"
	"path"
	"strings"
)

// FileKind selects which of an incremental's files a name is derived for.
type FileKind int

const (
	// ImageFile is the NIfTI image (.nii).
	ImageFile FileKind = iota
	// MetadataFile is the JSON sidecar (.json).
	MetadataFile
	// EventsFile is the task events table (.tsv).
	EventsFile
)

func (k FileKind) extension() string {
	switch k {
	case ImageFile:
		return ".nii"
	case MetadataFile:
		return ".json"
	case EventsFile:
		return ".tsv"
	default:
		return ""
	}
}

// buildFileName derives the canonical BIDS filename for the given kind from
// a metadata mapping: the present entities serialized in canonical order,
// then the suffix, then the extension. Per BIDS 1.4.1:
//
//	sub-<label>[_ses-<label>]_task-<label>[_acq-<label>][_ce-<label>]
//	[_dir-<label>][_rec-<label>][_run-<index>][_echo-<index>]_<suffix>.ext
//
// It is a pure function of the metadata, so repeated calls on unchanged
// metadata always produce the same string.
func buildFileName(md Metadata, kind FileKind) string {
	var parts []string
	for _, entity := range entityOrder {
		value, ok := md[entity.Name]
		if !ok || value == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s-%v", entity.Key, value))
	}

	suffix := "events"
	if kind != EventsFile {
		suffix = asString(md["suffix"])
	}
	parts = append(parts, suffix)

	return strings.Join(parts, "_") + kind.extension()
}

// buildDataDirPath derives the archive-relative directory an incremental's
// files belong in: sub-<id>/[ses-<id>/]<datatype>.
func buildDataDirPath(md Metadata) string {
	parts := []string{fmt.Sprintf("sub-%v", md["subject"])}
	if ses, ok := md["session"]; ok && ses != nil {
		parts = append(parts, fmt.Sprintf("ses-%v", ses))
	}
	parts = append(parts, asString(md["datatype"]))
	return path.Join(parts...)
}
