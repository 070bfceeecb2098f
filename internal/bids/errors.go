package bids

import (
	"errors"
	"fmt"
	"strings"
)

// MissingMetadataError reports every required field absent from a metadata
// mapping, not just the first one found.
type MissingMetadataError struct {
	Scope  string   // "image" or "dataset"
	Fields []string // all missing field names
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("%s metadata missing required fields: [%s]",
		e.Scope, strings.Join(e.Fields, ", "))
}

// ValidationError reports an append that was refused: incompatible headers
// or metadata, or no valid target path. The archive is untouched when one of
// these is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "append validation failed: " + e.Reason
}

var (
	// ErrUnsupportedImage is returned when construction receives no usable
	// image value at all.
	ErrUnsupportedImage = errors.New("a nifti image is required")

	// ErrImageRank is returned when an image has too few or too many
	// non-singleton dimensions to be a scan volume.
	ErrImageRank = errors.New("image rank must be 3 or 4")

	// ErrUnknownEntity is returned by strict metadata operations on a field
	// that is not a recognized BIDS entity.
	ErrUnknownEntity = errors.New("not a valid BIDS entity name")

	// ErrRequiredField is returned when removing a field that construction
	// requires.
	ErrRequiredField = errors.New("field is required and cannot be removed")

	// ErrNoMoreData marks stream exhaustion. It is a terminal condition, not
	// a failure: consumers should stop reading, not retry.
	ErrNoMoreData = errors.New("no more data in archive")
)
