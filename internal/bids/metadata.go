package bids

import (
	"fmt"
	"regexp"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// Metadata is a flat mapping of BIDS metadata field names to scalar or
// small-list values (string, int, float64, []float64).
type Metadata map[string]any

// RequiredImageMetadata lists the fields that must be present before an
// Incremental can be constructed.
var RequiredImageMetadata = []string{
	"subject", "task", "suffix", "datatype", "RepetitionTime", "EchoTime",
}

// sliceTimingSamples is the length of the placeholder SliceTiming ramp.
const sliceTimingSamples = 27

// protocolNamePatterns extracts entity values embedded in a free-text
// ProtocolName such as "func_ses-01_task-faces_run-01".
var protocolNamePatterns = map[string]*regexp.Regexp{
	"session": regexp.MustCompile(`ses-([a-zA-Z0-9]+)`),
	"task":    regexp.MustCompile(`task-([a-zA-Z0-9]+)`),
	"run":     regexp.MustCompile(`run-([0-9]+)`),
}

// NewImageMetadata builds a metadata mapping with the required fields, using
// the correct key names. Times are in seconds.
func NewImageMetadata(subject, task, suffix, datatype string, repetitionTime, echoTime float64) Metadata {
	return Metadata{
		"subject":        subject,
		"task":           task,
		"suffix":         suffix,
		"datatype":       datatype,
		"RepetitionTime": repetitionTime,
		"EchoTime":       echoTime,
	}
}

// MetadataFromProtocolName parses entity values out of a scanner protocol
// name. Unmatched entities are simply absent from the result.
func MetadataFromProtocolName(protocolName string) Metadata {
	md := make(Metadata)
	if protocolName == "" {
		return md
	}
	for field, pattern := range protocolNamePatterns {
		if m := pattern.FindStringSubmatch(protocolName); m != nil {
			md[field] = m[1]
		}
	}
	return md
}

// timeFieldMaxima gives the largest plausible value, in seconds, for each
// time field. Values above the maximum are taken to be milliseconds.
var timeFieldMaxima = map[string]float64{
	"RepetitionTime": 100,
	"EchoTime":       1,
}

// AdjustTimeUnits rescales time fields recorded in milliseconds (the DICOM
// convention) to the seconds BIDS requires, in place.
func AdjustTimeUnits(md Metadata) error {
	for field, maxSeconds := range timeFieldMaxima {
		raw, ok := md[field]
		if !ok {
			continue
		}
		value, ok := toFloat(raw)
		if !ok {
			return fmt.Errorf("%s: cannot interpret %v (%T) as a number", field, raw, raw)
		}
		if value <= maxSeconds {
			md[field] = value
			continue
		}
		value /= 1000.0
		if value > maxSeconds {
			return fmt.Errorf("%s %v out of range: exceeds %v seconds even after "+
				"millisecond conversion", field, raw, maxSeconds)
		}
		md[field] = value
	}
	return nil
}

// NormalizeMetadata derives, fixes up, and validates a raw metadata mapping
// into the canonical form an Incremental carries. The input mapping is
// never mutated. On missing required fields the returned error is a
// *MissingMetadataError naming all of them.
func NormalizeMetadata(raw map[string]any) (Metadata, error) {
	md := MetadataFromProtocolName(asString(raw["ProtocolName"]))

	// Explicit fields always win over values parsed out of ProtocolName.
	for k, v := range raw {
		md[k] = v
	}

	if err := AdjustTimeUnits(md); err != nil {
		return nil, err
	}

	// Placeholder slice timing: an even ramp over [0, TR]. This is an
	// approximation until per-slice acquisition times are wired through from
	// the scanner metadata.
	if _, ok := md["SliceTiming"]; !ok {
		tr := 1.5
		if v, ok := toFloat(md["RepetitionTime"]); ok {
			tr = v
		}
		timing := make([]float64, sliceTimingSamples)
		floats.Span(timing, 0, tr)
		md["SliceTiming"] = timing
	}

	if raw, ok := md["run"]; ok {
		run, err := toInt(raw)
		if err != nil {
			return nil, fmt.Errorf("run must be an integer: %w", err)
		}
		md["run"] = run
	}

	if missing := MissingImageMetadata(md); len(missing) > 0 {
		return nil, &MissingMetadataError{Scope: "image", Fields: missing}
	}

	// TaskName is required BIDS sidecar metadata, derivable from task.
	md["TaskName"] = md["task"]

	return md, nil
}

// MissingImageMetadata returns the required fields absent from md, in
// RequiredImageMetadata order.
func MissingImageMetadata(md map[string]any) []string {
	var missing []string
	for _, field := range RequiredImageMetadata {
		if _, ok := md[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// IsCompleteImageMetadata reports whether md has every field construction
// requires.
func IsCompleteImageMetadata(md map[string]any) bool {
	return len(MissingImageMetadata(md)) == 0
}

// copyMetadata returns a shallow copy with list values duplicated, deep
// enough that callers cannot reach the original's state.
func copyMetadata(md Metadata) Metadata {
	out := make(Metadata, len(md))
	for k, v := range md {
		switch vv := v.(type) {
		case []float64:
			c := make([]float64, len(vv))
			copy(c, vv)
			out[k] = c
		case []any:
			c := make([]any, len(vv))
			copy(c, vv)
			out[k] = c
		default:
			out[k] = v
		}
	}
	return out
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toFloat interprets numeric metadata values, which arrive as assorted Go
// types depending on whether they came from DICOM, JSON, or code.
func toFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case string:
		f, err := strconv.ParseFloat(vv, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, error) {
	switch vv := v.(type) {
	case int:
		return vv, nil
	case int64:
		return int(vv), nil
	case float64:
		return int(vv), nil
	case string:
		return strconv.Atoi(vv)
	default:
		return 0, fmt.Errorf("cannot interpret %v (%T) as an integer", v, v)
	}
}
