package bids

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"reflect"

	"github.com/mrsinham/bidsforge/internal/nifti"
)

// DisableSameAcquisitionCheck turns off the misuse detection that rejects
// merging two images with identical acquisition stamps. Some replay and
// simulation setups legitimately reuse timestamps; everything else should
// leave this false.
var DisableSameAcquisitionCheck = false

// headerField extracts one comparable header field as a float slice.
type headerField struct {
	name string
	vals func(*nifti.Header) []float64
}

func f1(v float32) []float64        { return []float64{float64(v)} }
func i1[T int8 | int16](v T) []float64 { return []float64{float64(v)} }
func f4(v [4]float32) []float64 {
	return []float64{float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3])}
}

// headerCompatFields are the fields two headers must agree on before their
// images may be merged into one run. Dimensions are deliberately absent:
// the time axis is expected to differ, and spatial drift shows up through
// pixdim and the affine rows.
var headerCompatFields = []headerField{
	{"dim_info", func(h *nifti.Header) []float64 { return i1(h.DimInfo) }},
	{"intent_p1", func(h *nifti.Header) []float64 { return f1(h.IntentP1) }},
	{"intent_p2", func(h *nifti.Header) []float64 { return f1(h.IntentP2) }},
	{"intent_p3", func(h *nifti.Header) []float64 { return f1(h.IntentP3) }},
	{"intent_code", func(h *nifti.Header) []float64 { return i1(h.IntentCode) }},
	{"datatype", func(h *nifti.Header) []float64 { return i1(h.Datatype) }},
	{"bitpix", func(h *nifti.Header) []float64 { return i1(h.BitPix) }},
	{"slice_duration", func(h *nifti.Header) []float64 { return f1(h.SliceDuration) }},
	{"toffset", func(h *nifti.Header) []float64 { return f1(h.TOffset) }},
	{"scl_slope", func(h *nifti.Header) []float64 { return f1(h.SclSlope) }},
	{"scl_inter", func(h *nifti.Header) []float64 { return f1(h.SclInter) }},
	{"qform_code", func(h *nifti.Header) []float64 { return i1(h.QFormCode) }},
	{"quatern_b", func(h *nifti.Header) []float64 { return f1(h.QuaternB) }},
	{"quatern_c", func(h *nifti.Header) []float64 { return f1(h.QuaternC) }},
	{"quatern_d", func(h *nifti.Header) []float64 { return f1(h.QuaternD) }},
	{"qoffset_x", func(h *nifti.Header) []float64 { return f1(h.QOffsetX) }},
	{"qoffset_y", func(h *nifti.Header) []float64 { return f1(h.QOffsetY) }},
	{"qoffset_z", func(h *nifti.Header) []float64 { return f1(h.QOffsetZ) }},
	{"sform_code", func(h *nifti.Header) []float64 { return i1(h.SFormCode) }},
	{"srow_x", func(h *nifti.Header) []float64 { return f4(h.SRowX) }},
	{"srow_y", func(h *nifti.Header) []float64 { return f4(h.SRowY) }},
	{"srow_z", func(h *nifti.Header) []float64 { return f4(h.SRowZ) }},
	{"xyzt_units", func(h *nifti.Header) []float64 { return i1(h.XYZTUnits) }},
}

// metadataMatchFields are the scanner and sequence fields two metadata
// records must not contradict each other on. A field absent from either
// side is skipped.
var metadataMatchFields = []string{
	"Modality", "MagneticFieldStrength", "ImagingFrequency",
	"Manufacturer", "ManufacturersModelName", "InstitutionName",
	"InstitutionAddress", "DeviceSerialNumber", "StationName",
	"BodyPartExamined", "PatientPosition", "EchoTime",
	"ProcedureStepDescription", "SoftwareVersions", "MRAcquisitionType",
	"SeriesDescription", "ProtocolName", "ScanningSequence",
	"SequenceVariant", "ScanOptions", "SequenceName",
	"SpacingBetweenSlices", "SliceThickness", "ImageType",
	"RepetitionTime", "FlipAngle", "PhaseEncodingDirection",
	"InPlanePhaseEncodingDirectionDICOM", "ImageOrientationPatientDICOM",
	"PartialFourier",
}

// metadataDifferFields are expected to differ between two genuinely
// distinct acquisitions. Equal values on both sides suggest the caller is
// appending the same image twice.
var metadataDifferFields = []string{
	"AcquisitionTime", "AcquisitionNumber", "InstanceNumber",
}

// nanSafeEqual compares two floats exactly, except that NaN equals NaN.
func nanSafeEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// HeadersMatch reports whether two image headers are compatible for a merge
// along the time axis, and on mismatch names the offending field.
//
// pixdim gets a special rule: recorded values of 0 and 1 are equivalent,
// since both mean "unit/ignored" in the NIfTI convention, and only entries
// up to the declared rank are compared.
func HeadersMatch(h1, h2 *nifti.Header) (bool, string) {
	for _, field := range headerCompatFields {
		v1, v2 := field.vals(h1), field.vals(h2)
		for i := range v1 {
			if !nanSafeEqual(v1[i], v2[i]) {
				return false, fmt.Sprintf("header field %q differs: %v vs %v",
					field.name, v1, v2)
			}
		}
	}

	rank := h1.Rank()
	if r2 := h2.Rank(); r2 < rank {
		rank = r2
	}
	for i := 1; i <= rank; i++ {
		p1, p2 := float64(h1.PixDim[i]), float64(h2.PixDim[i])
		if p1 == 0 {
			p1 = 1
		}
		if p2 == 0 {
			p2 = 1
		}
		if !nanSafeEqual(p1, p2) {
			return false, fmt.Sprintf("header field \"pixdim\" differs at index %d: %v vs %v",
				i, h1.PixDim, h2.PixDim)
		}
	}
	return true, ""
}

// MetadataMatches reports whether two metadata records may describe volumes
// of the same run, and on mismatch names the offending field.
func MetadataMatches(m1, m2 Metadata) (bool, string) {
	for _, field := range metadataMatchFields {
		v1, ok1 := m1[field]
		v2, ok2 := m2[field]
		if !ok1 || !ok2 {
			continue
		}
		if !valuesEqual(v1, v2) {
			return false, fmt.Sprintf("metadata field %q differs: %v vs %v", field, v1, v2)
		}
	}

	if !DisableSameAcquisitionCheck {
		for _, field := range metadataDifferFields {
			v1, ok1 := m1[field]
			v2, ok2 := m2[field]
			if ok1 && ok2 && valuesEqual(v1, v2) {
				return false, fmt.Sprintf("metadata field %q is identical (%v): "+
					"images do not appear to be distinct acquisitions", field, v1)
			}
		}
	}
	return true, ""
}

// headersIdentical compares every stored header field, NaN-safe, returning
// the first differing field name. Used by Incremental.Equal, which is
// stricter than the merge gate.
func headersIdentical(h1, h2 *nifti.Header) (string, bool) {
	if h1.Dim != h2.Dim {
		return "dim", false
	}
	for i := range h1.PixDim {
		if !nanSafeEqual(float64(h1.PixDim[i]), float64(h2.PixDim[i])) {
			return "pixdim", false
		}
	}
	for _, field := range headerCompatFields {
		v1, v2 := field.vals(h1), field.vals(h2)
		for i := range v1 {
			if !nanSafeEqual(v1[i], v2[i]) {
				return field.name, false
			}
		}
	}
	switch {
	case h1.SliceStart != h2.SliceStart:
		return "slice_start", false
	case h1.SliceEnd != h2.SliceEnd:
		return "slice_end", false
	case h1.SliceCode != h2.SliceCode:
		return "slice_code", false
	case !nanSafeEqual(float64(h1.CalMax), float64(h2.CalMax)):
		return "cal_max", false
	case !nanSafeEqual(float64(h1.CalMin), float64(h2.CalMin)):
		return "cal_min", false
	case !bytes.Equal(h1.Descrip[:], h2.Descrip[:]):
		return "descrip", false
	case !bytes.Equal(h1.AuxFile[:], h2.AuxFile[:]):
		return "aux_file", false
	case !bytes.Equal(h1.IntentName[:], h2.IntentName[:]):
		return "intent_name", false
	}
	return "", true
}

// valuesEqual compares metadata values across the type variants they arrive
// in (DICOM strings, JSON numbers, Go code literals). Lists compare element
// by element regardless of slice type: JSON decoding yields []any where the
// DICOM reader yields []string and the normalizer []float64, and the same
// field must match itself after a sidecar round trip.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return nanSafeEqual(fa, fb)
		}
		return false
	}
	la, aIsList := asList(a)
	lb, bIsList := asList(b)
	if aIsList || bIsList {
		if !aIsList || !bIsList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !valuesEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// asList views any metadata list value as []any.
func asList(v any) ([]any, bool) {
	switch vv := v.(type) {
	case []any:
		return vv, true
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(vv))
		for i, f := range vv {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// metadataEqual compares two metadata mappings key by key.
func metadataEqual(m1, m2 map[string]any) bool {
	if len(m1) != len(m2) {
		return false
	}
	for k, v1 := range m1 {
		v2, ok := m2[k]
		if !ok || !valuesEqual(v1, v2) {
			return false
		}
	}
	return true
}

// symmetricMapDifference reports, per differing key, the values each side
// holds (nil for an absent key). Diagnostic use only.
func symmetricMapDifference(m1, m2 map[string]any) map[string][2]any {
	diff := make(map[string][2]any)
	for k, v1 := range m1 {
		v2, ok := m2[k]
		if !ok || !valuesEqual(v1, v2) {
			diff[k] = [2]any{v1, v2}
		}
	}
	for k, v2 := range m2 {
		if _, ok := m1[k]; !ok {
			diff[k] = [2]any{nil, v2}
		}
	}
	return diff
}

// logIfBypassed is used by the append engine when header enforcement is
// bypassed for debugging.
func logIfBypassed(reason string) {
	slog.Warn("compatibility check bypassed", "reason", reason)
}
