// Package dicom converts DICOM series into BIDS Incrementals: pixel data is
// reassembled into NIfTI volumes and element metadata is flattened into the
// mapping the BIDS layer normalizes.
package dicom

import (
	"encoding/binary"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/bidsforge/internal/nifti"
)

// File is one parsed DICOM file: the decoded volume plus its metadata,
// split by the DICOM convention that even-numbered tag groups are public
// and odd-numbered groups are private.
type File struct {
	Image   *nifti.Image
	Public  map[string]any
	Private map[string]any
}

// Metadata returns the merged public and private metadata, public fields
// winning on (unlikely) name collisions.
func (f *File) Metadata() map[string]any {
	merged := make(map[string]any, len(f.Public)+len(f.Private))
	for k, v := range f.Private {
		merged[k] = v
	}
	for k, v := range f.Public {
		merged[k] = v
	}
	return merged
}

// ReadFile parses a DICOM file and decodes its frames into a 3-D image
// (columns x rows x frames, int16 little-endian).
func ReadFile(path string) (*File, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse dicom %s: %w", path, err)
	}

	public, private := splitMetadata(&ds)

	img, err := imageFromDataset(&ds, public)
	if err != nil {
		return nil, fmt.Errorf("decode pixel data of %s: %w", path, err)
	}

	return &File{Image: img, Public: public, Private: private}, nil
}

// splitMetadata flattens the dataset's elements into keyword-keyed maps.
// Elements without a dictionary keyword are keyed "(gggg,eeee)".
func splitMetadata(ds *dicom.Dataset) (public, private map[string]any) {
	public = make(map[string]any)
	private = make(map[string]any)

	for _, elem := range ds.Elements {
		if elem.Tag == tag.PixelData {
			continue
		}
		name := keywordFor(elem.Tag)
		value := simplifyValue(elem.Value.GetValue())
		if value == nil {
			continue
		}
		if elem.Tag.Group%2 == 0 {
			public[name] = value
		} else {
			private[name] = value
		}
	}
	return public, private
}

func keywordFor(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil && info.Keyword != "" {
		return info.Keyword
	}
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// simplifyValue unwraps the library's slice-of-values representation:
// single values become scalars, and DICOM's string-encoded numbers are left
// as strings for the normalizer to interpret.
func simplifyValue(v any) any {
	switch vv := v.(type) {
	case []string:
		switch len(vv) {
		case 0:
			return nil
		case 1:
			return strings.TrimSpace(vv[0])
		default:
			out := make([]string, len(vv))
			for i, s := range vv {
				out[i] = strings.TrimSpace(s)
			}
			return out
		}
	case []int:
		switch len(vv) {
		case 0:
			return nil
		case 1:
			return vv[0]
		default:
			return vv
		}
	case []float64:
		switch len(vv) {
		case 0:
			return nil
		case 1:
			return vv[0]
		default:
			return vv
		}
	default:
		return vv
	}
}

// imageFromDataset decodes the pixel frames into a 3-D nifti image. Frame
// order is slice order.
func imageFromDataset(ds *dicom.Dataset, public map[string]any) (*nifti.Image, error) {
	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("no pixel data: %w", err)
	}
	info := dicom.MustGetPixelDataInfo(pixelElem.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("pixel data holds no frames")
	}

	var (
		data []byte
		cols int
		rows int
	)
	for i, fr := range info.Frames {
		img, err := fr.GetImage()
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		b := img.Bounds()
		if i == 0 {
			cols, rows = b.Dx(), b.Dy()
			data = make([]byte, 0, cols*rows*len(info.Frames)*2)
		} else if b.Dx() != cols || b.Dy() != rows {
			return nil, fmt.Errorf("frame %d is %dx%d, want %dx%d", i, b.Dx(), b.Dy(), cols, rows)
		}
		data = appendFramePixels(data, img)
	}

	spacing := pixelSpacing(public)
	img, err := nifti.NewImage(data, nifti.DTInt16,
		[]int{cols, rows, len(info.Frames)}, spacing)
	if err != nil {
		return nil, err
	}
	img.Header.SetAffine([4][4]float64{
		{spacing[0], 0, 0, 0},
		{0, spacing[1], 0, 0},
		{0, 0, spacing[2], 0},
		{0, 0, 0, 1},
	})
	img.Header.QFormCode = nifti.XFormScannerAnat
	return img, nil
}

// appendFramePixels writes one frame's pixels in x-fastest order as int16
// little-endian.
func appendFramePixels(data []byte, img image.Image) []byte {
	b := img.Bounds()
	var buf [2]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray := grayValue(img, x, y)
			binary.LittleEndian.PutUint16(buf[:], gray)
			data = append(data, buf[0], buf[1])
		}
	}
	return data
}

func grayValue(img image.Image, x, y int) uint16 {
	switch im := img.(type) {
	case *image.Gray16:
		i := im.PixOffset(x, y)
		return uint16(im.Pix[i])<<8 | uint16(im.Pix[i+1])
	case *image.Gray:
		return uint16(im.GrayAt(x, y).Y)
	default:
		r, _, _, _ := img.At(x, y).RGBA()
		return uint16(r)
	}
}

// pixelSpacing derives [dx, dy, dz] in mm from the public metadata,
// defaulting to unit spacing.
func pixelSpacing(public map[string]any) []float64 {
	spacing := []float64{1, 1, 1}
	switch ps := public["PixelSpacing"].(type) {
	case []string:
		if len(ps) == 2 {
			if v, ok := parseFloat(ps[0]); ok {
				spacing[1] = v // row spacing first per DICOM
			}
			if v, ok := parseFloat(ps[1]); ok {
				spacing[0] = v
			}
		}
	case string:
		if v, ok := parseFloat(ps); ok {
			spacing[0], spacing[1] = v, v
		}
	}
	if st, ok := public["SliceThickness"]; ok {
		if v, ok := parseFloat(fmt.Sprintf("%v", st)); ok {
			spacing[2] = v
		}
	}
	return spacing
}

func parseFloat(s string) (float64, bool) {
	var v float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &v)
	return v, err == nil
}

// ListSeries returns the DICOM files in dir in name order, which for the
// zero-padded names scanners emit is acquisition order.
func ListSeries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read series directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".dcm") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
