// Package preview renders quick-look PNG mosaics of NIfTI volumes, the kind
// of thumbnail a monitoring dashboard shows while a run is being collected.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"

	"github.com/mrsinham/bidsforge/internal/nifti"
)

// tileSize is the rendered edge length of one slice tile.
const tileSize = 128

// WriteMosaic renders volume t of img as a grayscale slice mosaic PNG at
// outPath. Display window is mean ± 2.5 standard deviations of the volume's
// voxels.
func WriteMosaic(img *nifti.Image, t int, outPath string) error {
	vol, err := img.VolumeAt(t)
	if err != nil {
		return err
	}
	voxels, err := vol.Floats64()
	if err != nil {
		return err
	}

	dims := vol.Dims()
	nx, ny, nz := dims[0], dims[1], dims[2]

	mean := stat.Mean(voxels, nil)
	sigma := math.Sqrt(stat.Variance(voxels, nil))
	lo, hi := mean-2.5*sigma, mean+2.5*sigma
	if hi <= lo {
		hi = lo + 1
	}

	// Near-square grid of slice tiles.
	gridCols := int(math.Ceil(math.Sqrt(float64(nz))))
	gridRows := (nz + gridCols - 1) / gridCols

	mosaic := image.NewGray(image.Rect(0, 0, gridCols*tileSize, gridRows*tileSize))
	for z := 0; z < nz; z++ {
		slice := image.NewGray(image.Rect(0, 0, nx, ny))
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				v := voxels[z*nx*ny+y*nx+x]
				level := (v - lo) / (hi - lo)
				if level < 0 {
					level = 0
				} else if level > 1 {
					level = 1
				}
				slice.SetGray(x, y, color.Gray{Y: uint8(level * 255)})
			}
		}

		tile := image.Rect(
			(z%gridCols)*tileSize, (z/gridCols)*tileSize,
			(z%gridCols+1)*tileSize, (z/gridCols+1)*tileSize)
		draw.ApproxBiLinear.Scale(mosaic, tile, slice, slice.Bounds(), draw.Src, nil)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create preview file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, mosaic); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}
