package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

// Flatten turns an image into a pixel table: one row per pixel in row-major
// order (row*width + col), one column per band.
func Flatten(img *raster.Image) (*mat.Dense, error) {
	if img == nil {
		return nil, shapeErrorf("no image")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, shapeErrorf("raster size %dx%d", img.Width, img.Height)
	}
	if len(img.Bands) == 0 {
		return nil, shapeErrorf("raster has no bands")
	}

	pixels := img.Pixels()
	for b, band := range img.Bands {
		if len(band) != pixels {
			return nil, shapeErrorf("band %d has %d values, expected %d", b+1, len(band), pixels)
		}
	}

	channels := len(img.Bands)
	data := make([]float64, pixels*channels)
	for i := 0; i < pixels; i++ {
		row := data[i*channels : (i+1)*channels]
		for b, band := range img.Bands {
			row[b] = band[i]
		}
	}
	return mat.NewDense(pixels, channels, data), nil
}

// Unflatten is the inverse of Flatten. It returns one slice per column of t.
func Unflatten(t mat.Matrix, height, width int) ([][]float64, error) {
	if height <= 0 || width <= 0 {
		return nil, shapeErrorf("target size %dx%d", width, height)
	}
	rows, cols := t.Dims()
	if rows != height*width {
		return nil, shapeErrorf("table has %d rows, %dx%d raster needs %d", rows, width, height, height*width)
	}

	bands := make([][]float64, cols)
	for b := range bands {
		bands[b] = mat.Col(nil, b, t)
	}
	return bands, nil
}

// FlattenProduct reads a persisted product and flattens it.
func FlattenProduct(codec raster.Codec, product raster.Product) (*mat.Dense, *raster.Image, error) {
	img, err := codec.Read(product.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", product.Path, err)
	}
	t, err := Flatten(img)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to flatten %s: %w", product.Path, err)
	}
	return t, img, nil
}
