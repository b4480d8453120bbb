package raster

import (
	"fmt"
	"math"
)

type DType string

const (
	Byte    DType = "Byte"
	UInt16  DType = "UInt16"
	Int16   DType = "Int16"
	UInt32  DType = "UInt32"
	Int32   DType = "Int32"
	Float32 DType = "Float32"
	Float64 DType = "Float64"
)

func (d DType) Valid() bool {
	switch d {
	case Byte, UInt16, Int16, UInt32, Int32, Float32, Float64:
		return true
	}
	return false
}

// GeoTransform uses the GDAL coefficient order: origin x, pixel width, row
// rotation, origin y, column rotation, pixel height.
type GeoTransform [6]float64

func (gt GeoTransform) NorthUp() bool {
	return gt[2] == 0 && gt[4] == 0
}

// PixelCenter returns the georeferenced centre of pixel (row, col).
func (gt GeoTransform) PixelCenter(row, col int) (x, y float64) {
	c, r := float64(col)+0.5, float64(row)+0.5
	return gt[0] + c*gt[1] + r*gt[2], gt[3] + c*gt[4] + r*gt[5]
}

// Shift returns the transform of a window whose top-left pixel is (row, col).
func (gt GeoTransform) Shift(row, col int) GeoTransform {
	out := gt
	out[0] = gt[0] + float64(col)*gt[1] + float64(row)*gt[2]
	out[3] = gt[3] + float64(col)*gt[4] + float64(row)*gt[5]
	return out
}

type Info struct {
	Width        int
	Height       int
	CRS          string
	Transform    GeoTransform
	HasTransform bool
	DType        DType
	NoData       float64
	HasNoData    bool
}

func (i Info) Pixels() int {
	return i.Width * i.Height
}

type Header struct {
	Info
	Channels int
}

// Image holds every channel of a raster as a row-major slice of Width*Height values.
type Image struct {
	Info
	Bands [][]float64
}

func (im *Image) Channels() int {
	return len(im.Bands)
}

func (im *Image) Header() Header {
	return Header{Info: im.Info, Channels: len(im.Bands)}
}

func (im *Image) Validate() error {
	if im.Width <= 0 || im.Height <= 0 {
		return fmt.Errorf("invalid raster size %dx%d", im.Width, im.Height)
	}
	if len(im.Bands) == 0 {
		return fmt.Errorf("raster has no bands")
	}
	for i, b := range im.Bands {
		if len(b) != im.Pixels() {
			return fmt.Errorf("band %d has %d values, expected %d", i+1, len(b), im.Pixels())
		}
	}
	if !im.DType.Valid() {
		return fmt.Errorf("unsupported data type %q", im.DType)
	}
	return nil
}

// Product describes a raster artifact already persisted on disk.
type Product struct {
	Header
	Name    string
	Project string
	Date    string
	Cropped bool
	Path    string
}

// SameGrid reports whether two rasters share size, CRS and transform.
func SameGrid(a, b Info) bool {
	return a.Width == b.Width &&
		a.Height == b.Height &&
		a.CRS == b.CRS &&
		a.HasTransform == b.HasTransform &&
		a.Transform == b.Transform
}

// Cast converts v the way a numeric type conversion to dt would: integer
// types truncate toward zero and wrap, Float32 loses precision.
func Cast(v float64, dt DType) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		switch dt {
		case Float32, Float64:
			return v
		}
		return 0
	}
	switch dt {
	case Byte:
		return float64(uint8(int64(v)))
	case UInt16:
		return float64(uint16(int64(v)))
	case Int16:
		return float64(int16(int64(v)))
	case UInt32:
		return float64(uint32(int64(v)))
	case Int32:
		return float64(int32(int64(v)))
	case Float32:
		return float64(float32(v))
	}
	return v
}

type Codec interface {
	Stat(path string) (Header, error)
	Read(path string) (*Image, error)
	Write(path string, img *Image) error
}
