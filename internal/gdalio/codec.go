package gdalio

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

// Codec reads and writes GeoTIFF rasters through GDAL.
type Codec struct {
	// CreationOptions are passed to the GTiff driver on write.
	CreationOptions []string
}

func NewCodec() *Codec {
	register()
	return &Codec{CreationOptions: []string{"TILED=YES", "COMPRESS=DEFLATE"}}
}

func open(path string) (*godal.Dataset, error) {
	return godal.Open(path, godal.RasterOnly(), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("GDAL error %d: %s", code, msg)
	}))
}

func (c *Codec) Stat(path string) (raster.Header, error) {
	ds, err := open(path)
	if err != nil {
		return raster.Header{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()
	return header(ds)
}

func header(ds *godal.Dataset) (raster.Header, error) {
	st := ds.Structure()
	dt, err := fromGDAL(st.DataType)
	if err != nil {
		return raster.Header{}, err
	}
	h := raster.Header{
		Info: raster.Info{
			Width:  st.SizeX,
			Height: st.SizeY,
			CRS:    ds.Projection(),
			DType:  dt,
		},
		Channels: st.NBands,
	}
	if gt, err := ds.GeoTransform(); err == nil {
		h.Transform, h.HasTransform = raster.GeoTransform(gt), true
	}
	if bands := ds.Bands(); len(bands) > 0 {
		h.NoData, h.HasNoData = bands[0].NoData()
	}
	return h, nil
}

func (c *Codec) Read(path string) (*raster.Image, error) {
	ds, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	h, err := header(ds)
	if err != nil {
		return nil, err
	}
	img := &raster.Image{Info: h.Info, Bands: make([][]float64, h.Channels)}
	for i, band := range ds.Bands() {
		data := make([]float64, h.Pixels())
		if err := band.Read(0, 0, data, h.Width, h.Height); err != nil {
			return nil, fmt.Errorf("failed to read band %d of %s: %w", i+1, path, err)
		}
		img.Bands[i] = data
	}
	return img, nil
}

// Write creates a GeoTIFF at path. Values are converted to the image data
// type before GDAL sees them, so integer outputs wrap instead of clamping.
func (c *Codec) Write(path string, img *raster.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	dt, err := toGDAL(img.DType)
	if err != nil {
		return err
	}

	ds, err := godal.Create(godal.GTiff, path, len(img.Bands), dt, img.Width, img.Height, godal.CreationOption(c.CreationOptions...))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := fill(ds, img); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func fill(ds *godal.Dataset, img *raster.Image) error {
	if img.HasTransform {
		if err := ds.SetGeoTransform([6]float64(img.Transform)); err != nil {
			return err
		}
	}
	if img.CRS != "" {
		sr, err := godal.NewSpatialRef(img.CRS)
		if err != nil {
			return fmt.Errorf("invalid CRS: %w", err)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return err
		}
	}

	buf := make([]float64, img.Pixels())
	for i, band := range ds.Bands() {
		for j, v := range img.Bands[i] {
			buf[j] = raster.Cast(v, img.DType)
		}
		if err := band.Write(0, 0, buf, img.Width, img.Height); err != nil {
			return err
		}
		if img.HasNoData {
			if err := band.SetNoData(img.NoData); err != nil {
				return err
			}
		}
	}
	return nil
}

var dtypes = map[raster.DType]godal.DataType{
	raster.Byte:    godal.Byte,
	raster.UInt16:  godal.UInt16,
	raster.Int16:   godal.Int16,
	raster.UInt32:  godal.UInt32,
	raster.Int32:   godal.Int32,
	raster.Float32: godal.Float32,
	raster.Float64: godal.Float64,
}

func toGDAL(dt raster.DType) (godal.DataType, error) {
	if g, ok := dtypes[dt]; ok {
		return g, nil
	}
	return godal.Unknown, fmt.Errorf("unsupported data type %q", dt)
}

func fromGDAL(g godal.DataType) (raster.DType, error) {
	for dt, candidate := range dtypes {
		if candidate == g {
			return dt, nil
		}
	}
	return "", fmt.Errorf("unsupported GDAL data type %v", g)
}
