package gdalio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec()
	path := filepath.Join(t.TempDir(), "NDVI.tiff")
	img := &raster.Image{
		Info: raster.Info{
			Width:        3,
			Height:       2,
			CRS:          "EPSG:32633",
			Transform:    raster.GeoTransform{500000, 10, 0, 4200000, 0, -10},
			HasTransform: true,
			DType:        raster.Float32,
			NoData:       -9999,
			HasNoData:    true,
		},
		Bands: [][]float64{{0.5, -0.25, 1, 0, -9999, 0.125}},
	}
	require.NoError(t, codec.Write(path, img))

	h, err := codec.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Width)
	assert.Equal(t, 2, h.Height)
	assert.Equal(t, 1, h.Channels)
	assert.Equal(t, raster.Float32, h.DType)
	assert.True(t, h.HasTransform)
	assert.Equal(t, img.Transform, h.Transform)
	assert.True(t, h.HasNoData)
	assert.Equal(t, -9999.0, h.NoData)
	assert.True(t, SameCRS("EPSG:32633", h.CRS))

	back, err := codec.Read(path)
	require.NoError(t, err)
	assert.Equal(t, img.Bands, back.Bands)
}

func TestCodecWriteWrapsIntegers(t *testing.T) {
	codec := NewCodec()
	path := filepath.Join(t.TempDir(), "RGB.tiff")
	img := &raster.Image{
		Info:  raster.Info{Width: 2, Height: 1, DType: raster.UInt16},
		Bands: [][]float64{{-1, 70000}, {3.9, 12}, {0, 65535}},
	}
	require.NoError(t, codec.Write(path, img))

	back, err := codec.Read(path)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{65535, 4464}, {3, 12}, {0, 65535}}, back.Bands)
	assert.False(t, back.HasTransform)
	assert.Empty(t, back.CRS)
}

func TestCodecMissingFile(t *testing.T) {
	_, err := NewCodec().Stat(filepath.Join(t.TempDir(), "missing.tiff"))
	assert.Error(t, err)
}

func TestSameCRS(t *testing.T) {
	assert.True(t, SameCRS("EPSG:4326", "EPSG:4326"))
	assert.False(t, SameCRS("EPSG:4326", "EPSG:32633"))
	assert.False(t, SameCRS("EPSG:4326", ""))
	assert.False(t, SameCRS("EPSG:4326", "not a crs"))
}

const twoSquares = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"plot_id": "a"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature", "properties": {"plot_id": "b"},
     "geometry": {"type": "Polygon", "coordinates": [[[1,0],[2,0],[2,1],[1,1],[1,0]]]}}
  ]
}`

func TestLoadRegionMergesFeatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.geojson")
	require.NoError(t, os.WriteFile(path, []byte(twoSquares), 0644))

	region, err := LoadRegion(path, "EPSG:4326")
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", region.CRS)

	bound := region.Geometry.Bound()
	assert.InDelta(t, 0, bound.Min.X(), 1e-9)
	assert.InDelta(t, 2, bound.Max.X(), 1e-9)
	assert.InDelta(t, 1, bound.Max.Y(), 1e-9)

	_, isPoly := region.Geometry.(orb.Polygon)
	_, isMulti := region.Geometry.(orb.MultiPolygon)
	assert.True(t, isPoly || isMulti)
}

func TestLoadRegionReprojects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.geojson")
	require.NoError(t, os.WriteFile(path, []byte(twoSquares), 0644))

	region, err := LoadRegion(path, "EPSG:3857")
	require.NoError(t, err)
	bound := region.Geometry.Bound()
	// 2 degrees of longitude at the equator in web mercator.
	assert.InDelta(t, 222638.98, bound.Max.X(), 1)
}

func TestLoadRegionErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadRegion(filepath.Join(dir, "missing.geojson"), "EPSG:4326")
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.geojson")
	require.NoError(t, os.WriteFile(empty, []byte(`{"type":"FeatureCollection","features":[]}`), 0644))
	_, err = LoadRegion(empty, "EPSG:4326")
	assert.Error(t, err)
}
