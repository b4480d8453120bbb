package artifact

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
	"github.com/forest-guardian/maxsatt-segmentation/internal/raster/rastertest"
)

func testImage() *raster.Image {
	return &raster.Image{
		Info:  raster.Info{Width: 2, Height: 1, DType: raster.UInt16, CRS: "EPSG:32633"},
		Bands: [][]float64{{1, 2}},
	}
}

func TestResolvePathLayout(t *testing.T) {
	s := NewStore("/data", rastertest.NewCodec())

	cases := []struct {
		key  Key
		want string
	}{
		{ImageKey("forest", "2020_05_17", "RGB", false), "/data/projects/forest/images/2020_05_17/RGB.tiff"},
		{ImageKey("forest", "2020_05_17", "RGB", true), "/data/projects/forest/images/2020_05_17/cropped/RGB_Cropped.tiff"},
		{
			Key{Project: "forest", Date: "2020_05_17", Kind: KindClassification, Product: "NDVI", Algorithm: "kmeans", Param: "7"},
			"/data/projects/forest/classification/2020_05_17/kmeans_7_NDVI.tiff",
		},
		{
			Key{Project: "forest", Date: "2020_05_17", Cropped: true, Kind: KindClassification, Product: "NDVI", Algorithm: "gmm", Param: "4", Normalized: true},
			"/data/projects/forest/classification/2020_05_17/cropped/gmm-norm_4_NDVI.tiff",
		},
		{
			Key{Project: "forest", Date: "2020_05_17", Kind: KindClassification, Product: "RGB", Algorithm: "dbscan", Param: "0.5-100", Sigma: 1.5},
			"/data/projects/forest/classification/2020_05_17/dbscan-blur1.5_0.5-100_RGB.tiff",
		},
	}
	for _, tc := range cases {
		got, err := s.ResolvePath(tc.key)
		require.NoError(t, err)
		assert.Equal(t, filepath.FromSlash(tc.want), got)
	}
}

func TestResolvePathDistinctKeysDistinctPaths(t *testing.T) {
	s := NewStore(t.TempDir(), rastertest.NewCodec())
	base := Key{Project: "p", Date: "2020_01_01", Kind: KindClassification, Product: "RGB", Algorithm: "kmeans", Param: "3"}

	variants := []Key{base}
	k := base
	k.Cropped = true
	variants = append(variants, k)
	k = base
	k.Normalized = true
	variants = append(variants, k)
	k = base
	k.Param = "4"
	variants = append(variants, k)
	k = base
	k.Algorithm = "gmm"
	variants = append(variants, k)
	k = base
	k.Sigma = 2
	variants = append(variants, k)

	seen := map[string]bool{}
	for _, v := range variants {
		p, err := s.ResolvePath(v)
		require.NoError(t, err)
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true

		again, err := s.ResolvePath(v)
		require.NoError(t, err)
		assert.Equal(t, p, again)
	}
}

func TestResolvePathRejectsBadSegments(t *testing.T) {
	s := NewStore(t.TempDir(), rastertest.NewCodec())
	for _, k := range []Key{
		ImageKey("", "2020_01_01", "RGB", false),
		ImageKey("p", "../x", "RGB", false),
		ImageKey("p", "2020_01_01", "RGB_Cropped", false),
		{Project: "p", Date: "d", Kind: "videos", Product: "RGB"},
		{Project: "p", Date: "d", Kind: KindClassification, Product: "RGB", Algorithm: "k-means", Param: "3"},
		{Project: "p", Date: "d", Kind: KindClassification, Product: "RGB", Algorithm: "kmeans"},
	} {
		_, err := s.ResolvePath(k)
		assert.Error(t, err, "%+v", k)
	}
}

func TestResolvePathCollision(t *testing.T) {
	s := NewStore(t.TempDir(), rastertest.NewCodec())
	k := ImageKey("p", "2020_01_01", "RGB", false)
	path, err := s.ResolvePath(k)
	require.NoError(t, err)

	// Simulate a second key claiming the same file.
	s.seen[path] = "another key"
	_, err = s.ResolvePath(k)
	var collision *CollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, path, collision.Path)
}

func TestWriteIsAtomicAndExists(t *testing.T) {
	codec := rastertest.NewCodec()
	s := NewStore(t.TempDir(), codec)
	path, err := s.ResolvePath(ImageKey("p", "2020_01_01", "RGB", false))
	require.NoError(t, err)

	ok, err := s.Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(path, testImage()))
	ok, err = s.Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "RGB.tiff", entries[0].Name())

	product, err := s.Describe(path, ImageKey("p", "2020_01_01", "RGB", false))
	require.NoError(t, err)
	assert.Equal(t, "RGB", product.Name)
	assert.Equal(t, 2, product.Width)
	assert.Equal(t, 1, product.Channels)
}

func TestDescribeKeepsProductName(t *testing.T) {
	s := NewStore(t.TempDir(), rastertest.NewCodec())
	cropped := ImageKey("p", "2020_01_01", "RGB", true)
	path, err := s.ResolvePath(cropped)
	require.NoError(t, err)
	require.NoError(t, s.Write(path, testImage()))
	assert.Equal(t, "RGB_Cropped.tiff", filepath.Base(path))

	product, err := s.Describe(path, cropped)
	require.NoError(t, err)
	assert.Equal(t, "RGB", product.Name)
	assert.True(t, product.Cropped)

	// the name is a valid product token again
	_, err = s.ResolvePath(ImageKey("p", "2020_01_01", product.Name, true))
	assert.NoError(t, err)

	labels := Key{Project: "p", Date: "2020_01_01", Kind: KindClassification, Product: "RGB", Algorithm: "kmeans", Param: "3"}
	path, err = s.ResolvePath(labels)
	require.NoError(t, err)
	require.NoError(t, s.Write(path, testImage()))
	product, err = s.Describe(path, labels)
	require.NoError(t, err)
	assert.Equal(t, "kmeans_3_RGB", product.Name)
}

type failingCodec struct {
	*rastertest.Codec
}

func (failingCodec) Write(path string, img *raster.Image) error {
	// Leave a partial file behind like an interrupted encoder would.
	if err := os.WriteFile(path, []byte("partial"), 0644); err != nil {
		return err
	}
	return errors.New("disk full")
}

func TestWriteFailureLeavesNothing(t *testing.T) {
	s := NewStore(t.TempDir(), failingCodec{rastertest.NewCodec()})
	path, err := s.ResolvePath(ImageKey("p", "2020_01_01", "NDVI", false))
	require.NoError(t, err)

	err = s.Write(path, testImage())
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "write", storageErr.Op)

	ok, err := s.Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteFile(t *testing.T) {
	s := NewStore(t.TempDir(), rastertest.NewCodec())
	path, err := s.PlotPath("p", "2020_01_01", "RGB", true)
	require.NoError(t, err)
	assert.Equal(t, "elbow_RGB.png", filepath.Base(path))

	require.NoError(t, s.WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "png")
		return err
	}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestListMatching(t *testing.T) {
	s := NewStore(t.TempDir(), rastertest.NewCodec())
	keys := []Key{
		ImageKey("p", "2020_05_17", "RGB", false),
		ImageKey("p", "2020_05_17", "NDVI", false),
		ImageKey("p", "2020_05_17", "RGB", true),
		ImageKey("p", "2020_06_01", "RGB", false),
		{Project: "p", Date: "2020_05_17", Cropped: true, Kind: KindClassification, Product: "RGB", Algorithm: "kmeans", Param: "5", Normalized: true},
		{Project: "p", Date: "2020_05_17", Kind: KindClassification, Product: "RGB", Algorithm: "dbscan", Param: "0.3-10"},
	}
	paths := map[Key]string{}
	for _, k := range keys {
		p, err := s.ResolvePath(k)
		require.NoError(t, err)
		require.NoError(t, s.Write(p, testImage()))
		paths[k] = p
	}
	// noise that must never be listed
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(paths[keys[0]]), "RGB.tiff.aux.xml"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(paths[keys[0]]), ".RGB.tiff.123.tmp"), nil, 0644))

	cropped := true
	got, err := s.List(Criteria{Project: "p", Date: "2020_05_17", Kind: KindImage, Cropped: &cropped})
	require.NoError(t, err)
	assert.Equal(t, []string{paths[keys[2]]}, got)

	got, err = s.List(Criteria{Project: "p", Kind: KindImage, Product: "RGB"})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.List(Criteria{Project: "p", Algorithm: "kmeans"})
	require.NoError(t, err)
	assert.Equal(t, []string{paths[keys[4]]}, got)

	got, err = s.List(Criteria{Project: "p"})
	require.NoError(t, err)
	assert.Len(t, got, len(keys))

	got, err = s.List(Criteria{Project: "missing"})
	require.NoError(t, err)
	assert.Empty(t, got)

	dates, err := s.Dates("p", KindImage)
	require.NoError(t, err)
	assert.Equal(t, []string{"2020_05_17", "2020_06_01"}, dates)
}

func TestParsePathRoundTrip(t *testing.T) {
	s := NewStore("/root", rastertest.NewCodec())
	k := Key{Project: "p", Date: "2020_05_17", Cropped: true, Kind: KindClassification, Product: "SWI", Algorithm: "gmm", Param: "6", Normalized: true, Sigma: 0.75}
	path, err := s.ResolvePath(k)
	require.NoError(t, err)

	rel, err := filepath.Rel(s.ProjectDir("p"), path)
	require.NoError(t, err)
	parsed, err := ParsePath("p", rel)
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}
