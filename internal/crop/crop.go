package crop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/forest-guardian/maxsatt-segmentation/internal/artifact"
	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

// snap absorbs floating point noise when mapping coordinates to pixel edges.
const snap = 1e-9

type Engine struct {
	store  *artifact.Store
	logger zerolog.Logger

	// SameCRS decides whether a region and a raster share a CRS. Defaults
	// to exact string comparison.
	SameCRS func(a, b string) bool
	// Force recomputes crops whose artifact already exists.
	Force bool
	// Progress renders a progress bar for batch crops.
	Progress bool
}

func NewEngine(store *artifact.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		logger:  logger,
		SameCRS: func(a, b string) bool { return a == b },
	}
}

// Crop masks product to region and cuts it to the region's bounding box.
func (e *Engine) Crop(ctx context.Context, product raster.Product, region Region) (raster.Product, error) {
	key := artifact.ImageKey(product.Project, product.Date, product.Name, true)
	path, err := e.store.ResolvePath(key)
	if err != nil {
		return raster.Product{}, err
	}
	log := e.logger.With().Str("project", product.Project).Str("date", product.Date).Str("product", product.Name).Logger()

	if !e.Force {
		exists, err := e.store.Exists(path)
		if err != nil {
			return raster.Product{}, err
		}
		if exists {
			log.Debug().Str("path", path).Msg("crop already exists, skipping")
			return e.store.Describe(path, key)
		}
	}

	if err := region.validate(); err != nil {
		return raster.Product{}, err
	}
	if !e.SameCRS(product.CRS, region.CRS) {
		return raster.Product{}, &CRSMismatchError{Product: product.Name, RasterCRS: product.CRS, RegionCRS: region.CRS}
	}
	if !product.HasTransform {
		return raster.Product{}, fmt.Errorf("product %s has no geotransform to crop with", product.Name)
	}
	if !product.Transform.NorthUp() {
		return raster.Product{}, fmt.Errorf("product %s has a rotated geotransform, which is not supported", product.Name)
	}

	win, ok := window(product.Info, region.Geometry.Bound())
	if !ok {
		return raster.Product{}, &EmptyIntersectionError{Product: product.Name}
	}
	if err := ctx.Err(); err != nil {
		return raster.Product{}, err
	}

	img, err := e.store.Codec().Read(product.Path)
	if err != nil {
		return raster.Product{}, &artifact.StorageError{Op: "read", Path: product.Path, Err: err}
	}
	out := mask(img, region, win)

	if err := e.store.Write(path, out); err != nil {
		return raster.Product{}, err
	}
	log.Info().Int("width", out.Width).Int("height", out.Height).Str("path", path).Msg("product cropped")

	return raster.Product{
		Header:  out.Header(),
		Name:    product.Name,
		Project: product.Project,
		Date:    product.Date,
		Cropped: true,
		Path:    path,
	}, nil
}

type pixelWindow struct {
	row, col      int
	height, width int
}

// window maps a bound to the pixel rows and columns it touches, clipped to
// the raster. ok is false when nothing is left.
func window(info raster.Info, b orb.Bound) (pixelWindow, bool) {
	gt := info.Transform
	colA := (b.Min[0] - gt[0]) / gt[1]
	colB := (b.Max[0] - gt[0]) / gt[1]
	rowA := (b.Min[1] - gt[3]) / gt[5]
	rowB := (b.Max[1] - gt[3]) / gt[5]

	c0 := max(floor(math.Min(colA, colB)), 0)
	c1 := min(ceil(math.Max(colA, colB)), info.Width)
	r0 := max(floor(math.Min(rowA, rowB)), 0)
	r1 := min(ceil(math.Max(rowA, rowB)), info.Height)
	if c0 >= c1 || r0 >= r1 {
		return pixelWindow{}, false
	}
	return pixelWindow{row: r0, col: c0, height: r1 - r0, width: c1 - c0}, true
}

func floor(v float64) int {
	return int(math.Floor(v + snap))
}

func ceil(v float64) int {
	return int(math.Ceil(v - snap))
}

// mask copies the window out of img; pixels whose centre falls outside the
// region take the nodata value, or 0 without one.
func mask(img *raster.Image, region Region, win pixelWindow) *raster.Image {
	fill := 0.0
	if img.HasNoData {
		fill = img.NoData
	}

	info := img.Info
	info.Width, info.Height = win.width, win.height
	info.Transform = img.Transform.Shift(win.row, win.col)

	bands := make([][]float64, len(img.Bands))
	for b := range bands {
		bands[b] = make([]float64, win.width*win.height)
	}
	for r := 0; r < win.height; r++ {
		for c := 0; c < win.width; c++ {
			x, y := img.Transform.PixelCenter(win.row+r, win.col+c)
			inside := region.contains(orb.Point{x, y})
			src := (win.row+r)*img.Width + win.col + c
			dst := r*win.width + c
			for b := range bands {
				if inside {
					bands[b][dst] = img.Bands[b][src]
				} else {
					bands[b][dst] = fill
				}
			}
		}
	}
	return &raster.Image{Info: info, Bands: bands}
}

// CropDate crops every uncropped product of one acquisition date. A failing
// product does not stop the others; all failures are returned joined.
func (e *Engine) CropDate(ctx context.Context, project, date string, region Region) ([]raster.Product, error) {
	dir := filepath.Join(e.store.ProjectDir(project), string(artifact.KindImage), date)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &artifact.StorageError{Op: "list", Path: dir, Err: err}
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.Contains(name, "_Cropped") || strings.Contains(name, ".aux") {
			continue
		}
		candidates = append(candidates, name)
	}

	var bar *progressbar.ProgressBar
	if e.Progress {
		bar = progressbar.Default(int64(len(candidates)), "Cropping "+date)
	} else {
		bar = progressbar.DefaultSilent(int64(len(candidates)))
	}
	defer bar.Finish()

	var (
		products []raster.Product
		errs     []error
	)
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		key, err := artifact.ParsePath(project, filepath.Join(string(artifact.KindImage), date, name))
		if err != nil {
			e.logger.Debug().Str("file", name).Err(err).Msg("not a product, skipping")
			bar.Add(1)
			continue
		}
		path := filepath.Join(dir, name)
		product, err := e.store.Describe(path, key)
		if err == nil {
			product, err = e.Crop(ctx, product, region)
		}
		if err != nil {
			e.logger.Error().Err(err).Str("project", project).Str("date", date).Str("file", name).Msg("crop failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else {
			products = append(products, product)
		}
		bar.Add(1)
	}
	return products, errors.Join(errs...)
}
