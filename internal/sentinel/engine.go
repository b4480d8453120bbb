package sentinel

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/forest-guardian/maxsatt-segmentation/internal/artifact"
	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

// Engine derives catalog products from the bands of one acquisition.
type Engine struct {
	store  *artifact.Store
	logger zerolog.Logger

	// Force recomputes products whose artifact already exists.
	Force bool
}

func NewEngine(store *artifact.Store, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Compute builds the named product for (project, date) from m. When the
// artifact is already on disk it is returned untouched.
func (e *Engine) Compute(ctx context.Context, project, date, name string, m *Manifest) (raster.Product, error) {
	f, err := Lookup(name)
	if err != nil {
		return raster.Product{}, err
	}
	sources, err := f.bands(m)
	if err != nil {
		return raster.Product{}, fmt.Errorf("product %s: %w", name, err)
	}

	key := artifact.ImageKey(project, date, f.Name, false)
	path, err := e.store.ResolvePath(key)
	if err != nil {
		return raster.Product{}, err
	}
	log := e.logger.With().Str("project", project).Str("date", date).Str("product", f.Name).Logger()

	if !e.Force {
		exists, err := e.store.Exists(path)
		if err != nil {
			return raster.Product{}, err
		}
		if exists {
			log.Debug().Str("path", path).Msg("product already exists, skipping")
			return e.store.Describe(path, key)
		}
	}

	grid := sources[0].Header()
	for _, src := range sources[1:] {
		if reason := mismatch(grid.Info, src.Header().Info); reason != "" {
			return raster.Product{}, &GeometryMismatchError{Product: f.Name, Band: src.Key(), Reason: reason}
		}
	}

	data := make([][]float64, len(sources))
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return raster.Product{}, err
		}
		values, err := src.Read()
		if err != nil {
			return raster.Product{}, fmt.Errorf("product %s: %w", f.Name, err)
		}
		data[i] = values
	}

	bands, dtype := f.combine(data, grid.DType)
	info := grid.Info
	info.DType = dtype
	if f.Kind != Composite {
		info.HasNoData, info.NoData = false, 0
	}
	img := &raster.Image{Info: info, Bands: bands}

	if err := e.store.Write(path, img); err != nil {
		return raster.Product{}, fmt.Errorf("product %s: %w", f.Name, err)
	}
	log.Info().Str("kind", f.Kind.String()).Int("channels", len(bands)).Str("path", path).Msg("product created")

	return raster.Product{
		Header:  img.Header(),
		Name:    f.Name,
		Project: project,
		Date:    date,
		Path:    path,
	}, nil
}

func mismatch(a, b raster.Info) string {
	if raster.SameGrid(a, b) {
		return ""
	}
	switch {
	case a.Width != b.Width || a.Height != b.Height:
		return fmt.Sprintf("is %dx%d, expected %dx%d", b.Width, b.Height, a.Width, a.Height)
	case a.CRS != b.CRS:
		return "has a different CRS"
	}
	return "has a different geotransform"
}
