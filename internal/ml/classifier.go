package ml

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/forest-guardian/maxsatt-segmentation/internal/artifact"
	"github.com/forest-guardian/maxsatt-segmentation/internal/dataset"
	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
	"github.com/forest-guardian/maxsatt-segmentation/internal/runlog"
)

// LabelNoData marks label raster pixels without a class.
const LabelNoData = -9999

type Classifier struct {
	store  *artifact.Store
	runLog *runlog.Log
	logger zerolog.Logger

	Degenerate dataset.DegeneratePolicy
	// Fit clusters a prepared table. Defaults to the in-process Fit.
	Fit FitFunc
	// Workers bounds the parallel runs of a sweep. Zero means one per k.
	Workers int
}

func NewClassifier(store *artifact.Store, runLog *runlog.Log, logger zerolog.Logger) *Classifier {
	return &Classifier{
		store:  store,
		runLog: runLog,
		logger: logger,
		Fit:    Fit,
	}
}

type Request struct {
	Project string
	Date    string
	Product string
	Cropped bool

	Algorithm Algorithm
	Params    Params
	Normalize bool
	Sigma     float64
	Force     bool
}

func (r Request) key() artifact.Key {
	return artifact.Key{
		Project:    r.Project,
		Date:       r.Date,
		Cropped:    r.Cropped,
		Kind:       artifact.KindClassification,
		Product:    r.Product,
		Algorithm:  string(r.Algorithm),
		Param:      r.Params.Token(r.Algorithm),
		Normalized: r.Normalize,
		Sigma:      r.Sigma,
	}
}

type Outcome struct {
	// Labels is the label raster artifact.
	Labels  raster.Product
	Skipped bool
	// Result is nil when the artifact already existed.
	Result *Result
}

// Classify clusters the pixels of a product and writes the label raster.
// An existing label raster is returned as is unless req.Force is set.
func (c *Classifier) Classify(ctx context.Context, req Request) (Outcome, error) {
	key := req.key()
	path, err := c.store.ResolvePath(key)
	if err != nil {
		return Outcome{}, err
	}
	log := c.logger.With().
		Str("project", req.Project).
		Str("date", req.Date).
		Str("product", req.Product).
		Str("algorithm", key.AlgorithmToken()).
		Str("param", key.Param).
		Logger()

	if !req.Force {
		exists, err := c.store.Exists(path)
		if err != nil {
			return Outcome{}, err
		}
		if exists {
			log.Debug().Str("path", path).Msg("classification already exists, skipping")
			labels, err := c.store.Describe(path, key)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Labels: labels, Skipped: true}, nil
		}
	}

	outcome, err := c.classify(ctx, req, key, path, log)
	entry := c.entry(req, key, outcome.Result)
	if logErr := c.runLog.Append(entry); logErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to append run log: %w", logErr))
	}
	if err != nil {
		log.Error().Err(err).Msg("classification failed")
		return Outcome{}, err
	}
	return outcome, nil
}

func (c *Classifier) classify(ctx context.Context, req Request, key artifact.Key, path string, log zerolog.Logger) (Outcome, error) {
	src, table, err := c.prepare(req.Project, req.Date, req.Product, req.Cropped, req.Normalize, req.Sigma)
	if err != nil {
		return Outcome{}, err
	}

	job := NewJob(req.Algorithm, req.Params, c.Fit)
	result, err := job.Run(ctx, table)
	if err != nil {
		return Outcome{}, err
	}

	img := labelImage(src, result.Labels)
	if !src.HasTransform || src.CRS == "" {
		log.Warn().Str("source", src.Path).Msg("source has no georeferencing, label raster is written without it")
	}
	if err := c.store.Write(path, img); err != nil {
		return Outcome{}, err
	}
	log.Info().Str("path", path).Int("clusters", len(result.Metrics.Histogram)).Msg("product classified")

	return Outcome{
		Labels: raster.Product{
			Header:  img.Header(),
			Name:    key.Name(),
			Project: req.Project,
			Date:    req.Date,
			Cropped: req.Cropped,
			Path:    path,
		},
		Result: &result,
	}, nil
}

// prepare reads a source product and turns it into the table handed to the
// clustering: smoothed first when sigma > 0, then standardized if asked.
func (c *Classifier) prepare(project, date, product string, cropped, normalize bool, sigma float64) (raster.Product, *mat.Dense, error) {
	srcKey := artifact.ImageKey(project, date, product, cropped)
	srcPath, err := c.store.ResolvePath(srcKey)
	if err != nil {
		return raster.Product{}, nil, err
	}
	src, err := c.store.Describe(srcPath, srcKey)
	if err != nil {
		return raster.Product{}, nil, fmt.Errorf("source product %s is not available: %w", srcKey.Name(), err)
	}

	table, _, err := dataset.FlattenProduct(c.store.Codec(), src)
	if err != nil {
		return raster.Product{}, nil, err
	}
	if sigma > 0 {
		if table, err = dataset.Smooth(table, sigma, src.Height, src.Width); err != nil {
			return raster.Product{}, nil, err
		}
	}
	if normalize {
		if table, err = dataset.Standardize(table, c.Degenerate); err != nil {
			return raster.Product{}, nil, err
		}
	}
	return src, table, nil
}

func labelImage(src raster.Product, labels []int) *raster.Image {
	info := raster.Info{
		Width:     src.Width,
		Height:    src.Height,
		DType:     raster.Float32,
		NoData:    LabelNoData,
		HasNoData: true,
	}
	if src.HasTransform {
		info.Transform, info.HasTransform = src.Transform, true
	}
	info.CRS = src.CRS

	band := make([]float64, len(labels))
	for i, l := range labels {
		band[i] = float64(l)
	}
	return &raster.Image{Info: info, Bands: [][]float64{band}}
}

func (c *Classifier) entry(req Request, key artifact.Key, result *Result) runlog.Entry {
	e := runlog.Entry{
		Project:    req.Project,
		Date:       req.Date,
		ImageType:  req.Product,
		Clusters:   key.Param,
		Cropped:    req.Cropped,
		Normalized: req.Normalize,
		Algorithm:  key.AlgorithmToken(),
		Cost:       Cost(req.Algorithm, result),
	}
	if result != nil {
		for _, b := range result.Metrics.Histogram {
			e.Histogram = append(e.Histogram, runlog.Bucket{Label: b.Label, Count: b.Count})
		}
	}
	return e
}
