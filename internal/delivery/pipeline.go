package delivery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/forest-guardian/maxsatt-segmentation/internal/artifact"
	"github.com/forest-guardian/maxsatt-segmentation/internal/crop"
	"github.com/forest-guardian/maxsatt-segmentation/internal/ml"
	"github.com/forest-guardian/maxsatt-segmentation/internal/notification"
	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
	"github.com/forest-guardian/maxsatt-segmentation/internal/sentinel"
)

// DateJob is everything to produce for one acquisition date.
type DateJob struct {
	Project string
	Date    string

	// BandsDir is the granule folder holding R10m/R20m/R60m. Products are
	// only computed when it is set.
	BandsDir string
	Products []string

	// RegionFile is a vector file; when set every product of the date is
	// cropped to it.
	RegionFile string

	// Classify and Sweeps get Project and Date from the job.
	Classify []ml.Request
	Sweeps   []ml.SweepRequest
}

type Pipeline struct {
	store      *artifact.Store
	products   *sentinel.Engine
	cropper    *crop.Engine
	classifier *ml.Classifier
	logger     zerolog.Logger

	// LoadRegion reads a region file reprojected to the given CRS.
	LoadRegion func(path, crs string) (crop.Region, error)
	Notifier   *notification.Notifier
	Workers    int
	Progress   bool
}

func NewPipeline(store *artifact.Store, products *sentinel.Engine, cropper *crop.Engine, classifier *ml.Classifier, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		products:   products,
		cropper:    cropper,
		classifier: classifier,
		logger:     logger,
		Workers:    1,
	}
}

// Run processes dates in parallel. A failing artifact never stops the batch;
// the returned report lists every failure. The error is only set when ctx was
// cancelled.
func (p *Pipeline) Run(ctx context.Context, jobs []DateJob) (Report, error) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		report Report
		bar    *progressbar.ProgressBar
	)
	if p.Progress {
		bar = progressbar.Default(int64(len(jobs)), "Processing dates")
	} else {
		bar = progressbar.DefaultSilent(int64(len(jobs)))
	}

	wp := workerpool.New(workers)
	for _, job := range jobs {
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			r := p.RunDate(ctx, job)
			mu.Lock()
			report.merge(r)
			bar.Add(1)
			mu.Unlock()
		})
	}
	wp.StopWait()
	bar.Finish()

	slices.Sort(report.Dates)
	p.notify(ctx, report)
	return report, ctx.Err()
}

func (p *Pipeline) notify(ctx context.Context, report Report) {
	var err error
	if len(report.Failures) > 0 {
		err = p.Notifier.Error(ctx, report.Summary())
	} else {
		err = p.Notifier.Success(ctx, report.Summary())
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to send notification")
	}
}

// RunDate computes, crops and classifies one date in that order. Every
// failure is recorded and the remaining artifacts are still attempted.
func (p *Pipeline) RunDate(ctx context.Context, job DateJob) Report {
	report := Report{Dates: []string{job.Date}}
	log := p.logger.With().Str("project", job.Project).Str("date", job.Date).Logger()

	if job.BandsDir != "" {
		p.computeProducts(ctx, job, &report)
	}

	if job.RegionFile != "" {
		if err := p.cropDate(ctx, job, &report); err != nil {
			report.fail(job.Project, job.Date, StageCrop, job.RegionFile, err)
		}
	}

	for _, req := range job.Classify {
		if ctx.Err() != nil {
			break
		}
		req.Project, req.Date = job.Project, job.Date
		outcome, err := p.classifier.Classify(ctx, req)
		if err != nil {
			report.fail(job.Project, job.Date, StageClassify, fmt.Sprintf("%s %s", req.Algorithm, req.Product), err)
			continue
		}
		if outcome.Skipped {
			report.Skipped++
		}
		report.Labels = append(report.Labels, outcome.Labels)
	}

	for _, req := range job.Sweeps {
		if ctx.Err() != nil {
			break
		}
		req.Project, req.Date = job.Project, job.Date
		if _, err := p.classifier.Sweep(ctx, req); err != nil {
			report.fail(job.Project, job.Date, StageSweep, req.Product, err)
		}
	}

	if err := ctx.Err(); err != nil {
		report.fail(job.Project, job.Date, "", "", err)
	}
	log.Info().Int("failures", len(report.Failures)).Msg("date processed")
	return report
}

func (p *Pipeline) computeProducts(ctx context.Context, job DateJob, report *Report) {
	paths, err := sentinel.ScanManifest(job.BandsDir)
	if err != nil {
		report.fail(job.Project, job.Date, StageProducts, job.BandsDir, err)
		return
	}
	manifest, err := sentinel.NewManifest(p.store.Codec(), paths)
	if err != nil {
		report.fail(job.Project, job.Date, StageProducts, job.BandsDir, err)
		return
	}

	names := job.Products
	if len(names) == 0 {
		names = sentinel.Names()
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		product, err := p.products.Compute(ctx, job.Project, job.Date, name, manifest)
		if err != nil {
			report.fail(job.Project, job.Date, StageProducts, name, err)
			continue
		}
		report.Products = append(report.Products, product)
	}
}

func (p *Pipeline) cropDate(ctx context.Context, job DateJob, report *Report) error {
	if p.LoadRegion == nil {
		return errors.New("no region loader configured")
	}
	crs, err := p.rasterCRS(job.Project, job.Date)
	if err != nil {
		return err
	}
	region, err := p.LoadRegion(job.RegionFile, crs)
	if err != nil {
		return err
	}

	products, err := p.cropper.CropDate(ctx, job.Project, job.Date, region)
	report.Crops = append(report.Crops, products...)
	if err != nil {
		// per product failures are already joined by CropDate.
		for _, e := range unjoin(err) {
			report.fail(job.Project, job.Date, StageCrop, "", e)
		}
	}
	return nil
}

// rasterCRS is the CRS of the first uncropped product of the date, the one
// the region is reprojected to.
func (p *Pipeline) rasterCRS(project, date string) (string, error) {
	uncropped := false
	paths, err := p.store.List(artifact.Criteria{Project: project, Date: date, Kind: artifact.KindImage, Cropped: &uncropped})
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no products to crop for %s", date)
	}
	var header raster.Header
	header, err = p.store.Codec().Stat(paths[0])
	if err != nil {
		return "", &artifact.StorageError{Op: "stat", Path: paths[0], Err: err}
	}
	return header.CRS, nil
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
