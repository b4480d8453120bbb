package ml

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/forest-guardian/maxsatt-segmentation/internal/runlog"
)

type SweepRequest struct {
	Project string
	Date    string
	Product string
	Cropped bool

	MinK int
	MaxK int
	// Params is the kmeans configuration; Clusters is overridden per run.
	Params    Params
	Normalize bool
	Sigma     float64
	// Plot writes the elbow chart next to the label rasters.
	Plot bool
}

type SweepPoint struct {
	K       int
	Inertia float64
}

type SweepResult struct {
	Points   []SweepPoint
	PlotPath string
}

// Sweep runs kmeans for every k in [MinK, MaxK] on the same table and
// returns the inertia per k in ascending k order. Every run is logged, failed
// ones included; a failing k does not stop the others.
func (c *Classifier) Sweep(ctx context.Context, req SweepRequest) (SweepResult, error) {
	if req.MinK < 1 || req.MaxK < req.MinK {
		return SweepResult{}, fmt.Errorf("invalid sweep range [%d, %d]", req.MinK, req.MaxK)
	}
	log := c.logger.With().Str("project", req.Project).Str("date", req.Date).Str("product", req.Product).Logger()

	_, table, err := c.prepare(req.Project, req.Date, req.Product, req.Cropped, req.Normalize, req.Sigma)
	if err != nil {
		return SweepResult{}, err
	}

	n := req.MaxK - req.MinK + 1
	results := make([]*Result, n)
	failures := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	if c.Workers > 0 {
		g.SetLimit(c.Workers)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			params := req.Params
			params.Clusters = req.MinK + i
			result, err := NewJob(KMeans, params, c.Fit).Run(gctx, table)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failures[i] = fmt.Errorf("k=%d: %w", params.Clusters, err)
				return nil
			}
			results[i] = &result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}

	var (
		out     SweepResult
		entries []runlog.Entry
	)
	for i, result := range results {
		run := Request{
			Project:   req.Project,
			Date:      req.Date,
			Product:   req.Product,
			Cropped:   req.Cropped,
			Algorithm: KMeans,
			Params:    req.Params,
			Normalize: req.Normalize,
			Sigma:     req.Sigma,
		}
		run.Params.Clusters = req.MinK + i
		entries = append(entries, c.entry(run, run.key(), result))
		if result != nil {
			out.Points = append(out.Points, SweepPoint{K: run.Params.Clusters, Inertia: result.Metrics.Inertia})
		}
	}

	errs := failures
	if err := c.runLog.Append(entries...); err != nil {
		errs = append(errs, fmt.Errorf("failed to append run log: %w", err))
	}

	if req.Plot && len(out.Points) > 0 {
		path, err := c.store.PlotPath(req.Project, req.Date, req.Product, req.Cropped)
		if err == nil {
			err = c.store.WriteFile(path, func(w io.Writer) error {
				return writeElbow(w, req.Product, out.Points)
			})
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to write elbow chart: %w", err))
		} else {
			out.PlotPath = path
		}
	}

	log.Info().Int("runs", n).Int("succeeded", len(out.Points)).Str("plot", out.PlotPath).Msg("cost sweep finished")
	return out, errors.Join(errs...)
}

// writeElbow renders inertia against k as a PNG.
func writeElbow(w io.Writer, product string, points []SweepPoint) error {
	p := plot.New()
	p.Title.Text = "K-means cost across K using " + product + " image"
	p.X.Label.Text = "K"
	p.Y.Label.Text = "cost"
	p.Title.TextStyle.Font.Size = vg.Points(12)
	p.X.Label.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.TextStyle.Font.Size = vg.Points(12)
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(points))
	ticks := make([]plot.Tick, len(points))
	for i, pt := range points {
		pts[i].X = float64(pt.K)
		pts[i].Y = pt.Inertia
		ticks[i] = plot.Tick{Value: float64(pt.K), Label: strconv.Itoa(pt.K)}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)

	line, scatter, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	line.Width = vg.Points(1)
	scatter.Shape = draw.CircleGlyph{}
	scatter.Radius = vg.Points(2)
	scatter.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	p.Add(line, scatter)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
