package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/maxsatt-segmentation/internal/artifact"
	"github.com/forest-guardian/maxsatt-segmentation/internal/delivery"
	"github.com/forest-guardian/maxsatt-segmentation/internal/ml"
	"github.com/forest-guardian/maxsatt-segmentation/internal/sentinel"
)

// classifyFlags are shared by classify and run.
type classifyFlags struct {
	algorithm  string
	clusters   int
	eps        float64
	minSamples int
	normalize  bool
	sigma      float64
	cropped    bool
	seed       uint64
	force      bool
}

func (f *classifyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.algorithm, "algorithm", string(ml.KMeans), "clustering algorithm: kmeans, gmm or dbscan")
	cmd.Flags().IntVar(&f.clusters, "clusters", 0, "number of clusters (kmeans, gmm)")
	cmd.Flags().Float64Var(&f.eps, "eps", 0, "neighbourhood radius (dbscan)")
	cmd.Flags().IntVar(&f.minSamples, "min-samples", 0, "core point density (dbscan)")
	cmd.Flags().BoolVar(&f.normalize, "normalize", false, "standardize every band before clustering")
	cmd.Flags().Float64Var(&f.sigma, "sigma", 0, "gaussian smoothing sigma, 0 disables it")
	cmd.Flags().BoolVar(&f.cropped, "cropped", false, "classify the cropped product")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "random seed")
	cmd.Flags().BoolVar(&f.force, "force", false, "recompute existing label rasters")
}

func (a *app) request(cmd *cobra.Command, f *classifyFlags, product string) (ml.Request, error) {
	alg, err := ml.ParseAlgorithm(f.algorithm)
	if err != nil {
		return ml.Request{}, err
	}
	params := ml.DefaultParams(alg)
	cc := a.cfg.Classification
	switch alg {
	case ml.KMeans:
		params.Inits, params.MaxIter = cc.Inits, cc.MaxIter
		params.Seed, params.Seeded = cc.Seed, cc.Seeded
	case ml.GMM:
		params.Seed, params.Seeded = cc.Seed, cc.Seeded
	}
	if f.clusters > 0 {
		params.Clusters = f.clusters
	}
	if f.eps > 0 {
		params.Eps = f.eps
	}
	if f.minSamples > 0 {
		params.MinSamples = f.minSamples
	}
	if cmd.Flags().Changed("seed") {
		params.Seed, params.Seeded = f.seed, true
	}

	sigma := cc.Sigma
	if cmd.Flags().Changed("sigma") {
		sigma = f.sigma
	}
	return ml.Request{
		Product:   product,
		Cropped:   f.cropped,
		Algorithm: alg,
		Params:    params,
		Normalize: f.normalize,
		Sigma:     sigma,
		Force:     f.force,
	}, nil
}

// sweepParams merges the configured kmeans settings with the sweep flags the
// same way request does for classify.
func (a *app) sweepParams(cmd *cobra.Command, seed uint64, sigma float64) (ml.Params, float64) {
	cc := a.cfg.Classification
	params := ml.DefaultParams(ml.KMeans)
	params.Inits, params.MaxIter, params.Seed, params.Seeded = cc.Inits, cc.MaxIter, cc.Seed, cc.Seeded
	if cmd.Flags().Changed("seed") {
		params.Seed, params.Seeded = seed, true
	}
	blur := cc.Sigma
	if cmd.Flags().Changed("sigma") {
		blur = sigma
	}
	return params, blur
}

func report(cmd *cobra.Command, r delivery.Report) error {
	fmt.Fprintln(cmd.OutOrStdout(), r.Summary())
	return r.Err()
}

func newProductsCmd(a *app) *cobra.Command {
	var (
		project, date, bands string
		names                []string
		force                bool
	)
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Compute catalog products from the band files of one date",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range names {
				if _, err := sentinel.Lookup(name); err != nil {
					return err
				}
			}
			a.products.Force = force
			return report(cmd, a.pipeline.RunDate(cmd.Context(), delivery.DateJob{
				Project:  project,
				Date:     date,
				BandsDir: bands,
				Products: names,
			}))
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name")
	cmd.Flags().StringVar(&date, "date", "", "acquisition date (YYYY_MM_DD)")
	cmd.Flags().StringVar(&bands, "bands", "", "granule folder holding R10m, R20m and R60m")
	cmd.Flags().StringSliceVar(&names, "product", nil, "products to compute, all when empty: "+strings.Join(sentinel.Names(), ", "))
	cmd.Flags().BoolVar(&force, "force", false, "recompute existing products")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("bands")
	return cmd
}

func newCropCmd(a *app) *cobra.Command {
	var (
		project, date, roi string
		force              bool
	)
	cmd := &cobra.Command{
		Use:   "crop",
		Short: "Crop every product of one date to a region of interest",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cropper.Force = force
			return report(cmd, a.pipeline.RunDate(cmd.Context(), delivery.DateJob{
				Project:    project,
				Date:       date,
				RegionFile: roi,
			}))
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name")
	cmd.Flags().StringVar(&date, "date", "", "acquisition date (YYYY_MM_DD)")
	cmd.Flags().StringVar(&roi, "roi", "", "vector file with the region of interest")
	cmd.Flags().BoolVar(&force, "force", false, "recompute existing crops")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("roi")
	return cmd
}

func newClassifyCmd(a *app) *cobra.Command {
	var (
		project, date, product string
		flags                  classifyFlags
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Cluster the pixels of one product into a label raster",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.request(cmd, &flags, product)
			if err != nil {
				return err
			}
			req.Project, req.Date = project, date

			outcome, err := a.classifier.Classify(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outcome.Skipped {
				fmt.Fprintf(out, "already classified: %s\n", outcome.Labels.Path)
				return nil
			}
			fmt.Fprintf(out, "label raster: %s\ncost: %s\n", outcome.Labels.Path, ml.Cost(req.Algorithm, outcome.Result))
			for _, bucket := range outcome.Result.Metrics.Histogram {
				fmt.Fprintf(out, "  cluster %d: %d pixels\n", bucket.Label, bucket.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name")
	cmd.Flags().StringVar(&date, "date", "", "acquisition date (YYYY_MM_DD)")
	cmd.Flags().StringVar(&product, "product", "", "product to classify")
	flags.register(cmd)
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("product")
	return cmd
}

func newSweepCmd(a *app) *cobra.Command {
	var (
		project, date, product string
		minK, maxK             int
		normalize, cropped     bool
		plot                   bool
		sigma                  float64
		seed                   uint64
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run kmeans over a range of k and report the cost of each",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("min-k") {
				minK = a.cfg.Sweep.MinK
			}
			if !cmd.Flags().Changed("max-k") {
				maxK = a.cfg.Sweep.MaxK
			}
			params, blur := a.sweepParams(cmd, seed, sigma)
			result, err := a.classifier.Sweep(cmd.Context(), ml.SweepRequest{
				Project:   project,
				Date:      date,
				Product:   product,
				Cropped:   cropped,
				MinK:      minK,
				MaxK:      maxK,
				Params:    params,
				Normalize: normalize,
				Sigma:     blur,
				Plot:      plot,
			})
			out := cmd.OutOrStdout()
			for _, pt := range result.Points {
				fmt.Fprintf(out, "k=%d cost=%g\n", pt.K, pt.Inertia)
			}
			if result.PlotPath != "" {
				fmt.Fprintf(out, "elbow chart: %s\n", result.PlotPath)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name")
	cmd.Flags().StringVar(&date, "date", "", "acquisition date (YYYY_MM_DD)")
	cmd.Flags().StringVar(&product, "product", "", "product to sweep")
	cmd.Flags().IntVar(&minK, "min-k", 0, "smallest k (defaults to the configured range)")
	cmd.Flags().IntVar(&maxK, "max-k", 0, "largest k (defaults to the configured range)")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "standardize every band before clustering")
	cmd.Flags().BoolVar(&cropped, "cropped", false, "sweep the cropped product")
	cmd.Flags().BoolVar(&plot, "plot", false, "write the elbow chart")
	cmd.Flags().Float64Var(&sigma, "sigma", 0, "gaussian smoothing sigma, 0 disables it")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("product")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var (
		project, bandsRoot, roi string
		dates, products        []string
		classify               []string
		flags                  classifyFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute, crop and classify every requested date",
		Long: `Run the whole pipeline over a set of dates. Dates are processed in
parallel; a failing artifact is reported and never stops the batch.

With --bands-root, each date's band files are expected under
<bands-root>/<date>/R10m, R20m and R60m.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(dates) == 0 {
				var err error
				if dates, err = a.dates(project, bandsRoot); err != nil {
					return err
				}
			}
			if len(dates) == 0 {
				return errors.New("no dates to process")
			}

			var requests []ml.Request
			for _, product := range classify {
				req, err := a.request(cmd, &flags, product)
				if err != nil {
					return err
				}
				if roi != "" {
					req.Cropped = true
				}
				requests = append(requests, req)
			}

			jobs := make([]delivery.DateJob, len(dates))
			for i, date := range dates {
				jobs[i] = delivery.DateJob{
					Project:    project,
					Date:       date,
					Products:   products,
					RegionFile: roi,
					Classify:   requests,
				}
				if bandsRoot != "" {
					jobs[i].BandsDir = filepath.Join(bandsRoot, date)
				}
			}
			r, err := a.pipeline.Run(cmd.Context(), jobs)
			if err != nil {
				return err
			}
			return report(cmd, r)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name")
	cmd.Flags().StringSliceVar(&dates, "date", nil, "dates to process, all available when empty")
	cmd.Flags().StringVar(&bandsRoot, "bands-root", "", "folder with one granule folder per date")
	cmd.Flags().StringSliceVar(&products, "product", nil, "products to compute, all when empty")
	cmd.Flags().StringVar(&roi, "roi", "", "vector file with the region of interest")
	cmd.Flags().StringSliceVar(&classify, "classify", nil, "products to classify")
	flags.register(cmd)
	cmd.MarkFlagRequired("project")
	return cmd
}

// dates lists the granule folders under bandsRoot, or the dates already
// holding products when no band root is given.
func (a *app) dates(project, bandsRoot string) ([]string, error) {
	if bandsRoot == "" {
		return a.store.Dates(project, artifact.KindImage)
	}
	entries, err := os.ReadDir(bandsRoot)
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dates = append(dates, e.Name())
		}
	}
	return dates, nil
}

func newListCmd(a *app) *cobra.Command {
	var (
		c       artifact.Criteria
		kind    string
		cropped bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the artifacts of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Kind = artifact.Kind(kind)
			if cmd.Flags().Changed("cropped") {
				c.Cropped = &cropped
			}
			paths, err := a.store.List(c)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&c.Project, "project", "", "project name")
	cmd.Flags().StringVar(&c.Date, "date", "", "only this date")
	cmd.Flags().StringVar(&kind, "kind", "", "images or classification")
	cmd.Flags().BoolVar(&cropped, "cropped", false, "only cropped (true) or uncropped (false) artifacts")
	cmd.Flags().StringVar(&c.Product, "product", "", "only this product")
	cmd.Flags().StringVar(&c.Algorithm, "algorithm", "", "only this algorithm")
	cmd.MarkFlagRequired("project")
	return cmd
}
