package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdobak/go-xerrors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/maxsatt-segmentation/internal/artifact"
	"github.com/forest-guardian/maxsatt-segmentation/internal/config"
	"github.com/forest-guardian/maxsatt-segmentation/internal/crop"
	"github.com/forest-guardian/maxsatt-segmentation/internal/dataset"
	"github.com/forest-guardian/maxsatt-segmentation/internal/delivery"
	"github.com/forest-guardian/maxsatt-segmentation/internal/gdalio"
	"github.com/forest-guardian/maxsatt-segmentation/internal/logging"
	"github.com/forest-guardian/maxsatt-segmentation/internal/ml"
	"github.com/forest-guardian/maxsatt-segmentation/internal/notification"
	"github.com/forest-guardian/maxsatt-segmentation/internal/runlog"
	"github.com/forest-guardian/maxsatt-segmentation/internal/sentinel"
)

// app holds everything a subcommand needs, built once from the configuration.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	store      *artifact.Store
	runLog     *runlog.Log
	products   *sentinel.Engine
	cropper    *crop.Engine
	classifier *ml.Classifier
	pipeline   *delivery.Pipeline
}

func newApp(configPath, logLevel string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	policy, err := dataset.ParseDegeneratePolicy(cfg.Classification.DegenerateColumns)
	if err != nil {
		return nil, err
	}

	store := artifact.NewStore(cfg.RootPath, gdalio.NewCodec())
	runLog := runlog.New(cfg.RootPath)

	products := sentinel.NewEngine(store, logger)

	cropper := crop.NewEngine(store, logger)
	cropper.SameCRS = gdalio.SameCRS
	cropper.Progress = true

	classifier := ml.NewClassifier(store, runLog, logger)
	classifier.Degenerate = policy
	classifier.Workers = cfg.Workers

	pipeline := delivery.NewPipeline(store, products, cropper, classifier, logger)
	pipeline.LoadRegion = gdalio.LoadRegion
	pipeline.Notifier = notification.NewNotifier(cfg.Notification.ErrorURL, cfg.Notification.SuccessURL)
	pipeline.Workers = cfg.Workers
	pipeline.Progress = true

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		runLog:     runLog,
		products:   products,
		cropper:    cropper,
		classifier: classifier,
		pipeline:   pipeline,
	}, nil
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		a          = &app{}
	)
	root := &cobra.Command{
		Use:           "maxsatt",
		Short:         "Derive Sentinel-2 products and segment them into land-cover clusters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			built, err := newApp(configPath, logLevel)
			if err != nil {
				return err
			}
			*a = *built
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (defaults to $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newProductsCmd(a),
		newCropCmd(a),
		newClassifyCmd(a),
		newSweepCmd(a),
		newRunCmd(a),
		newListCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", xerrors.New(err))
		stop()
		os.Exit(1)
	}
}
