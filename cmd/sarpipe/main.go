package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/samirrijal/sarpipe/internal/bootstrap"
	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/pkg/config"
	"github.com/samirrijal/sarpipe/internal/pkg/logging"
	"github.com/samirrijal/sarpipe/internal/pkg/metrics"
	"github.com/samirrijal/sarpipe/internal/pkg/telemetry"
)

var version = "1.0.0"

const (
	exitOK = iota
	exitFailure
	exitUsage
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options are the parsed command-line arguments.
type options struct {
	catalogFolder string
	bbox          []float64
	assetName     string
	outDir        string
	showVersion   bool
}

func newFlagSet(stderr io.Writer) (*pflag.FlagSet, *options) {
	opts := &options{}
	fs := pflag.NewFlagSet("sarpipe", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print the version and exit")
	fs.StringVar(&opts.catalogFolder, "stac_catalog_folder", "",
		"path to the STAC directory (containing catalog.json, item.json, and Sentinel-1 GRD product)")
	fs.Float64SliceVar(&opts.bbox, "bbox", nil,
		"lat/lon bounding box LEFT BOTTOM RIGHT TOP (example: --bbox -118.068 34.222 -118.058 34.228)")
	fs.StringVar(&opts.assetName, "stac_asset_name", "PRODUCT",
		"identifier of the STAC asset that contains the Sentinel-1 GRD product")
	fs.StringVarP(&opts.outDir, "out_dir", "o", "", "output directory")

	fs.String("config", "", "path to a config file")
	fs.String("log_level", "", "log level: debug, info, warn or error")
	fs.String("log_format", "", "log format: text or json")
	fs.String("staging_dir", "", "root directory for archive extraction")
	return fs, opts
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, opts := newFlagSet(stderr)
	if err := fs.Parse(config.NormalizeBBoxArgs(args)); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, version)
		return exitOK
	}

	bbox, err := domain.NewBBox(opts.bbox)
	if err != nil {
		fmt.Fprintf(stderr, "--bbox: %v\n", err)
		return exitUsage
	}
	if opts.outDir == "" {
		fmt.Fprintln(stderr, "-o/--out_dir is required")
		return exitUsage
	}

	cfg, err := config.Load("sarpipe", fs)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitFailure
	}
	log := logging.NewWithWriter(stderr, cfg.Log.Level, cfg.Log.Format)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			log.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	pipe, err := bootstrap.NewPipeline(ctx, cfg, log)
	if err != nil {
		log.Error("pipeline setup failed", "error", err)
		return exitFailure
	}
	defer pipe.Close()

	assetName := opts.assetName
	if !fs.Changed("stac_asset_name") && cfg.Pipeline.AssetName != "" {
		assetName = cfg.Pipeline.AssetName
	}
	folder := opts.catalogFolder
	if folder == "" {
		folder = "."
	}

	req := domain.RunRequest{
		CatalogPath: filepath.Join(folder, "catalog.json"),
		BBox:        bbox,
		AssetName:   assetName,
		OutDir:      opts.outDir,
	}
	report, runErr := pipe.Service.Run(ctx, req)
	pushMetrics(cfg, log, report)

	if runErr != nil {
		if errors.Is(runErr, domain.ErrNoOutputs) {
			log.Error("no product was corrected, no output catalog written")
		} else {
			log.Error("pipeline run failed", "error", runErr)
		}
		return exitFailure
	}

	corrected, failed := report.Counts()
	log.Info("output catalog written", "catalog", report.Catalog.CatalogPath,
		"corrected", corrected, "failed", failed, "run_id", report.RunID)
	return exitOK
}

func pushMetrics(cfg *config.Config, log *slog.Logger, report *domain.RunReport) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	instance := ""
	if report != nil {
		instance = report.RunID
	}
	if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, instance); err != nil {
		log.Warn("metrics push failed", "error", err)
	}
}
