package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/sarpipe/internal/bootstrap"
	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/pkg/config"
	"github.com/samirrijal/sarpipe/internal/pkg/logging"
	"github.com/samirrijal/sarpipe/internal/pkg/telemetry"
	"github.com/samirrijal/sarpipe/internal/workflows"
)

// Usage:
//
//	worker [flags]          run the pipeline worker
//	worker submit [flags]   start one pipeline workflow and wait for it
func main() {
	args := os.Args[1:]
	submit := len(args) > 0 && args[0] == "submit"
	if submit {
		args = args[1:]
	}

	fs, opts := newFlagSet(pflag.ExitOnError)
	_ = fs.Parse(config.NormalizeBBoxArgs(args))

	cfg, err := config.Load("sarpipe-worker", fs)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = workflows.TaskQueue
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	if submit {
		if err := submitRun(ctx, c, cfg, opts); err != nil {
			logger.Error("pipeline workflow failed", "error", err)
			os.Exit(1)
		}
		return
	}

	pipe, err := bootstrap.NewPipeline(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	defer pipe.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		// External tools are CPU and disk bound, run one product at a time.
		MaxConcurrentActivityExecutionSize: 1,
	})
	w.RegisterWorkflow(workflows.PipelineWorkflow)
	w.RegisterActivity(&workflows.PipelineActivities{Pipeline: pipe.Service})

	logger.Info("pipeline worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// submitOptions are the flags of "worker submit". They match the CLI's.
type submitOptions struct {
	catalogFolder string
	bbox          []float64
	assetName     string
	outDir        string
}

func newFlagSet(handling pflag.ErrorHandling) (*pflag.FlagSet, *submitOptions) {
	opts := &submitOptions{}
	fs := pflag.NewFlagSet("worker", handling)
	fs.String("config", "", "path to a config file")
	fs.String("log_level", "", "log level")
	fs.String("log_format", "", "log format: text or json")
	fs.String("staging_dir", "", "root directory for archive extraction")
	fs.StringVar(&opts.catalogFolder, "stac_catalog_folder", ".", "input STAC directory (submit only)")
	fs.Float64SliceVar(&opts.bbox, "bbox", nil, "bounding box LEFT BOTTOM RIGHT TOP (submit only)")
	fs.StringVar(&opts.assetName, "stac_asset_name", "", "STAC asset name (submit only)")
	fs.StringVarP(&opts.outDir, "out_dir", "o", "", "output directory (submit only)")
	return fs, opts
}

// request builds the run request, falling back to the configured asset name.
func (o *submitOptions) request(cfg *config.Config) (domain.RunRequest, error) {
	bbox, err := domain.NewBBox(o.bbox)
	if err != nil {
		return domain.RunRequest{}, err
	}
	if o.outDir == "" {
		return domain.RunRequest{}, fmt.Errorf("out_dir is required")
	}
	asset := o.assetName
	if asset == "" {
		asset = cfg.Pipeline.AssetName
	}
	catalogFolder, err := filepath.Abs(o.catalogFolder)
	if err != nil {
		return domain.RunRequest{}, err
	}
	out, err := filepath.Abs(o.outDir)
	if err != nil {
		return domain.RunRequest{}, err
	}
	return domain.RunRequest{
		CatalogPath: filepath.Join(catalogFolder, "catalog.json"),
		BBox:        bbox,
		AssetName:   asset,
		OutDir:      out,
	}, nil
}

func submitRun(ctx context.Context, c client.Client, cfg *config.Config, opts *submitOptions) error {
	req, err := opts.request(cfg)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "sarpipe-" + runID,
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflows.PipelineWorkflow, workflows.PipelineInput{RunID: runID, Request: req})
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}

	var report domain.RunReport
	if err := run.Get(ctx, &report); err != nil {
		return err
	}
	fmt.Println(report.Catalog.CatalogPath)
	return nil
}
