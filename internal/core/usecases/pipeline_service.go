package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/core/ports"
	"github.com/samirrijal/sarpipe/internal/pkg/metrics"
	"github.com/samirrijal/sarpipe/internal/pkg/telemetry"
)

// PipelineDeps wires the collaborators of a PipelineService. Runs, Events and
// StageOut are optional.
type PipelineDeps struct {
	Reader    *CatalogReader
	Extractor ports.ArchiveExtractor
	DEM       ports.DEMProvider
	Corrector ports.TerrainCorrector
	Writer    *CatalogWriter
	Runs      ports.RunRepository
	Events    ports.EventPublisher
	StageOut  *StageOutService
}

// PipelineService runs catalog discovery, DEM acquisition, per-product
// extraction and terrain correction, and output catalog synthesis.
type PipelineService struct {
	deps        PipelineDeps
	stagingRoot string
	log         *slog.Logger
	tracer      trace.Tracer
	newRunID    func() string
}

// NewPipelineService creates a new PipelineService. Extraction staging
// directories are created under stagingRoot, one per run.
func NewPipelineService(deps PipelineDeps, stagingRoot string, log *slog.Logger) *PipelineService {
	if stagingRoot == "" {
		stagingRoot = filepath.Join(os.TempDir(), "sarpipe-staging")
	}
	return &PipelineService{
		deps:        deps,
		stagingRoot: stagingRoot,
		log:         log,
		tracer:      otel.Tracer(telemetry.TracerName),
		newRunID:    uuid.NewString,
	}
}

// NewRunID returns a fresh run identifier.
func (s *PipelineService) NewRunID() string {
	return s.newRunID()
}

// Run executes a whole pipeline run. Per-product failures never abort the
// run; they are recorded in the report. The returned error is non-nil only
// when the request is invalid or no output catalog could be published.
func (s *PipelineService) Run(ctx context.Context, req domain.RunRequest) (*domain.RunReport, error) {
	if err := s.Prepare(req); err != nil {
		return nil, err
	}

	report := &domain.RunReport{
		RunID:     s.newRunID(),
		Request:   req,
		StartedAt: time.Now().UTC(),
	}
	ctx, span := s.tracer.Start(ctx, telemetry.SpanRun, trace.WithAttributes(
		attribute.String(telemetry.AttrRunID, report.RunID),
		attribute.String(telemetry.AttrCatalog, req.CatalogPath),
	))
	defer span.End()

	log := s.log.With("run_id", report.RunID)
	log.Info("pipeline run started", "catalog", req.CatalogPath, "bbox", req.BBox.Key(), "out_dir", req.OutDir)
	defer func() {
		if err := s.CleanupStaging(report.RunID); err != nil {
			log.Warn("staging cleanup failed", "error", err)
		}
	}()

	products := s.Discover(ctx, req)

	demPath, err := s.AcquireDEM(ctx, req)
	if err != nil {
		report.DEMError = err.Error()
	}
	report.DEMPath = demPath

	for i, p := range products {
		report.Results = append(report.Results, s.ProcessProduct(ctx, report.RunID, i, p, demPath, req.OutDir))
	}
	corrected, failed := report.Counts()
	log.Info("SARsen process completed for all products", "corrected", corrected, "failed", failed)

	pub, pubErr := s.Publish(ctx, req, report.Outputs())
	if pubErr != nil {
		report.Error = pubErr.Error()
		span.RecordError(pubErr)
		span.SetStatus(codes.Error, pubErr.Error())
	} else {
		report.Catalog = pub
	}
	report.FinishedAt = time.Now().UTC()

	s.Finish(ctx, report)
	return report, pubErr
}

// Prepare validates req and creates its output directory.
func (s *PipelineService) Prepare(req domain.RunRequest) error {
	if err := ValidateRequest(req); err != nil {
		return err
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// ValidateRequest checks a run request for missing or malformed fields.
func ValidateRequest(req domain.RunRequest) error {
	if req.CatalogPath == "" {
		return errors.New("catalog path is required")
	}
	if req.OutDir == "" {
		return errors.New("output directory is required")
	}
	if req.AssetName == "" {
		return errors.New("asset name is required")
	}
	return req.BBox.Validate()
}

// Discover lists the input products. Catalog failures are logged and yield
// no products.
func (s *PipelineService) Discover(ctx context.Context, req domain.RunRequest) []domain.Product {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanDiscover, trace.WithAttributes(
		attribute.String(telemetry.AttrCatalog, req.CatalogPath),
		attribute.String(telemetry.AttrAssetName, req.AssetName),
	))
	defer span.End()

	start := time.Now()
	s.log.Info("fetching product paths from the STAC catalog", "catalog", req.CatalogPath, "asset", req.AssetName)

	products, err := s.deps.Reader.DiscoverProducts(ctx, req.CatalogPath, req.AssetName)
	if err != nil {
		s.log.Error("error fetching product paths", "catalog", req.CatalogPath, "error", err)
		span.RecordError(err)
		products = nil
	}
	span.SetAttributes(attribute.Int(telemetry.AttrProducts, len(products)))

	secs := metrics.ObserveStage("discover", start)
	s.log.Info("discover completed", "products", len(products), "seconds", secs)
	return products
}

// AcquireDEM fetches the DEM shared by every product of the run. On failure
// the error is logged and an empty path is returned with it.
func (s *PipelineService) AcquireDEM(ctx context.Context, req domain.RunRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanDEM)
	defer span.End()

	start := time.Now()
	w, h := req.BBox.ExtentMeters()
	s.log.Info("downloading DEM", "bbox", req.BBox.Key(), "width_km", w/1000, "height_km", h/1000)

	demPath, err := s.deps.DEM.Acquire(ctx, req.BBox, req.OutDir)
	secs := metrics.ObserveStage("dem", start)
	if err != nil {
		metrics.DEMRequests.WithLabelValues("error").Inc()
		s.log.Error("error downloading DEM", "error", err, "seconds", secs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	s.log.Info("dem completed", "dem", demPath, "seconds", secs)
	return demPath, nil
}

// ProcessProduct extracts and terrain-corrects one product. It never returns
// an error: failures end in StateFailed with the cause recorded.
func (s *PipelineService) ProcessProduct(ctx context.Context, runID string, index int, p domain.Product, demPath, outDir string) domain.ProductResult {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanProduct, trace.WithAttributes(
		attribute.String(telemetry.AttrRunID, runID),
		attribute.String(telemetry.AttrProduct, p.Path),
	))
	defer span.End()

	start := time.Now()
	res := domain.ProductResult{Product: p, State: domain.StateDiscovered}
	log := s.log.With("run_id", runID, "product", p.Path)

	fail := func(stage string, err error) domain.ProductResult {
		log.Error("product failed", "stage", stage, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.State = domain.StateFailed
		res.Error = fmt.Sprintf("%s: %v", stage, err)
		res.Duration = time.Since(start)
		metrics.ProductsTotal.WithLabelValues(string(domain.StateFailed)).Inc()
		span.SetAttributes(attribute.String(telemetry.AttrState, string(res.State)))
		return res
	}

	stagingDir := filepath.Join(s.stagingRoot, runID, strconv.Itoa(index))
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fail("extract", fmt.Errorf("create staging dir: %w", err))
	}

	extractStart := time.Now()
	log.Info("extracting archive", "staging", stagingDir)
	extracted, err := s.deps.Extractor.Extract(ctx, p.Path, stagingDir)
	metrics.ObserveStage("extract", extractStart)
	if err != nil {
		return fail("extract", err)
	}
	res.State = domain.StateExtracted
	res.ExtractedPath = extracted

	correctStart := time.Now()
	log.Info("running SARsen on the product and the DEM", "extracted", extracted, "dem", demPath)
	output, err := s.deps.Corrector.Correct(ctx, extracted, demPath, outDir)
	secs := metrics.ObserveStage("correct", correctStart)
	if err != nil {
		return fail("correct", err)
	}
	if output == "" {
		return fail("correct", errors.New("terrain correction returned no output"))
	}

	res.State = domain.StateCorrected
	res.OutputPath = output
	res.Duration = time.Since(start)
	metrics.ProductsTotal.WithLabelValues(string(domain.StateCorrected)).Inc()
	span.SetAttributes(attribute.String(telemetry.AttrState, string(res.State)))
	log.Info("correct completed", "output", output, "seconds", secs)
	return res
}

// Publish writes the output catalog for outputs. With no outputs it returns
// domain.ErrNoOutputs.
func (s *PipelineService) Publish(ctx context.Context, req domain.RunRequest, outputs []domain.Output) (*domain.PublishedCatalog, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanPublish)
	defer span.End()

	start := time.Now()
	if len(outputs) == 0 {
		s.log.Error("no corrected product to publish")
		return nil, domain.ErrNoOutputs
	}
	tree, err := s.deps.Writer.Publish(ctx, req.OutDir, req.BBox, req.AssetName, outputs)
	secs := metrics.ObserveStage("publish", start)
	if err != nil {
		s.log.Error("error creating stage out catalog", "error", err)
		return nil, fmt.Errorf("publish catalog: %w", err)
	}
	s.log.Info("publish completed", "catalog", tree.CatalogPath, "seconds", secs)
	return tree.Published(), nil
}

// Finish runs the best-effort tail of a run: stage-out upload, run ledger,
// completion event and run metrics. Failures are logged only.
func (s *PipelineService) Finish(ctx context.Context, report *domain.RunReport) {
	log := s.log.With("run_id", report.RunID)

	if s.deps.StageOut != nil && report.Catalog != nil {
		ctx, span := s.tracer.Start(ctx, telemetry.SpanStageOut)
		prefix, err := s.deps.StageOut.Upload(ctx, report.RunID, report.Catalog)
		if err != nil {
			log.Error("stage out upload failed", "error", err)
			span.RecordError(err)
		} else {
			report.Catalog.RemotePrefix = prefix
		}
		span.End()
	}

	if s.deps.Runs != nil {
		if err := s.deps.Runs.Save(ctx, report); err != nil {
			log.Error("saving run report failed", "error", err)
		}
	}

	if s.deps.Events != nil {
		if err := s.deps.Events.PublishRunCompleted(ctx, report); err != nil {
			log.Error("publishing run event failed", "error", err)
		}
	}

	outcome := "published"
	switch {
	case report.Catalog == nil && len(report.Results) == 0:
		outcome = "empty"
	case report.Catalog == nil:
		outcome = "failed"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
}

// StagingDir returns the extraction staging directory of a run.
func (s *PipelineService) StagingDir(runID string) string {
	return filepath.Join(s.stagingRoot, runID)
}

// CleanupStaging removes the staging directory of a run.
func (s *PipelineService) CleanupStaging(runID string) error {
	if runID == "" {
		return errors.New("empty run id")
	}
	return os.RemoveAll(s.StagingDir(runID))
}
