package workflows

import (
	"context"
	"fmt"

	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/core/usecases"
)

// ProcessInput carries one product through the ProcessProduct activity.
type ProcessInput struct {
	RunID   string
	Index   int
	Product domain.Product
	DEMPath string
	OutDir  string
}

// PublishInput carries the outputs to the PublishCatalog activity.
type PublishInput struct {
	Request domain.RunRequest
	Outputs []domain.Output
}

// PipelineActivities holds the activity implementations for the pipeline workflow.
type PipelineActivities struct {
	Pipeline *usecases.PipelineService
}

// PrepareRun validates the request and creates the output directory.
func (a *PipelineActivities) PrepareRun(_ context.Context, req domain.RunRequest) error {
	if err := a.Pipeline.Prepare(req); err != nil {
		return fmt.Errorf("prepare run: %w", err)
	}
	return nil
}

// DiscoverProducts lists the input products of the catalog.
func (a *PipelineActivities) DiscoverProducts(ctx context.Context, req domain.RunRequest) ([]domain.Product, error) {
	return a.Pipeline.Discover(ctx, req), nil
}

// AcquireDEM fetches the DEM shared by every product of the run.
func (a *PipelineActivities) AcquireDEM(ctx context.Context, req domain.RunRequest) (string, error) {
	return a.Pipeline.AcquireDEM(ctx, req)
}

// ProcessProduct extracts and terrain-corrects one product. Product failures
// are part of the result, not activity errors.
func (a *PipelineActivities) ProcessProduct(ctx context.Context, in ProcessInput) (domain.ProductResult, error) {
	return a.Pipeline.ProcessProduct(ctx, in.RunID, in.Index, in.Product, in.DEMPath, in.OutDir), nil
}

// PublishCatalog writes the output catalog.
func (a *PipelineActivities) PublishCatalog(ctx context.Context, in PublishInput) (*domain.PublishedCatalog, error) {
	return a.Pipeline.Publish(ctx, in.Request, in.Outputs)
}

// FinishRun uploads, records and announces the run. The report is returned
// with any stage-out prefix filled in.
func (a *PipelineActivities) FinishRun(ctx context.Context, report *domain.RunReport) (*domain.RunReport, error) {
	a.Pipeline.Finish(ctx, report)
	return report, nil
}

// CleanupStaging removes the extraction staging directory of a run.
func (a *PipelineActivities) CleanupStaging(ctx context.Context, runID string) error {
	return a.Pipeline.CleanupStaging(runID)
}
