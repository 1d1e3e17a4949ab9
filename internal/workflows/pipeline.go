package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// TaskQueue is the default task queue of the pipeline worker.
const TaskQueue = "sarpipe-pipeline"

// PipelineInput is the input for the pipeline workflow.
type PipelineInput struct {
	RunID   string
	Request domain.RunRequest
}

// PipelineWorkflow runs one pipeline over an input catalog: discovery, one
// shared DEM, a correction activity per product and publication of the output
// catalog. Activities are not retried since the external tools are not
// idempotent with respect to their output files.
func PipelineWorkflow(ctx workflow.Context, input PipelineInput) (*domain.RunReport, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting pipeline workflow", "runID", input.RunID, "catalog", input.Request.CatalogPath)

	shortOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	longOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	shortCtx := workflow.WithActivityOptions(ctx, shortOpts)
	longCtx := workflow.WithActivityOptions(ctx, longOpts)

	report := &domain.RunReport{
		RunID:     input.RunID,
		Request:   input.Request,
		StartedAt: workflow.Now(ctx).UTC(),
	}
	defer func() {
		// Runs on a disconnected context so cleanup survives cancellation.
		dctx, _ := workflow.NewDisconnectedContext(shortCtx)
		if err := workflow.ExecuteActivity(dctx, "CleanupStaging", input.RunID).Get(dctx, nil); err != nil {
			logger.Warn("staging cleanup failed", "error", err)
		}
	}()

	// Step 1: Validate and create the output directory
	if err := workflow.ExecuteActivity(shortCtx, "PrepareRun", input.Request).Get(ctx, nil); err != nil {
		return nil, err
	}

	// Step 2: Discover products
	var products []domain.Product
	if err := workflow.ExecuteActivity(shortCtx, "DiscoverProducts", input.Request).Get(ctx, &products); err != nil {
		return nil, err
	}

	// Step 3: Acquire the DEM, a failure leaves the path empty
	var demPath string
	if err := workflow.ExecuteActivity(longCtx, "AcquireDEM", input.Request).Get(ctx, &demPath); err != nil {
		logger.Warn("DEM acquisition failed", "error", err)
		report.DEMError = err.Error()
		demPath = ""
	}
	report.DEMPath = demPath

	// Step 4: Correct each product in order
	for i, p := range products {
		var res domain.ProductResult
		in := ProcessInput{RunID: input.RunID, Index: i, Product: p, DEMPath: demPath, OutDir: input.Request.OutDir}
		if err := workflow.ExecuteActivity(longCtx, "ProcessProduct", in).Get(ctx, &res); err != nil {
			res = domain.ProductResult{Product: p, State: domain.StateFailed, Error: err.Error()}
		}
		report.Results = append(report.Results, res)
	}
	corrected, failed := report.Counts()
	logger.Info("SARsen process completed for all products", "corrected", corrected, "failed", failed)

	// Step 5: Publish the output catalog
	var pubErr error
	outputs := report.Outputs()
	if len(outputs) == 0 {
		pubErr = temporal.NewNonRetryableApplicationError(domain.ErrNoOutputs.Error(), "NoOutputs", nil)
	} else {
		var pub domain.PublishedCatalog
		pubErr = workflow.ExecuteActivity(shortCtx, "PublishCatalog", PublishInput{Request: input.Request, Outputs: outputs}).Get(ctx, &pub)
		if pubErr == nil {
			report.Catalog = &pub
		}
	}
	if pubErr != nil {
		report.Error = pubErr.Error()
	}
	report.FinishedAt = workflow.Now(ctx).UTC()

	// Step 6: Stage out, record and announce
	var finished domain.RunReport
	if err := workflow.ExecuteActivity(shortCtx, "FinishRun", report).Get(ctx, &finished); err != nil {
		logger.Warn("finishing run failed", "error", err)
	} else {
		report = &finished
	}

	if pubErr != nil {
		return report, pubErr
	}
	logger.Info("Pipeline workflow completed", "catalog", report.Catalog.CatalogPath)
	return report, nil
}
