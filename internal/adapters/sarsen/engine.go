package sarsen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samirrijal/sarpipe/internal/adapters/execx"
	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// Defaults matching the Sentinel-1 GRD processing of the pipeline.
const (
	DefaultMeasurementGroup = "IW/VV"
	DefaultRadiometry       = "gamma_nearest"
)

var errNoDEM = errors.New("no DEM available")

// Engine implements ports.TerrainCorrector by running `sarsen rtc`.
type Engine struct {
	runner           execx.Runner
	binary           string
	measurementGroup string
	radiometry       string
	log              *slog.Logger
}

// NewEngine creates a new Engine. Empty measurementGroup and radiometry fall
// back to IW/VV and gamma_nearest.
func NewEngine(runner execx.Runner, binary, measurementGroup, radiometry string, log *slog.Logger) *Engine {
	if measurementGroup == "" {
		measurementGroup = DefaultMeasurementGroup
	}
	if radiometry == "" {
		radiometry = DefaultRadiometry
	}
	return &Engine{
		runner:           runner,
		binary:           binary,
		measurementGroup: measurementGroup,
		radiometry:       radiometry,
		log:              log,
	}
}

// Correct terrain-corrects the extracted product with the DEM and returns
// the path of <outDir>/<product>_sarsen_output.tif.
func (e *Engine) Correct(ctx context.Context, productPath, demPath, outDir string) (string, error) {
	if demPath == "" {
		return "", errNoDEM
	}
	if _, err := os.Stat(demPath); err != nil {
		return "", fmt.Errorf("%w: %v", errNoDEM, err)
	}

	output, err := filepath.Abs(filepath.Join(outDir, domain.OutputRasterName(productPath)))
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}

	res, err := e.runner.Run(ctx, e.binary,
		"rtc",
		productPath,
		e.measurementGroup,
		demPath,
		"--output-urlpath", output,
		"--correct-radiometry", e.radiometry,
	)
	if err != nil {
		return "", fmt.Errorf("sarsen: %w", err)
	}
	e.log.Debug("sarsen finished", "duration", res.Duration)

	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("sarsen produced no output: %w", err)
	}
	return output, nil
}
