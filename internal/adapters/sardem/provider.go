package sardem

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samirrijal/sarpipe/internal/adapters/execx"
	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/pkg/metrics"
)

// Provider implements ports.DEMProvider by running the sardem CLI, which
// downloads and stitches Copernicus DEM tiles into one raster.
type Provider struct {
	runner     execx.Runner
	binary     string
	dataSource string
	log        *slog.Logger
}

// NewProvider creates a new Provider. dataSource is a sardem --data-source
// value such as "COP".
func NewProvider(runner execx.Runner, binary, dataSource string, log *slog.Logger) *Provider {
	return &Provider{runner: runner, binary: binary, dataSource: dataSource, log: log}
}

// Acquire writes <outDir>/dem.tif covering bbox and returns its path.
func (p *Provider) Acquire(ctx context.Context, bbox domain.BBox, outDir string) (string, error) {
	demFile, err := filepath.Abs(filepath.Join(outDir, domain.DEMFileName))
	if err != nil {
		return "", fmt.Errorf("resolve dem path: %w", err)
	}

	args := append([]string{"--bbox"}, bbox.Args()...)
	args = append(args,
		"--data-source", p.dataSource,
		"--output-format", "GTiff",
		"-o", demFile,
	)

	res, err := p.runner.Run(ctx, p.binary, args...)
	if err != nil {
		return "", fmt.Errorf("sardem: %w", err)
	}
	p.log.Debug("sardem finished", "duration", res.Duration, "stdout", res.Stdout)

	info, err := os.Stat(demFile)
	if err != nil {
		return "", fmt.Errorf("sardem produced no DEM: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("sardem produced an empty DEM at %s", demFile)
	}

	metrics.DEMRequests.WithLabelValues("download").Inc()
	return demFile, nil
}
