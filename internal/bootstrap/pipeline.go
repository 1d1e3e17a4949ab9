// Package bootstrap assembles the pipeline service and its optional
// integrations from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/samirrijal/sarpipe/internal/adapters/archive"
	"github.com/samirrijal/sarpipe/internal/adapters/execx"
	natsadapter "github.com/samirrijal/sarpipe/internal/adapters/nats"
	"github.com/samirrijal/sarpipe/internal/adapters/objectstore"
	"github.com/samirrijal/sarpipe/internal/adapters/postgres"
	"github.com/samirrijal/sarpipe/internal/adapters/sardem"
	"github.com/samirrijal/sarpipe/internal/adapters/sarsen"
	"github.com/samirrijal/sarpipe/internal/adapters/valkey"
	"github.com/samirrijal/sarpipe/internal/core/ports"
	"github.com/samirrijal/sarpipe/internal/core/usecases"
	"github.com/samirrijal/sarpipe/internal/pkg/config"
)

// Pipeline is a wired PipelineService together with the connections it holds.
type Pipeline struct {
	Service *usecases.PipelineService
	DB      *postgres.DB
	Cache   *valkey.Cache
	Events  *natsadapter.Publisher
	Runs    ports.RunRepository
	closers []func()
}

// NewPipeline wires the pipeline from cfg. The database is required when
// enabled; the cache, broker and object store are skipped with a warning when
// they cannot be reached.
func NewPipeline(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Pipeline, error) {
	p := &Pipeline{}
	runner := execx.NewCommandRunner(log)

	deps := usecases.PipelineDeps{
		Reader:    usecases.NewCatalogReader(log),
		Extractor: archive.NewZipExtractor(log),
		DEM:       sardem.NewProvider(runner, cfg.Tools.Sardem, cfg.Tools.DEMDataSource, log),
		Corrector: sarsen.NewEngine(runner, cfg.Tools.Sarsen, cfg.Pipeline.MeasurementGroup, cfg.Pipeline.Radiometry, log),
		Writer:    usecases.NewCatalogWriter(log),
	}

	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("database: %w", err)
		}
		p.DB = db
		p.closers = append(p.closers, db.Close)
		p.Runs = postgres.NewRunRepo(db)
		deps.Runs = p.Runs
	}

	if cfg.Valkey.Addr != "" {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			log.Warn("valkey unavailable, DEM reuse disabled", "error", err)
		} else {
			p.Cache = cache
			p.closers = append(p.closers, cache.Close)
			var cacheDir string
			if cfg.Pipeline.StagingRoot != "" {
				cacheDir = filepath.Join(cfg.Pipeline.StagingRoot, "dem-cache")
			}
			deps.DEM = usecases.NewCachedDEMProvider(deps.DEM, cache, cacheDir, cfg.Valkey.DEMTTLSeconds, log)
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			log.Warn("nats unavailable, run events disabled", "error", err)
		} else {
			p.Events = pub
			p.closers = append(p.closers, pub.Close)
			deps.Events = pub
		}
	}

	if cfg.ObjectStore.Endpoint != "" {
		store, err := objectstore.New(ctx, cfg.ObjectStore.Endpoint, cfg.ObjectStore.AccessKey,
			cfg.ObjectStore.SecretKey, cfg.ObjectStore.Bucket, cfg.ObjectStore.Secure)
		if err != nil {
			log.Warn("object store unavailable, stage out disabled", "error", err)
		} else {
			deps.StageOut = usecases.NewStageOutService(store, cfg.ObjectStore.Prefix, log)
		}
	}

	p.Service = usecases.NewPipelineService(deps, cfg.Pipeline.StagingRoot, log)
	return p, nil
}

// Close releases every connection in reverse order of creation.
func (p *Pipeline) Close() {
	for _, c := range slices.Backward(p.closers) {
		c()
	}
	p.closers = nil
}
