package ports

import (
	"context"

	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// ArchiveExtractor unpacks a compressed product.
type ArchiveExtractor interface {
	// Extract unpacks archivePath into stagingDir and returns the path of the
	// first top-level entry.
	Extract(ctx context.Context, archivePath, stagingDir string) (string, error)
}

// DEMProvider acquires a DEM raster covering a bounding box.
type DEMProvider interface {
	Acquire(ctx context.Context, bbox domain.BBox, outDir string) (string, error)
}

// TerrainCorrector runs radiometric terrain correction on one product.
type TerrainCorrector interface {
	Correct(ctx context.Context, productPath, demPath, outDir string) (string, error)
}

// EventPublisher announces finished runs to a message broker.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, report *domain.RunReport) error
}

// CacheService provides a key/value cache with expiry.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// ObjectStore stores files in a bucket.
type ObjectStore interface {
	PutFile(ctx context.Context, key, path string) error
}
