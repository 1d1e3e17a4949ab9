package usecases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/core/ports"
	"github.com/samirrijal/sarpipe/internal/pkg/metrics"
)

// CachedDEMProvider reuses DEM rasters acquired by earlier runs for the same
// bounding box. Every acquired DEM is copied into a directory owned by the
// provider, one file per bbox, and the cache maps the bbox key to that file.
type CachedDEMProvider struct {
	next       ports.DEMProvider
	cache      ports.CacheService
	dir        string
	ttlSeconds int
	log        *slog.Logger
}

// NewCachedDEMProvider wraps next with a bbox-keyed cache whose rasters live
// under dir. An empty dir selects a directory below os.TempDir.
func NewCachedDEMProvider(next ports.DEMProvider, cache ports.CacheService, dir string, ttlSeconds int, log *slog.Logger) *CachedDEMProvider {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "sarpipe-dem-cache")
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &CachedDEMProvider{next: next, cache: cache, dir: dir, ttlSeconds: ttlSeconds, log: log}
}

func demCacheKey(bbox domain.BBox) string {
	return "dem:" + bbox.Key()
}

// EntryPath is the cache-owned copy of the DEM for bbox.
func (p *CachedDEMProvider) EntryPath(bbox domain.BBox) string {
	name := uuid.NewSHA1(uuid.NameSpaceURL, []byte(bbox.Key())).String()
	return filepath.Join(p.dir, name+".tif")
}

// Acquire returns outDir/dem.tif, copying it from the cached DEM of the same
// bbox when one exists.
func (p *CachedDEMProvider) Acquire(ctx context.Context, bbox domain.BBox, outDir string) (string, error) {
	key := demCacheKey(bbox)
	entry := p.EntryPath(bbox)
	target, err := filepath.Abs(filepath.Join(outDir, domain.DEMFileName))
	if err != nil {
		return "", fmt.Errorf("resolve dem path: %w", err)
	}

	if data, err := p.cache.Get(ctx, key); err == nil {
		if string(data) == entry && nonEmptyFile(entry) {
			cpErr := copyFile(entry, target)
			if cpErr == nil {
				metrics.CacheHits.WithLabelValues("dem").Inc()
				metrics.DEMRequests.WithLabelValues("cache").Inc()
				p.log.Info("reusing cached DEM", "source", entry, "dem", target)
				return target, nil
			}
			p.log.Warn("cached DEM copy failed", "source", entry, "error", cpErr)
		} else {
			_ = p.cache.Delete(ctx, key)
		}
	}
	metrics.CacheMisses.WithLabelValues("dem").Inc()

	path, err := p.next.Acquire(ctx, bbox, outDir)
	if err != nil {
		return "", err
	}
	if err := copyFile(path, entry); err != nil {
		p.log.Warn("storing DEM in cache failed", "dem", path, "error", err)
		return path, nil
	}
	if err := p.cache.Set(ctx, key, []byte(entry), p.ttlSeconds); err != nil {
		p.log.Warn("caching DEM path failed", "error", err)
	}
	return path, nil
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// copyFile writes src to a temporary file next to dst and renames it into
// place, so readers never see a partial DEM.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.CreateTemp(filepath.Dir(dst), ".dem-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return err
	}
	if err := os.Chmod(out.Name(), 0o644); err != nil {
		os.Remove(out.Name())
		return err
	}
	return os.Rename(out.Name(), dst)
}
