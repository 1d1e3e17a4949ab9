package usecases_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/core/usecases"
	"github.com/samirrijal/sarpipe/internal/pkg/logging"
	"github.com/samirrijal/sarpipe/internal/pkg/metrics"
)

type mockCache struct {
	data    map[string][]byte
	deleted []string
	ttl     int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, ttlSeconds int) error {
	m.data[key] = value
	m.ttl = ttlSeconds
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// bboxDEM writes a DEM whose content names the bbox it was acquired for.
func bboxDEM() *mockDEM {
	return &mockDEM{acquireFn: func(_ context.Context, bbox domain.BBox, outDir string) (string, error) {
		p := filepath.Join(outDir, domain.DEMFileName)
		return p, os.WriteFile(p, []byte("dem-for-"+bbox.Key()), 0o644)
	}}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestCachedDEM_MissStoresCacheOwnedCopy(t *testing.T) {
	cache := newMockCache()
	next := fileDEM()
	dir := t.TempDir()
	p := usecases.NewCachedDEMProvider(next, cache, dir, 60, logging.Discard())
	out := t.TempDir()

	path, err := p.Acquire(context.Background(), testBBox, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.calls != 1 {
		t.Errorf("expected provider call on miss, got %d", next.calls)
	}
	if path != filepath.Join(out, domain.DEMFileName) {
		t.Errorf("expected DEM in out dir, got %s", path)
	}
	entry := string(cache.data["dem:"+testBBox.Key()])
	if entry != p.EntryPath(testBBox) || !strings.HasPrefix(entry, dir) {
		t.Errorf("expected cached path under %s, got %s", dir, entry)
	}
	if data, err := os.ReadFile(entry); err != nil || string(data) != "dem" {
		t.Errorf("cache copy mismatch: %q %v", data, err)
	}
	if cache.ttl != 60 {
		t.Errorf("expected ttl 60, got %d", cache.ttl)
	}
}

func TestCachedDEM_HitCopiesIntoOutDir(t *testing.T) {
	cache := newMockCache()
	next := fileDEM()
	p := usecases.NewCachedDEMProvider(next, cache, t.TempDir(), 60, logging.Discard())

	first, err := p.Acquire(context.Background(), testBBox, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	second, err := p.Acquire(context.Background(), testBBox, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.calls != 1 {
		t.Errorf("expected cache hit, provider called %d times", next.calls)
	}
	if second != filepath.Join(out, domain.DEMFileName) || second == first {
		t.Errorf("expected DEM copied into new out dir, got %s", second)
	}
	data, err := os.ReadFile(second)
	if err != nil || string(data) != "dem" {
		t.Errorf("copied DEM content mismatch: %q %v", data, err)
	}
}

func TestCachedDEM_SharedOutDirKeepsBBoxesApart(t *testing.T) {
	cache := newMockCache()
	next := bboxDEM()
	p := usecases.NewCachedDEMProvider(next, cache, t.TempDir(), 60, logging.Discard())
	other := domain.BBox{10, 10, 11, 11}
	shared := t.TempDir()
	ctx := context.Background()

	if _, err := p.Acquire(ctx, testBBox, shared); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Acquire(ctx, other, shared); err != nil {
		t.Fatal(err)
	}
	path, err := p.Acquire(ctx, testBBox, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if next.calls != 2 {
		t.Errorf("expected third request served from cache, provider called %d times", next.calls)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "dem-for-" + testBBox.Key(); string(data) != want {
		t.Errorf("expected %q, got %q", want, data)
	}
}

func TestCachedDEM_StaleEntryIsDropped(t *testing.T) {
	cache := newMockCache()
	key := "dem:" + testBBox.Key()
	cache.data[key] = []byte("/does/not/exist/dem.tif")
	next := fileDEM()
	p := usecases.NewCachedDEMProvider(next, cache, t.TempDir(), 60, logging.Discard())

	if _, err := p.Acquire(context.Background(), testBBox, t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if len(cache.deleted) != 1 || cache.deleted[0] != key {
		t.Errorf("expected stale key deleted, got %v", cache.deleted)
	}
	if next.calls != 1 || string(cache.data[key]) != p.EntryPath(testBBox) {
		t.Errorf("expected fresh DEM cached, got %q", cache.data[key])
	}
}

func TestCachedDEM_FailedCopyCountsOnlyAsMiss(t *testing.T) {
	cache := newMockCache()
	next := &mockDEM{acquireFn: func(context.Context, domain.BBox, string) (string, error) {
		return "", errors.New("no tiles")
	}}
	p := usecases.NewCachedDEMProvider(next, cache, t.TempDir(), 60, logging.Discard())

	entry := p.EntryPath(testBBox)
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(entry, []byte("dem"), 0o644); err != nil {
		t.Fatal(err)
	}
	cache.data["dem:"+testBBox.Key()] = []byte(entry)

	// A regular file where the out dir should be makes the copy fail.
	out := filepath.Join(t.TempDir(), "out")
	if err := os.WriteFile(out, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	hits := counterValue(t, metrics.CacheHits.WithLabelValues("dem"))
	misses := counterValue(t, metrics.CacheMisses.WithLabelValues("dem"))
	if _, err := p.Acquire(context.Background(), testBBox, out); err == nil {
		t.Fatal("expected error")
	}
	if got := counterValue(t, metrics.CacheHits.WithLabelValues("dem")) - hits; got != 0 {
		t.Errorf("expected no hit counted, got %v", got)
	}
	if got := counterValue(t, metrics.CacheMisses.WithLabelValues("dem")) - misses; got != 1 {
		t.Errorf("expected one miss counted, got %v", got)
	}
}

func TestCachedDEM_ProviderErrorNotCached(t *testing.T) {
	cache := newMockCache()
	next := &mockDEM{acquireFn: func(context.Context, domain.BBox, string) (string, error) {
		return "", errors.New("no tiles")
	}}
	p := usecases.NewCachedDEMProvider(next, cache, t.TempDir(), 60, logging.Discard())

	if _, err := p.Acquire(context.Background(), testBBox, t.TempDir()); err == nil {
		t.Fatal("expected error")
	}
	if len(cache.data) != 0 {
		t.Errorf("failed acquisition must not be cached, got %v", cache.data)
	}
}
