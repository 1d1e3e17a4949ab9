package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// CatalogReader loads STAC catalogs and items from the local filesystem.
type CatalogReader struct {
	log *slog.Logger
}

// NewCatalogReader creates a new CatalogReader.
func NewCatalogReader(log *slog.Logger) *CatalogReader {
	return &CatalogReader{log: log}
}

// ItemEntry is an item document together with where it was read from.
type ItemEntry struct {
	Path string
	Item *domain.Item
}

// ResolveHref resolves href against the directory of the document at docPath.
// Absolute hrefs and file:// URLs are returned cleaned.
func ResolveHref(docPath, href string) string {
	href = strings.TrimPrefix(href, "file://")
	if filepath.IsAbs(href) {
		return filepath.Clean(href)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(docPath), href))
}

// LoadCatalog reads and decodes a catalog document.
func (r *CatalogReader) LoadCatalog(path string) (*domain.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var cat domain.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	r.checkVersion(path, cat.StacVersion)
	return &cat, nil
}

// LoadItem reads and decodes an item document.
func (r *CatalogReader) LoadItem(path string) (*domain.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item %s: %w", path, err)
	}
	var item domain.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parse item %s: %w", path, err)
	}
	r.checkVersion(path, item.StacVersion)
	return &item, nil
}

// DiscoverProducts returns, for every item linked from the catalog, the
// resolved path of its assetName asset. Items without the asset, or that
// cannot be read, are skipped with a warning. An error is returned only when
// the catalog itself cannot be loaded.
func (r *CatalogReader) DiscoverProducts(ctx context.Context, catalogPath, assetName string) ([]domain.Product, error) {
	catalogPath, err := filepath.Abs(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	cat, err := r.LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}
	if len(cat.Links) == 0 {
		r.log.Warn("no links found in the STAC catalog", "catalog", catalogPath)
		return nil, nil
	}

	var products []domain.Product
	for _, link := range cat.LinksByRel(domain.RelItem) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		itemPath := ResolveHref(catalogPath, link.Href)
		item, err := r.LoadItem(itemPath)
		if err != nil {
			r.log.Warn("skipping unreadable item", "item", itemPath, "error", err)
			continue
		}

		asset, err := item.Asset(assetName)
		if err != nil {
			r.log.Warn("skipping item", "item", itemPath, "error", err)
			continue
		}

		products = append(products, domain.Product{
			Path:     ResolveHref(itemPath, asset.Href),
			ItemPath: itemPath,
			Item:     item,
		})
	}
	return products, nil
}

// ListItemAssetPaths is the fail-soft form of DiscoverProducts: any failure
// to load the catalog is logged and yields an empty result.
func (r *CatalogReader) ListItemAssetPaths(ctx context.Context, catalogPath, assetName string) []string {
	r.log.Info("fetching product paths from the STAC catalog", "catalog", catalogPath, "asset", assetName)

	products, err := r.DiscoverProducts(ctx, catalogPath, assetName)
	if err != nil {
		r.log.Error("error fetching product paths", "catalog", catalogPath, "error", err)
		return nil
	}

	paths := make([]string, 0, len(products))
	for _, p := range products {
		paths = append(paths, p.Path)
	}
	return paths
}

// FindItemByRelation returns the first item linked from the catalog with the
// given relation. It returns domain.ErrNotFound when no link matches.
func (r *CatalogReader) FindItemByRelation(ctx context.Context, catalogPath, rel string) (*domain.Item, error) {
	catalogPath, err := filepath.Abs(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	cat, err := r.LoadCatalog(catalogPath)
	if err != nil {
		r.log.Error("error retrieving the STAC item", "catalog", catalogPath, "error", err)
		return nil, err
	}
	if len(cat.Links) == 0 {
		r.log.Warn("no links found in the STAC catalog", "catalog", catalogPath)
		return nil, fmt.Errorf("catalog %s has no links: %w", catalogPath, domain.ErrNotFound)
	}

	for _, link := range cat.Links {
		if link.Rel != rel {
			continue
		}
		item, err := r.LoadItem(ResolveHref(catalogPath, link.Href))
		if err != nil {
			r.log.Error("error retrieving the STAC item", "catalog", catalogPath, "rel", rel, "error", err)
			return nil, err
		}
		return item, nil
	}

	r.log.Warn("no link with relation in the STAC catalog", "catalog", catalogPath, "rel", rel)
	return nil, fmt.Errorf("no %q link in %s: %w", rel, catalogPath, domain.ErrNotFound)
}

// LoadItems reads every item linked from the catalog. Unreadable items are
// skipped with a warning.
func (r *CatalogReader) LoadItems(ctx context.Context, catalogPath string) (*domain.Catalog, []ItemEntry, error) {
	catalogPath, err := filepath.Abs(catalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	cat, err := r.LoadCatalog(catalogPath)
	if err != nil {
		return nil, nil, err
	}

	var entries []ItemEntry
	for _, link := range cat.LinksByRel(domain.RelItem) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		itemPath := ResolveHref(catalogPath, link.Href)
		item, err := r.LoadItem(itemPath)
		if err != nil {
			r.log.Warn("skipping unreadable item", "item", itemPath, "error", err)
			continue
		}
		entries = append(entries, ItemEntry{Path: itemPath, Item: item})
	}
	return cat, entries, nil
}

func (r *CatalogReader) checkVersion(path, version string) {
	if version == "" {
		r.log.Warn("document has no stac_version", "path", path)
		return
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		r.log.Warn("unparseable stac_version", "path", path, "stac_version", version, "error", err)
		return
	}
	if v.Major() != 1 {
		r.log.Warn("unsupported stac_version", "path", path, "stac_version", version)
	}
}
