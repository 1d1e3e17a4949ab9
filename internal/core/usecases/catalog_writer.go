package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samirrijal/sarpipe/internal/core/domain"
)

const (
	// OutputCatalogID is both id and description of every output catalog.
	OutputCatalogID = "SARsen output catalog"
	// OutputAssetKey names the single asset of every output item.
	OutputAssetKey = "output"
	// CatalogFileName is the file name of the output catalog document.
	CatalogFileName = "catalog.json"
)

var errTreeSaved = errors.New("output catalog already saved")

// OutputTree is an in-memory output catalog with its items. Item asset hrefs
// are relative to each item's own document path.
type OutputTree struct {
	Catalog     *domain.Catalog
	CatalogPath string
	Items       []ItemEntry
	saved       bool
}

// Published summarizes the tree locations with absolute paths.
func (t *OutputTree) Published() *domain.PublishedCatalog {
	pub := &domain.PublishedCatalog{CatalogPath: t.CatalogPath}
	for _, e := range t.Items {
		pub.ItemPaths = append(pub.ItemPaths, e.Path)
		for _, a := range e.Item.Assets {
			pub.AssetPaths = append(pub.AssetPaths, ResolveHref(e.Path, a.Href))
		}
	}
	return pub
}

// CatalogWriter synthesizes self-contained output catalogs.
type CatalogWriter struct {
	log *slog.Logger
}

// NewCatalogWriter creates a new CatalogWriter.
func NewCatalogWriter(log *slog.Logger) *CatalogWriter {
	return &CatalogWriter{log: log}
}

// BuildOutputCatalog publishes a single output raster described by item and
// returns the written catalog.
func (w *CatalogWriter) BuildOutputCatalog(ctx context.Context, outputDir string, item *domain.Item, bbox domain.BBox, assetName, outputPath string) (*domain.Catalog, error) {
	tree, err := w.Publish(ctx, outputDir, bbox, assetName, []domain.Output{{Item: item, Path: outputPath}})
	if err != nil {
		return nil, err
	}
	return tree.Catalog, nil
}

// Publish builds the output tree for every output and writes it to outputDir.
func (w *CatalogWriter) Publish(ctx context.Context, outputDir string, bbox domain.BBox, assetName string, outputs []domain.Output) (*OutputTree, error) {
	tree, err := w.Build(outputDir, bbox, assetName, outputs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := w.Save(tree); err != nil {
		return nil, err
	}
	w.log.Info("stage out catalog created", "catalog", tree.CatalogPath, "items", len(tree.Items))
	return tree, nil
}

// Build constructs the output tree in memory. Nothing is written.
func (w *CatalogWriter) Build(outputDir string, bbox domain.BBox, assetName string, outputs []domain.Output) (*OutputTree, error) {
	if len(outputs) == 0 {
		return nil, domain.ErrNoOutputs
	}

	outputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	catalogPath := filepath.Join(outputDir, CatalogFileName)

	cat := &domain.Catalog{
		Type:        "Catalog",
		StacVersion: domain.StacVersion,
		ID:          OutputCatalogID,
		Description: OutputCatalogID,
		Links: []domain.Link{
			{Rel: domain.RelRoot, Href: "./" + CatalogFileName, Type: domain.MediaTypeJSON},
		},
	}
	tree := &OutputTree{Catalog: cat, CatalogPath: catalogPath}

	seen := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		if out.Item == nil {
			return nil, fmt.Errorf("output %s has no source item", out.Path)
		}
		id := uniqueID(itemID(out), seen)

		entry, err := w.buildItem(outputDir, out.Item, id, bbox, assetName, out.Path)
		if err != nil {
			return nil, fmt.Errorf("build item %s: %w", id, err)
		}
		entry.Item.Links = []domain.Link{
			{Rel: domain.RelRoot, Href: relativeHref(entry.Path, catalogPath), Type: domain.MediaTypeJSON},
			{Rel: domain.RelParent, Href: relativeHref(entry.Path, catalogPath), Type: domain.MediaTypeJSON},
		}
		cat.Links = append(cat.Links, domain.Link{
			Rel:  domain.RelItem,
			Href: relativeHref(catalogPath, entry.Path),
			Type: domain.MediaTypeGeoJSON,
		})
		tree.Items = append(tree.Items, entry)
	}
	return tree, nil
}

func (w *CatalogWriter) buildItem(outputDir string, src *domain.Item, id string, bbox domain.BBox, assetName, outputPath string) (ItemEntry, error) {
	itemPath := filepath.Join(outputDir, id, id+".json")
	w.log.Info("creating STAC item", "item", itemPath)

	assetPath, err := filepath.Abs(outputPath)
	if err != nil {
		return ItemEntry{}, fmt.Errorf("resolve output path: %w", err)
	}
	info, err := os.Stat(assetPath)
	if err != nil {
		return ItemEntry{}, fmt.Errorf("stat output: %w", err)
	}
	if info.IsDir() {
		return ItemEntry{}, fmt.Errorf("output %s is a directory", assetPath)
	}

	item := src.Clone()
	item.ID = id
	item.Type = "Feature"
	if item.StacVersion == "" {
		item.StacVersion = domain.StacVersion
	}
	if item.Properties == nil {
		item.Properties = make(map[string]any)
	}
	item.Properties["title"] = filepath.Base(assetPath)
	item.SetSpatialExtent(bbox)

	asset := item.Assets[assetName].Clone()
	if asset == nil {
		w.log.Warn("source item has no asset to inherit from", "item", src.ID, "asset", assetName)
		asset = &domain.Asset{}
	}
	asset.Href = assetPath
	asset.Title = OutputAssetKey
	asset.Type = domain.MediaTypeGeoTIFF
	asset.Roles = []string{"data"}
	if asset.Extra == nil {
		asset.Extra = make(map[string]any)
	}
	asset.Extra[domain.FileSizeField] = info.Size()

	item.Assets = map[string]*domain.Asset{OutputAssetKey: asset}
	makeAssetHrefsRelative(item, itemPath)

	return ItemEntry{Path: itemPath, Item: item}, nil
}

// Save writes every item document and then the catalog document. A tree can
// be saved only once.
func (w *CatalogWriter) Save(tree *OutputTree) error {
	if tree.saved {
		return errTreeSaved
	}
	for _, e := range tree.Items {
		if err := os.MkdirAll(filepath.Dir(e.Path), 0o755); err != nil {
			return fmt.Errorf("create item dir: %w", err)
		}
		if err := writeJSON(e.Path, e.Item); err != nil {
			return err
		}
	}
	w.log.Info("creating STAC catalog", "catalog", tree.CatalogPath)
	if err := writeJSON(tree.CatalogPath, tree.Catalog); err != nil {
		return err
	}
	tree.saved = true
	return nil
}

func makeAssetHrefsRelative(item *domain.Item, itemPath string) {
	for _, a := range item.Assets {
		if filepath.IsAbs(a.Href) {
			a.Href = relativeHref(itemPath, a.Href)
		}
	}
}

// relativeHref expresses target relative to the directory of fromDoc.
func relativeHref(fromDoc, target string) string {
	rel, err := filepath.Rel(filepath.Dir(fromDoc), target)
	if err != nil {
		return target
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") && rel != ".." {
		rel = "./" + rel
	}
	return rel
}

func itemID(out domain.Output) string {
	if id := pathSafeID(out.Item.ID); id != "" {
		return id
	}
	base := filepath.Base(out.Path)
	if id := pathSafeID(strings.TrimSuffix(base, filepath.Ext(base))); id != "" {
		return id
	}
	return "item"
}

// pathSafeID turns an item id into a single path element. Separators become
// underscores; "." and ".." yield an empty id.
func pathSafeID(id string) string {
	id = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, id)
	if id == "." || id == ".." {
		return ""
	}
	return id
}

func uniqueID(id string, seen map[string]bool) string {
	candidate := id
	for n := 2; seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
	seen[candidate] = true
	return candidate
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
