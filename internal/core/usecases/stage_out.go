package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/core/ports"
)

// StageOutService copies a published output tree to object storage.
type StageOutService struct {
	store  ports.ObjectStore
	prefix string
	log    *slog.Logger
}

// NewStageOutService creates a new StageOutService uploading under prefix.
func NewStageOutService(store ports.ObjectStore, prefix string, log *slog.Logger) *StageOutService {
	return &StageOutService{store: store, prefix: strings.Trim(prefix, "/"), log: log}
}

// Upload stores the catalog, its items, and every asset under
// <prefix>/<runID>/, keeping their layout relative to the catalog. Assets that
// live outside the catalog directory are skipped. It returns the remote prefix.
func (s *StageOutService) Upload(ctx context.Context, runID string, pub *domain.PublishedCatalog) (string, error) {
	root := filepath.Dir(pub.CatalogPath)
	remote := path.Join(s.prefix, runID)

	files := make([]string, 0, 1+len(pub.ItemPaths)+len(pub.AssetPaths))
	files = append(files, pub.CatalogPath)
	files = append(files, pub.ItemPaths...)
	files = append(files, pub.AssetPaths...)

	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			s.log.Warn("skipping file outside the catalog tree", "file", f)
			continue
		}
		key := path.Join(remote, filepath.ToSlash(rel))
		if err := s.store.PutFile(ctx, key, f); err != nil {
			return "", fmt.Errorf("upload %s: %w", rel, err)
		}
		s.log.Debug("uploaded", "file", f, "key", key)
	}

	s.log.Info("stage out upload completed", "prefix", remote, "files", len(files))
	return remote, nil
}
