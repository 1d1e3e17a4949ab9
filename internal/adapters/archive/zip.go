package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// ZipExtractor implements ports.ArchiveExtractor for zip archives.
type ZipExtractor struct {
	log *slog.Logger
}

// NewZipExtractor creates a new ZipExtractor.
func NewZipExtractor(log *slog.Logger) *ZipExtractor {
	return &ZipExtractor{log: log}
}

// Extract unpacks archivePath into stagingDir and returns the path of the
// first top-level entry in archive order. A directory is returned unchanged,
// since it is already an unpacked product.
func (z *ZipExtractor) Extract(ctx context.Context, archivePath, stagingDir string) (string, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return "", fmt.Errorf("stat archive: %w", err)
	}
	if info.IsDir() {
		z.log.Info("product is already extracted", "path", archivePath)
		return archivePath, nil
	}

	z.log.Info("extracting zip file", "archive", archivePath)
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return "", fmt.Errorf("%s: %w", archivePath, domain.ErrEmptyArchive)
	}

	root, err := filepath.Abs(stagingDir)
	if err != nil {
		return "", fmt.Errorf("resolve staging dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	first := ""
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if !within(root, target) {
			return "", fmt.Errorf("illegal entry path %q in %s", f.Name, archivePath)
		}
		if first == "" {
			first = topLevel(f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", fmt.Errorf("create %s: %w", f.Name, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return "", err
		}
	}

	if first == "" {
		return "", fmt.Errorf("%s: %w", archivePath, domain.ErrEmptyArchive)
	}
	return filepath.Join(root, first), nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func topLevel(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	name = strings.TrimPrefix(name, "/")
	top, _, _ := strings.Cut(name, "/")
	return top
}
