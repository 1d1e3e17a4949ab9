package archive

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/pkg/logging"
)

func writeZip(t *testing.T, path string, entries map[string]string, order []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtract_ReturnsFirstTopLevelEntry(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "S1A.zip")
	order := []string{
		"S1A_IW_GRDH.SAFE/",
		"S1A_IW_GRDH.SAFE/manifest.safe",
		"S1A_IW_GRDH.SAFE/measurement/s1a-iw-grd-vv.tiff",
		"S1A_IW_GRDH_checksum.md5",
	}
	writeZip(t, archive, map[string]string{
		"S1A_IW_GRDH.SAFE/manifest.safe":                  "<xfdu/>",
		"S1A_IW_GRDH.SAFE/measurement/s1a-iw-grd-vv.tiff": "tiff",
		"S1A_IW_GRDH_checksum.md5":                        "md5",
	}, order)

	staging := filepath.Join(dir, "staging")
	z := NewZipExtractor(logging.Discard())
	got, err := z.Extract(context.Background(), archive, staging)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(staging, "S1A_IW_GRDH.SAFE"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	data, err := os.ReadFile(filepath.Join(got, "measurement", "s1a-iw-grd-vv.tiff"))
	if err != nil || string(data) != "tiff" {
		t.Errorf("nested entry not extracted: %q %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(staging, "S1A_IW_GRDH_checksum.md5")); err != nil {
		t.Errorf("sibling entry not extracted: %v", err)
	}
}

func TestExtract_FileFirstEntry(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "p.zip")
	writeZip(t, archive, map[string]string{"a.txt": "a", "b/c.txt": "c"}, []string{"a.txt", "b/c.txt"})

	got, err := NewZipExtractor(logging.Discard()).Extract(context.Background(), archive, filepath.Join(dir, "s"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "a.txt" {
		t.Errorf("expected a.txt, got %s", got)
	}
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../evil.txt": "x"}, []string{"../evil.txt"})

	staging := filepath.Join(dir, "staging")
	if _, err := NewZipExtractor(logging.Discard()).Extract(context.Background(), archive, staging); err == nil {
		t.Fatal("expected error for entry escaping the staging dir")
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.txt")); !os.IsNotExist(err) {
		t.Error("entry was written outside the staging dir")
	}
}

func TestExtract_EmptyArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "empty.zip")
	writeZip(t, archive, nil, nil)

	_, err := NewZipExtractor(logging.Discard()).Extract(context.Background(), archive, filepath.Join(dir, "s"))
	if !errors.Is(err, domain.ErrEmptyArchive) {
		t.Errorf("expected ErrEmptyArchive, got %v", err)
	}
}

func TestExtract_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bad.zip")
	if err := os.WriteFile(archive, []byte("definitely not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewZipExtractor(logging.Discard()).Extract(context.Background(), archive, filepath.Join(dir, "s")); err == nil {
		t.Error("expected error for corrupt archive")
	}
}

func TestExtract_MissingArchive(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewZipExtractor(logging.Discard()).Extract(context.Background(), filepath.Join(dir, "nope.zip"), dir); err == nil {
		t.Error("expected error for missing archive")
	}
}

func TestExtract_DirectoryPassesThrough(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "S1A.SAFE")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := NewZipExtractor(logging.Discard()).Extract(context.Background(), dir, t.TempDir())
	if err != nil || got != dir {
		t.Errorf("expected %s unchanged, got %s %v", dir, got, err)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "p.zip")
	writeZip(t, archive, map[string]string{"a.txt": "a"}, []string{"a.txt"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewZipExtractor(logging.Discard()).Extract(ctx, archive, filepath.Join(dir, "s")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
