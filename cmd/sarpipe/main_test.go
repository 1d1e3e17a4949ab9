package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-v"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if strings.TrimSpace(stdout.String()) != version {
		t.Errorf("expected %q, got %q", version, stdout.String())
	}
}

func TestRun_UsageErrors(t *testing.T) {
	cases := map[string][]string{
		"missing bbox":    {"-o", t.TempDir()},
		"short bbox":      {"--bbox", "1", "2", "3", "-o", t.TempDir()},
		"inverted bbox":   {"--bbox", "5", "0", "1", "1", "-o", t.TempDir()},
		"missing out dir": {"--bbox", "1", "2", "3", "4"},
		"unknown flag":    {"--nope"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), args, &stdout, &stderr); code != exitUsage {
				t.Errorf("expected exit %d, got %d (stderr %q)", exitUsage, code, stderr.String())
			}
		})
	}
}

const fakeSardem = `#!/bin/sh
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then shift; printf dem > "$1"; fi
  shift
done
`

const fakeSarsen = `#!/bin/sh
while [ $# -gt 0 ]; do
  if [ "$1" = "--output-urlpath" ]; then shift; printf raster > "$1"; fi
  shift
done
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func writeInput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	zf, err := os.Create(filepath.Join(dir, "S1A_TEST.zip"))
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(zf)
	w, err := zw.Create("S1A_TEST.SAFE/manifest.safe")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("<xfdu/>"))
	zw.Close()
	zf.Close()

	docs := map[string]string{
		"catalog.json": `{"type":"Catalog","stac_version":"1.0.0","id":"in","description":"in",
			"links":[{"rel":"item","href":"./S1A_TEST/S1A_TEST.json"}]}`,
		"S1A_TEST/S1A_TEST.json": `{"type":"Feature","stac_version":"1.0.0","id":"S1A_TEST",
			"geometry":null,"properties":{"title":"input"},"links":[],
			"assets":{"PRODUCT":{"href":"../S1A_TEST.zip","description":"GRD"}}}`,
	}
	for name, body := range docs {
		p := filepath.Join(dir, name)
		os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRun_EndToEnd(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tools := t.TempDir()
	t.Setenv("SARPIPE_TOOLS_SARDEM", writeScript(t, tools, "sardem", fakeSardem))
	t.Setenv("SARPIPE_TOOLS_SARSEN", writeScript(t, tools, "sarsen", fakeSarsen))
	t.Setenv("SARPIPE_PIPELINE_STAGING_ROOT", t.TempDir())

	in := writeInput(t)
	out := t.TempDir()
	args := []string{
		"--stac_catalog_folder", in,
		"--bbox", "-118.068", "34.222", "-118.058", "34.228",
		"-o", out,
	}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), args, &stdout, &stderr); code != exitOK {
		t.Fatalf("expected exit 0, got %d\n%s", code, stderr.String())
	}

	for _, name := range []string{"dem.tif", "S1A_TEST_sarsen_output.tif", "catalog.json", "S1A_TEST/S1A_TEST.json"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(out, "S1A_TEST", "S1A_TEST.json"))
	if err != nil {
		t.Fatal(err)
	}
	var item map[string]any
	if err := json.Unmarshal(data, &item); err != nil {
		t.Fatal(err)
	}
	asset := item["assets"].(map[string]any)["output"].(map[string]any)
	if asset["href"] != "../S1A_TEST_sarsen_output.tif" {
		t.Errorf("unexpected href %v", asset["href"])
	}
	if asset["description"] != "GRD" {
		t.Errorf("expected inherited description, got %v", asset["description"])
	}
	if asset["file:size"] != float64(len("raster")) {
		t.Errorf("unexpected file:size %v", asset["file:size"])
	}
}

func TestRun_NoOutputsFails(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tools := t.TempDir()
	t.Setenv("SARPIPE_TOOLS_SARDEM", writeScript(t, tools, "sardem", "#!/bin/sh\nexit 3\n"))
	t.Setenv("SARPIPE_TOOLS_SARSEN", writeScript(t, tools, "sarsen", fakeSarsen))
	t.Setenv("SARPIPE_PIPELINE_STAGING_ROOT", t.TempDir())

	args := []string{"--stac_catalog_folder", writeInput(t), "--bbox", "1", "2", "3", "4", "-o", t.TempDir()}
	before := slog.Default()
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), args, &stdout, &stderr); code != exitFailure {
		t.Fatalf("expected exit %d, got %d", exitFailure, code)
	}
	if !strings.Contains(stderr.String(), "no product was corrected") {
		t.Errorf("expected no-output message, got %q", stderr.String())
	}
	if slog.Default() != before {
		t.Error("run must not replace the default logger")
	}
}
