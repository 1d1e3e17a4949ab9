package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/sarpipe/internal/adapters/http"
	"github.com/samirrijal/sarpipe/internal/core/domain"
	"github.com/samirrijal/sarpipe/internal/core/usecases"
	"github.com/samirrijal/sarpipe/internal/pkg/logging"
)

// ---- Mock repositories ----

type mockRunRepo struct {
	getByIDFn    func(ctx context.Context, id string) (*domain.RunReport, error)
	listRecentFn func(ctx context.Context, limit int) ([]domain.RunReport, error)
}

func (m *mockRunRepo) Save(ctx context.Context, r *domain.RunReport) error { return nil }
func (m *mockRunRepo) GetByID(ctx context.Context, id string) (*domain.RunReport, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}
func (m *mockRunRepo) ListRecent(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, limit)
	}
	return nil, nil
}

// ---- Helpers ----

const catalogDoc = `{
  "type": "Catalog", "stac_version": "1.0.0", "id": "out", "description": "out",
  "links": [
    {"rel": "root", "href": "./catalog.json"},
    {"rel": "item", "href": "./a/a.json"},
    {"rel": "item", "href": "./b/b.json"}
  ]
}`

func itemDoc(id string, bbox string) string {
	return `{"type": "Feature", "stac_version": "1.0.0", "id": "` + id + `",
  "geometry": null, "bbox": ` + bbox + `, "properties": {}, "links": [],
  "assets": {"output": {"href": "./` + id + `.tif", "type": "image/tiff", "file:size": 4}}}`
}

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"catalog.json": catalogDoc,
		"a/a.json":     itemDoc("a", "[-118.1, 34.2, -118.0, 34.3]"),
		"a/a.tif":      "tiff",
		"b/b.json":     itemDoc("b", "[2.0, 48.0, 3.0, 49.0]"),
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(dir, "catalog.json")
}

func setupApp(t *testing.T, runs *mockRunRepo) *fiber.App {
	t.Helper()
	log := logging.Discard()
	deps := &handler.Dependencies{
		Reader:      usecases.NewCatalogReader(log),
		CatalogPath: writeTree(t),
		Version:     "1.0.0",
	}
	if runs != nil {
		deps.Runs = runs
	}
	app := fiber.New()
	handler.SetupRoutes(app, deps, log)
	return app
}

func doGet(t *testing.T, app *fiber.App, path string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

// ---- Tests ----

func TestHealth(t *testing.T) {
	app := setupApp(t, nil)
	code, body := doGet(t, app, "/v1/health")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatal(err)
	}
	if m["status"] != "healthy" || m["version"] != "1.0.0" {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestReady_NoBackends(t *testing.T) {
	app := setupApp(t, nil)
	code, body := doGet(t, app, "/v1/ready")
	if code != 200 {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
}

func TestCatalog(t *testing.T) {
	app := setupApp(t, nil)
	code, body := doGet(t, app, "/v1/catalog")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var cat domain.Catalog
	if err := json.Unmarshal(body, &cat); err != nil {
		t.Fatal(err)
	}
	if cat.ID != "out" || len(cat.LinksByRel(domain.RelItem)) != 2 {
		t.Errorf("unexpected catalog: %+v", cat)
	}
}

func TestListItems(t *testing.T) {
	app := setupApp(t, nil)
	code, body := doGet(t, app, "/v1/items")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var resp struct {
		Data       []domain.Item      `json:"data"`
		Pagination handler.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Pagination.Total != 2 || len(resp.Data) != 2 {
		t.Errorf("expected 2 items, got %+v", resp.Pagination)
	}
}

func TestListItems_BBoxFilter(t *testing.T) {
	app := setupApp(t, nil)
	code, body := doGet(t, app, "/v1/items?bbox=-119,34,-117,35")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var resp struct {
		Data []domain.Item `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "a" {
		t.Errorf("expected only item a, got %s", body)
	}
}

func TestListItems_BadBBox(t *testing.T) {
	app := setupApp(t, nil)
	for _, q := range []string{"1,2,3", "a,b,c,d", "10,0,5,1"} {
		code, _ := doGet(t, app, "/v1/items?bbox="+q)
		if code != 400 {
			t.Errorf("bbox=%s: expected 400, got %d", q, code)
		}
	}
}

func TestListItems_Pagination(t *testing.T) {
	app := setupApp(t, nil)
	req := httptest.NewRequest("GET", "/v1/items?limit=1", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}
}

func TestGetItem(t *testing.T) {
	app := setupApp(t, nil)
	code, body := doGet(t, app, "/v1/items/a")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var item domain.Item
	if err := json.Unmarshal(body, &item); err != nil {
		t.Fatal(err)
	}
	if item.Assets["output"] == nil || item.Assets["output"].Extra[domain.FileSizeField] != float64(4) {
		t.Errorf("unexpected item assets: %s", body)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	app := setupApp(t, nil)
	code, _ := doGet(t, app, "/v1/items/missing")
	if code != 404 {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestStaticTree(t *testing.T) {
	app := setupApp(t, nil)
	code, body := doGet(t, app, "/stac/a/a.tif")
	if code != 200 || string(body) != "tiff" {
		t.Errorf("expected raster bytes, got %d %q", code, body)
	}
}

func TestRuns_NotConfigured(t *testing.T) {
	app := setupApp(t, nil)
	code, _ := doGet(t, app, "/v1/runs")
	if code != 503 {
		t.Errorf("expected 503, got %d", code)
	}
}

func TestRuns(t *testing.T) {
	runs := &mockRunRepo{
		listRecentFn: func(ctx context.Context, limit int) ([]domain.RunReport, error) {
			return []domain.RunReport{{RunID: "r1"}, {RunID: "r2"}}, nil
		},
		getByIDFn: func(ctx context.Context, id string) (*domain.RunReport, error) {
			if id == "r1" {
				return &domain.RunReport{RunID: "r1"}, nil
			}
			return nil, errors.Join(errors.New("lookup"), domain.ErrNotFound)
		},
	}
	app := setupApp(t, runs)

	code, body := doGet(t, app, "/v1/runs")
	if code != 200 || !strings.Contains(string(body), `"r2"`) {
		t.Errorf("list runs: %d %s", code, body)
	}
	if code, _ := doGet(t, app, "/v1/runs/r1"); code != 200 {
		t.Errorf("get run: expected 200, got %d", code)
	}
	if code, _ := doGet(t, app, "/v1/runs/nope"); code != 404 {
		t.Errorf("missing run: expected 404, got %d", code)
	}
}
