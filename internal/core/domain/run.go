package domain

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// OutputSuffix replaces the .SAFE extension in corrected raster names.
	OutputSuffix = "_sarsen_output.tif"
	// DEMFileName is the file name of the DEM acquired for a run.
	DEMFileName = "dem.tif"
)

// ProductState tracks one input product through the pipeline.
type ProductState string

const (
	StateDiscovered ProductState = "discovered"
	StateExtracted  ProductState = "extracted"
	StateCorrected  ProductState = "corrected"
	StateFailed     ProductState = "failed"
)

// Product is one input product found in the input catalog.
type Product struct {
	// Path is the absolute path of the product archive (or directory).
	Path string `json:"path"`
	// ItemPath is the absolute path of the item document that referenced it.
	ItemPath string `json:"item_path"`
	Item     *Item  `json:"item"`
}

// ProductResult is the terminal outcome for a single product.
type ProductResult struct {
	Product       Product       `json:"product"`
	State         ProductState  `json:"state"`
	ExtractedPath string        `json:"extracted_path,omitempty"`
	OutputPath    string        `json:"output_path,omitempty"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Succeeded reports whether the product produced a corrected raster.
func (r ProductResult) Succeeded() bool {
	return r.State == StateCorrected && r.OutputPath != ""
}

// Output pairs a produced raster with the input item describing it.
type Output struct {
	Item *Item  `json:"item"`
	Path string `json:"path"`
}

// RunRequest holds the parameters of one pipeline run.
type RunRequest struct {
	CatalogPath string `json:"catalog_path"`
	BBox        BBox   `json:"bbox"`
	AssetName   string `json:"asset_name"`
	OutDir      string `json:"out_dir"`
}

// PublishedCatalog describes the output catalog written to disk.
type PublishedCatalog struct {
	CatalogPath string   `json:"catalog_path"`
	ItemPaths   []string `json:"item_paths"`
	AssetPaths  []string `json:"asset_paths"`
	// RemotePrefix is the object-store prefix the tree was uploaded under, if any.
	RemotePrefix string `json:"remote_prefix,omitempty"`
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID      string            `json:"run_id"`
	Request    RunRequest        `json:"request"`
	DEMPath    string            `json:"dem_path,omitempty"`
	DEMError   string            `json:"dem_error,omitempty"`
	Results    []ProductResult   `json:"results"`
	Catalog    *PublishedCatalog `json:"catalog,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Outputs returns the successful results as publishable outputs, in input order.
func (r *RunReport) Outputs() []Output {
	var out []Output
	for _, res := range r.Results {
		if res.Succeeded() {
			out = append(out, Output{Item: res.Product.Item, Path: res.OutputPath})
		}
	}
	return out
}

// Counts returns the number of corrected and failed products.
func (r *RunReport) Counts() (corrected, failed int) {
	for _, res := range r.Results {
		if res.Succeeded() {
			corrected++
		} else {
			failed++
		}
	}
	return corrected, failed
}

// OutputRasterName derives the corrected raster file name from a product path.
func OutputRasterName(productPath string) string {
	base := filepath.Base(filepath.Clean(productPath))
	if strings.Contains(base, ".SAFE") {
		return strings.Replace(base, ".SAFE", OutputSuffix, 1)
	}
	return base + OutputSuffix
}
