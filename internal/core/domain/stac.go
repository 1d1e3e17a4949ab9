package domain

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// StacVersion is the STAC version written on every output document.
const StacVersion = "1.0.0"

// Link relations and media types used by the pipeline.
const (
	RelSelf   = "self"
	RelRoot   = "root"
	RelParent = "parent"
	RelItem   = "item"
	RelChild  = "child"

	MediaTypeJSON    = "application/json"
	MediaTypeGeoJSON = "application/geo+json"
	MediaTypeGeoTIFF = "image/tiff"

	// FileSizeField is the file extension key holding an asset's size in bytes.
	FileSizeField = "file:size"
)

// Link is a typed reference from a STAC document to another resource.
type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Catalog is a STAC catalog document.
type Catalog struct {
	Type           string   `json:"type"`
	StacVersion    string   `json:"stac_version"`
	StacExtensions []string `json:"stac_extensions,omitempty"`
	ID             string   `json:"id"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description"`
	Links          []Link   `json:"links"`
}

// LinksByRel returns every link carrying the given relation, in document order.
func (c *Catalog) LinksByRel(rel string) []Link {
	var out []Link
	for _, l := range c.Links {
		if l.Rel == rel {
			out = append(out, l)
		}
	}
	return out
}

// Item is a STAC item: one spatio-temporal record with named assets.
type Item struct {
	Type           string            `json:"type"`
	StacVersion    string            `json:"stac_version"`
	StacExtensions []string          `json:"stac_extensions,omitempty"`
	ID             string            `json:"id"`
	Geometry       *geojson.Geometry `json:"geometry"`
	BBox           []float64         `json:"bbox,omitempty"`
	Properties     map[string]any    `json:"properties"`
	Links          []Link            `json:"links"`
	Assets         map[string]*Asset `json:"assets"`
	Collection     string            `json:"collection,omitempty"`
}

// Asset returns the asset stored under name, or an error wrapping
// ErrAssetMissing.
func (it *Item) Asset(name string) (*Asset, error) {
	a, ok := it.Assets[name]
	if !ok || a == nil {
		return nil, fmt.Errorf("%w: %q on item %s", ErrAssetMissing, name, it.ID)
	}
	return a, nil
}

// SetSpatialExtent overwrites bbox and geometry together so they stay consistent.
func (it *Item) SetSpatialExtent(b BBox) {
	it.BBox = b.Slice()
	it.Geometry = b.Geometry()
}

// Clone returns a deep copy sharing no mutable state with it.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := &Item{
		Type:           it.Type,
		StacVersion:    it.StacVersion,
		StacExtensions: append([]string(nil), it.StacExtensions...),
		ID:             it.ID,
		BBox:           append([]float64(nil), it.BBox...),
		Properties:     cloneMap(it.Properties),
		Links:          append([]Link(nil), it.Links...),
		Collection:     it.Collection,
	}
	if it.Geometry != nil {
		c.Geometry = geojson.NewGeometry(orb.Clone(it.Geometry.Geometry()))
	}
	if it.Assets != nil {
		c.Assets = make(map[string]*Asset, len(it.Assets))
		for k, a := range it.Assets {
			c.Assets[k] = a.Clone()
		}
	}
	return c
}

// Asset is a single file referenced by an item.
type Asset struct {
	Href        string
	Title       string
	Description string
	Type        string
	Roles       []string
	// Extra holds every other field, extension fields such as file:size included.
	Extra map[string]any
}

var assetKnownFields = []string{"href", "title", "description", "type", "roles"}

// Clone returns an independent copy of a.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	return &Asset{
		Href:        a.Href,
		Title:       a.Title,
		Description: a.Description,
		Type:        a.Type,
		Roles:       append([]string(nil), a.Roles...),
		Extra:       cloneMap(a.Extra),
	}
}

func (a Asset) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Extra)+5)
	for k, v := range a.Extra {
		m[k] = v
	}
	m["href"] = a.Href
	if a.Title != "" {
		m["title"] = a.Title
	}
	if a.Description != "" {
		m["description"] = a.Description
	}
	if a.Type != "" {
		m["type"] = a.Type
	}
	if len(a.Roles) > 0 {
		m["roles"] = a.Roles
	}
	return json.Marshal(m)
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var known struct {
		Href        string   `json:"href"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Type        string   `json:"type"`
		Roles       []string `json:"roles"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return fmt.Errorf("decode asset: %w", err)
	}
	var extra map[string]any
	if err := json.Unmarshal(data, &extra); err != nil {
		return fmt.Errorf("decode asset fields: %w", err)
	}
	for _, k := range assetKnownFields {
		delete(extra, k)
	}
	if len(extra) == 0 {
		extra = nil
	}
	*a = Asset{
		Href:        known.Href,
		Title:       known.Title,
		Description: known.Description,
		Type:        known.Type,
		Roles:       known.Roles,
		Extra:       extra,
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	default:
		return v
	}
}
