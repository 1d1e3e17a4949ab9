package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// BBox is a geographic bounding box ordered (min-lon, min-lat, max-lon, max-lat).
type BBox [4]float64

// NewBBox builds a BBox from a slice of exactly four values.
func NewBBox(v []float64) (BBox, error) {
	if len(v) != 4 {
		return BBox{}, fmt.Errorf("%w: expected 4 values, got %d", ErrInvalidBBox, len(v))
	}
	b := BBox{v[0], v[1], v[2], v[3]}
	return b, b.Validate()
}

func (b BBox) MinLon() float64 { return b[0] }
func (b BBox) MinLat() float64 { return b[1] }
func (b BBox) MaxLon() float64 { return b[2] }
func (b BBox) MaxLat() float64 { return b[3] }

// Validate checks ordering and WGS 84 ranges.
func (b BBox) Validate() error {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidBBox)
		}
	}
	if b.MinLon() < -180 || b.MaxLon() > 180 || b.MinLat() < -90 || b.MaxLat() > 90 {
		return fmt.Errorf("%w: %v outside WGS 84 range", ErrInvalidBBox, b)
	}
	if b.MinLon() > b.MaxLon() || b.MinLat() > b.MaxLat() {
		return fmt.Errorf("%w: min greater than max in %v", ErrInvalidBBox, b)
	}
	return nil
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon(), b.MinLat()},
		Max: orb.Point{b.MaxLon(), b.MaxLat()},
	}
}

// Polygon returns the rectangular outline of the box. The ring runs
// SW, SE, NE, NW and closes back on SW.
func (b BBox) Polygon() orb.Polygon {
	return orb.Polygon{b.Bound().ToRing()}
}

// Geometry returns the box outline as a GeoJSON Polygon geometry.
func (b BBox) Geometry() *geojson.Geometry {
	return geojson.NewGeometry(b.Polygon())
}

// ExtentMeters returns the geodesic width and height of the box, measured
// through its center.
func (b BBox) ExtentMeters() (width, height float64) {
	c := b.Bound().Center()
	width = geo.Distance(orb.Point{b.MinLon(), c.Lat()}, orb.Point{b.MaxLon(), c.Lat()})
	height = geo.Distance(orb.Point{c.Lon(), b.MinLat()}, orb.Point{c.Lon(), b.MaxLat()})
	return width, height
}

// Slice returns the box as the 4-element array used by STAC documents.
func (b BBox) Slice() []float64 {
	return []float64{b[0], b[1], b[2], b[3]}
}

// Key is a stable textual form, suitable for cache keys.
func (b BBox) Key() string {
	parts := make([]string, 4)
	for i, v := range b {
		parts[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(parts, ",")
}

// Args renders the box as four CLI arguments (LEFT BOTTOM RIGHT TOP).
func (b BBox) Args() []string {
	out := make([]string, 4)
	for i, v := range b {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}
