package http

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"

	"github.com/samirrijal/sarpipe/internal/core/domain"
)

// CatalogHandler returns the served catalog document.
func CatalogHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cat, err := deps.Reader.LoadCatalog(deps.CatalogPath)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("load catalog failed", "catalog", deps.CatalogPath, "error", err)
			return errInternal(c, err.Error())
		}
		return c.JSON(cat)
	}
}

// ListItemsHandler returns the items of the served catalog, optionally
// filtered by ?bbox=minLon,minLat,maxLon,maxLat.
func ListItemsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var filter *orb.Bound
		if raw := c.Query("bbox"); raw != "" {
			b, err := parseBBoxQuery(raw)
			if err != nil {
				return errFromDomain(c, err)
			}
			bound := b.Bound()
			filter = &bound
		}

		_, entries, err := deps.Reader.LoadItems(c.UserContext(), deps.CatalogPath)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("load items failed", "catalog", deps.CatalogPath, "error", err)
			return errInternal(c, err.Error())
		}

		items := make([]*domain.Item, 0, len(entries))
		for _, e := range entries {
			if filter != nil {
				ib, ok := itemBound(e.Item)
				if !ok || !filter.Intersects(ib) {
					continue
				}
			}
			items = append(items, e.Item)
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		total := len(items)
		if offset >= total {
			items = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			items = items[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: items, Pagination: pg})
	}
}

// GetItemHandler returns a single item of the served catalog by id.
func GetItemHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "id is required")
		}

		_, entries, err := deps.Reader.LoadItems(c.UserContext(), deps.CatalogPath)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("load items failed", "catalog", deps.CatalogPath, "error", err)
			return errInternal(c, err.Error())
		}
		for _, e := range entries {
			if e.Item.ID == id {
				return c.JSON(e.Item, domain.MediaTypeGeoJSON)
			}
		}
		return errNotFound(c, fmt.Sprintf("item %q not found", id))
	}
}

// ListRunsHandler returns the most recent pipeline runs.
func ListRunsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Runs == nil {
			return errUnavailable(c, "run ledger not configured")
		}
		limit := c.QueryInt("limit", 20)
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		runs, err := deps.Runs.ListRecent(c.UserContext(), limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if runs == nil {
			runs = []domain.RunReport{}
		}
		return c.JSON(fiber.Map{"data": runs})
	}
}

// GetRunHandler returns one pipeline run by id.
func GetRunHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Runs == nil {
			return errUnavailable(c, "run ledger not configured")
		}
		run, err := deps.Runs.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errNotFound(c, "run not found")
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(run)
	}
}

func parseBBoxQuery(raw string) (domain.BBox, error) {
	parts := strings.Split(raw, ",")
	vals := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.BBox{}, fmt.Errorf("bbox value %q: %w", p, domain.ErrInvalidBBox)
		}
		vals = append(vals, v)
	}
	return domain.NewBBox(vals)
}

// itemBound returns the 2D extent of an item from its bbox field.
func itemBound(it *domain.Item) (orb.Bound, bool) {
	switch len(it.BBox) {
	case 4:
		return orb.Bound{Min: orb.Point{it.BBox[0], it.BBox[1]}, Max: orb.Point{it.BBox[2], it.BBox[3]}}, true
	case 6:
		return orb.Bound{Min: orb.Point{it.BBox[0], it.BBox[1]}, Max: orb.Point{it.BBox[3], it.BBox[4]}}, true
	}
	if it.Geometry != nil && it.Geometry.Geometry() != nil {
		return it.Geometry.Geometry().Bound(), true
	}
	return orb.Bound{}, false
}
