package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/sarpipe/internal/adapters/postgres"
	"github.com/samirrijal/sarpipe/internal/adapters/valkey"
	"github.com/samirrijal/sarpipe/internal/core/ports"
	"github.com/samirrijal/sarpipe/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Reader *usecases.CatalogReader
	// CatalogPath is the served catalog document. Its directory is also
	// exposed read-only under /stac.
	CatalogPath string
	Version     string

	// Optional
	Runs  ports.RunRepository
	NATS  *nats.Conn
	DB    *postgres.DB
	Cache *valkey.Cache
}
