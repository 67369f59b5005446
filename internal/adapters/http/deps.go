package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fleetmap/internal/adapters/postgres"
	"github.com/samirrijal/fleetmap/internal/adapters/valkey"
	"github.com/samirrijal/fleetmap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Map      *usecases.MapService
	Trails   *usecases.TrailService
	Ingest   *usecases.IngestService
	Sessions *usecases.SessionService
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache

	// DocsPath is the OpenAPI document served at /docs/openapi.yaml.
	DocsPath string
	Version  string
}
