package http

import (
	"github.com/nats-io/nats.go"

	"staleview/internal/adapters/postgres"
	"staleview/internal/core/ports"
	"staleview/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Imagery   *usecases.ImageryService
	Projects  *usecases.ProjectService
	Snapshots *usecases.SnapshotService
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     ports.CacheService
}
