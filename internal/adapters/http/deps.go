package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/placedesk/internal/adapters/postgres"
	"github.com/samirrijal/placedesk/internal/adapters/valkey"
	"github.com/samirrijal/placedesk/internal/core/ports"
	"github.com/samirrijal/placedesk/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Places     *usecases.PlaceService
	Drafts     *usecases.DraftService
	Reconciler *usecases.ReconcileService
	Audits     *usecases.AuditService
	Geocoder   ports.ReverseGeocoder
	Language   string // default accept-language for reverse geocoding
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache
}
