package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/placedesk/internal/pkg/metrics"
)

// Request deadlines. Assist waits on the model, so it gets the longest.
const (
	readTimeout   = 15 * time.Second
	assistTimeout = 45 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/places", timeout.NewWithContext(ListPlacesHandler(deps), readTimeout))
	v1.Get("/places/nearby", timeout.NewWithContext(NearbyPlacesHandler(deps), readTimeout))
	v1.Get("/places/:id", timeout.NewWithContext(GetPlaceHandler(deps), readTimeout))
	v1.Delete("/places/:id", timeout.NewWithContext(DeletePlaceHandler(deps), readTimeout))
	v1.Get("/places/:id/draft", timeout.NewWithContext(GetDraftHandler(deps), readTimeout))
	v1.Put("/places/:id/draft", timeout.NewWithContext(PutDraftHandler(deps), readTimeout))
	v1.Post("/places/:id/assist", timeout.NewWithContext(AssistHandler(deps), assistTimeout))
	v1.Post("/places/:id/reconcile", timeout.NewWithContext(ReconcileHandler(deps), readTimeout))
	v1.Post("/places/:id/confirm", timeout.NewWithContext(ConfirmHandler(deps), readTimeout))
	v1.Post("/places/:id/audit", timeout.NewWithContext(AuditPlaceHandler(deps), readTimeout))
	v1.Get("/geocode/reverse", timeout.NewWithContext(ReverseGeocodeHandler(deps), readTimeout))

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), readTimeout))

	SetupDocs(app, "api/openapi.yaml")

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
