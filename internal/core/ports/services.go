package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/placedesk/internal/core/domain"
)

// GenerateRequest is a text-generation call: fixed instructions plus the conversation.
type GenerateRequest struct {
	Instructions string
	Turns        []domain.ChatTurn
}

// TextGenerator produces free-form model output.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ReverseGeocoder resolves a coordinate to an address.
// A nil result with a nil error means the service had no answer.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, p domain.GeoPoint, lang string) (*domain.GeocodeResult, error)
}

// FormSource yields the reviewer's unsaved form edits as of the moment it is called.
type FormSource interface {
	Snapshot(ctx context.Context) (domain.FormState, error)
}

// EventPublisher publishes place events to a message broker.
type EventPublisher interface {
	PublishCandidateReady(ctx context.Context, event *domain.CandidateReadyEvent) error
	PublishPlaceUpdated(ctx context.Context, event *domain.PlaceUpdatedEvent) error
	PublishAuditReport(ctx context.Context, report *domain.AuditReport) error
}

// EventSubscriber subscribes to place events from a message broker.
type EventSubscriber interface {
	SubscribePlaceUpdated(ctx context.Context, handler func(ctx context.Context, event *domain.PlaceUpdatedEvent) error) error
}

// ErrCacheMiss is returned by CacheService.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
