package ports

import (
	"context"

	"github.com/samirrijal/placedesk/internal/core/domain"
)

// PlaceRepository reads and patches places.
type PlaceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.PlaceRecord, error)
	// List returns one page of places ordered by name and the total count.
	List(ctx context.Context, offset, limit int) ([]domain.PlaceRecord, int, error)
	FindNearby(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]domain.PlaceRecord, error)
	// Update applies the present fields of c in a single statement.
	Update(ctx context.Context, c domain.UpdateCandidate) (*domain.PlaceRecord, error)
	Delete(ctx context.Context, id string) error
	UpsertBatch(ctx context.Context, places []domain.PlaceRecord) error
}
