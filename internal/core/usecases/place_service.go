package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
	"github.com/samirrijal/placedesk/internal/pkg/metrics"
)

// PlaceService handles place reads and confirmed writes.
type PlaceService struct {
	places ports.PlaceRepository
	cache  ports.CacheService
}

// NewPlaceService creates a new PlaceService.
func NewPlaceService(places ports.PlaceRepository, cache ports.CacheService) *PlaceService {
	return &PlaceService{places: places, cache: cache}
}

// PlacePage is one page of places with the total count.
type PlacePage struct {
	Places []domain.PlaceRecord `json:"places"`
	Total  int                  `json:"total"`
}

// GetByID returns a single place.
func (s *PlaceService) GetByID(ctx context.Context, id string) (*domain.PlaceRecord, error) {
	cacheKey := "places:id:" + id
	var cached domain.PlaceRecord
	if s.cacheGet(ctx, "place_by_id", cacheKey, &cached) {
		return &cached, nil
	}

	place, err := s.places.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, cacheKey, place, 600) // 10 min for single place
	return place, nil
}

// List returns one page of places.
func (s *PlaceService) List(ctx context.Context, offset, limit int) ([]domain.PlaceRecord, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("places:list:%s:%d:%d", s.generation(ctx), offset, limit)
	var cached PlacePage
	if s.cacheGet(ctx, "place_list", cacheKey, &cached) {
		return cached.Places, cached.Total, nil
	}

	places, total, err := s.places.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	s.cacheSet(ctx, cacheKey, PlacePage{Places: places, Total: total}, 30)
	return places, total, nil
}

// FindNearby returns places within radiusMeters of the given point.
func (s *PlaceService) FindNearby(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]domain.PlaceRecord, error) {
	if !(domain.GeoPoint{Lat: lat, Lng: lng}).Valid() {
		return nil, domain.ErrInvalidCoordinate
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("places:nearby:%s:%.4f:%.4f:%.0f:%d", s.generation(ctx), lat, lng, radiusMeters, limit)
	var cached []domain.PlaceRecord
	if s.cacheGet(ctx, "place_nearby", cacheKey, &cached) {
		return cached, nil
	}

	places, err := s.places.FindNearby(ctx, lat, lng, radiusMeters, limit)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, cacheKey, places, 300)
	return places, nil
}

// ApplyCandidate writes a confirmed candidate as a single partial update.
func (s *PlaceService) ApplyCandidate(ctx context.Context, c domain.UpdateCandidate) (*domain.PlaceRecord, error) {
	if c.PlaceID == "" {
		return nil, fmt.Errorf("candidate has no place id")
	}
	if c.IsEmpty() {
		return nil, domain.ErrEmptyCandidate
	}
	if c.Location != nil && !c.Location.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}

	updated, err := s.places.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("update place %s: %w", c.PlaceID, err)
	}
	s.invalidate(ctx, c.PlaceID)
	return updated, nil
}

// Delete removes a place.
func (s *PlaceService) Delete(ctx context.Context, id string) error {
	if err := s.places.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// generationKey holds the token embedded in every list and nearby key.
// Rotating it orphans all of them at once; they then expire by TTL.
const generationKey = "places:gen"

func (s *PlaceService) generation(ctx context.Context) string {
	if s.cache == nil {
		return "0"
	}
	data, err := s.cache.Get(ctx, generationKey)
	if err != nil || len(data) == 0 {
		return "0"
	}
	return string(data)
}

// invalidate drops the place itself and every cached list or nearby result
// that may contain it.
func (s *PlaceService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, "places:id:"+id)
	_ = s.cache.Set(ctx, generationKey, []byte(uuid.NewString()), 86400)
}

func (s *PlaceService) cacheGet(ctx context.Context, op, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err == nil && json.Unmarshal(data, dst) == nil {
		metrics.CacheHits.WithLabelValues(op).Inc()
		return true
	}
	metrics.CacheMisses.WithLabelValues(op).Inc()
	return false
}

func (s *PlaceService) cacheSet(ctx context.Context, key string, v any, ttlSeconds int) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_ = s.cache.Set(ctx, key, data, ttlSeconds)
	}
}
