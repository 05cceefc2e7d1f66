package usecases_test

import (
	"context"
	"sync"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
)

// --- Mock PlaceRepository ---

type mockPlaceRepo struct {
	getByIDFn    func(ctx context.Context, id string) (*domain.PlaceRecord, error)
	listFn       func(ctx context.Context, offset, limit int) ([]domain.PlaceRecord, int, error)
	findNearbyFn func(ctx context.Context, lat, lng, radius float64, limit int) ([]domain.PlaceRecord, error)
	updateFn     func(ctx context.Context, c domain.UpdateCandidate) (*domain.PlaceRecord, error)
	deleteFn     func(ctx context.Context, id string) error
}

func (m *mockPlaceRepo) UpsertBatch(ctx context.Context, places []domain.PlaceRecord) error {
	return nil
}

func (m *mockPlaceRepo) GetByID(ctx context.Context, id string) (*domain.PlaceRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPlaceRepo) List(ctx context.Context, offset, limit int) ([]domain.PlaceRecord, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockPlaceRepo) FindNearby(ctx context.Context, lat, lng, radius float64, limit int) ([]domain.PlaceRecord, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, lat, lng, radius, limit)
	}
	return nil, nil
}

func (m *mockPlaceRepo) Update(ctx context.Context, c domain.UpdateCandidate) (*domain.PlaceRecord, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, c)
	}
	return &domain.PlaceRecord{ID: c.PlaceID}, nil
}

func (m *mockPlaceRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// --- Mock ReverseGeocoder ---

type mockGeocoder struct {
	fn    func(ctx context.Context, p domain.GeoPoint, lang string) (*domain.GeocodeResult, error)
	calls int
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, p domain.GeoPoint, lang string) (*domain.GeocodeResult, error) {
	m.calls++
	if m.fn != nil {
		return m.fn(ctx, p, lang)
	}
	return nil, nil
}

func geocodeTo(address string) *mockGeocoder {
	return &mockGeocoder{fn: func(context.Context, domain.GeoPoint, string) (*domain.GeocodeResult, error) {
		return &domain.GeocodeResult{Address: address, Provider: "test"}, nil
	}}
}

// --- Mock TextGenerator ---

type mockGenerator struct {
	fn func(ctx context.Context, req ports.GenerateRequest) (string, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	return m.fn(ctx, req)
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu         sync.Mutex
	candidates []*domain.CandidateReadyEvent
	updates    []*domain.PlaceUpdatedEvent
	audits     []*domain.AuditReport
}

func (m *mockPublisher) PublishCandidateReady(ctx context.Context, event *domain.CandidateReadyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, event)
	return nil
}

func (m *mockPublisher) PublishPlaceUpdated(ctx context.Context, event *domain.PlaceUpdatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, event)
	return nil
}

func (m *mockPublisher) PublishAuditReport(ctx context.Context, report *domain.AuditReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, report)
	return nil
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- FormSource ---

type formFunc func(ctx context.Context) (domain.FormState, error)

func (f formFunc) Snapshot(ctx context.Context) (domain.FormState, error) { return f(ctx) }

// --- helpers ---

func strPtr(s string) *string { return &s }

func pointPtr(lat, lng float64) *domain.GeoPoint { return &domain.GeoPoint{Lat: lat, Lng: lng} }

func hasAnnotation(annotations []domain.Annotation, kind domain.AnnotationKind, field string) bool {
	for _, a := range annotations {
		if a.Kind == kind && a.Field == field {
			return true
		}
	}
	return false
}
