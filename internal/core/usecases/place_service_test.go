package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/usecases"
)

func TestPlaceService_GetByID_Cached(t *testing.T) {
	calls := 0
	repo := &mockPlaceRepo{getByIDFn: func(_ context.Context, id string) (*domain.PlaceRecord, error) {
		calls++
		return &domain.PlaceRecord{ID: id, NameEN: "Tokyo Tower"}, nil
	}}
	svc := usecases.NewPlaceService(repo, newMemCache())

	for i := 0; i < 3; i++ {
		p, err := svc.GetByID(context.Background(), "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.NameEN != "Tokyo Tower" {
			t.Errorf("expected Tokyo Tower, got %s", p.NameEN)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 repo call, got %d", calls)
	}
}

func TestPlaceService_GetByID_NotFound(t *testing.T) {
	svc := usecases.NewPlaceService(&mockPlaceRepo{}, nil)
	_, err := svc.GetByID(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPlaceService_List_ClampLimit(t *testing.T) {
	repo := &mockPlaceRepo{listFn: func(_ context.Context, offset, limit int) ([]domain.PlaceRecord, int, error) {
		if offset != 0 {
			t.Errorf("expected offset clamped to 0, got %d", offset)
		}
		if limit != 50 {
			t.Errorf("expected limit clamped to 50, got %d", limit)
		}
		return nil, 0, nil
	}}
	svc := usecases.NewPlaceService(repo, nil)
	_, _, _ = svc.List(context.Background(), -5, 999)
}

func TestPlaceService_FindNearby_InvalidPoint(t *testing.T) {
	svc := usecases.NewPlaceService(&mockPlaceRepo{}, nil)
	_, err := svc.FindNearby(context.Background(), 91, 0, 500, 10)
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestPlaceService_ApplyCandidate_InvalidatesCache(t *testing.T) {
	name := "Old"
	repo := &mockPlaceRepo{
		getByIDFn: func(_ context.Context, id string) (*domain.PlaceRecord, error) {
			return &domain.PlaceRecord{ID: id, NameEN: name}, nil
		},
		updateFn: func(_ context.Context, c domain.UpdateCandidate) (*domain.PlaceRecord, error) {
			name = *c.NameEN
			return &domain.PlaceRecord{ID: c.PlaceID, NameEN: name}, nil
		},
	}
	svc := usecases.NewPlaceService(repo, newMemCache())
	ctx := context.Background()

	if _, err := svc.GetByID(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ApplyCandidate(ctx, domain.UpdateCandidate{PlaceID: "p1", NameEN: strPtr("New")}); err != nil {
		t.Fatal(err)
	}
	p, err := svc.GetByID(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.NameEN != "New" {
		t.Errorf("expected fresh read after update, got %s", p.NameEN)
	}
}

func TestPlaceService_WriteInvalidatesListAndNearby(t *testing.T) {
	loc := domain.GeoPoint{Lat: 35.6586, Lng: 139.7454}
	listCalls, nearbyCalls := 0, 0
	repo := &mockPlaceRepo{
		listFn: func(context.Context, int, int) ([]domain.PlaceRecord, int, error) {
			listCalls++
			return []domain.PlaceRecord{{ID: "p1", Location: &loc}}, 1, nil
		},
		findNearbyFn: func(context.Context, float64, float64, float64, int) ([]domain.PlaceRecord, error) {
			nearbyCalls++
			return []domain.PlaceRecord{{ID: "p1", Location: &loc}}, nil
		},
		updateFn: func(_ context.Context, c domain.UpdateCandidate) (*domain.PlaceRecord, error) {
			loc = *c.Location
			return &domain.PlaceRecord{ID: c.PlaceID, Location: c.Location}, nil
		},
	}
	svc := usecases.NewPlaceService(repo, newMemCache())
	ctx := context.Background()

	read := func() (domain.GeoPoint, domain.GeoPoint) {
		page, _, err := svc.List(ctx, 0, 50)
		if err != nil {
			t.Fatal(err)
		}
		near, err := svc.FindNearby(ctx, 35.6586, 139.7454, 500, 10)
		if err != nil {
			t.Fatal(err)
		}
		return *page[0].Location, *near[0].Location
	}

	read()
	read()
	if listCalls != 1 || nearbyCalls != 1 {
		t.Fatalf("expected cached reads, got list=%d nearby=%d", listCalls, nearbyCalls)
	}

	moved := domain.GeoPoint{Lat: 35.66, Lng: 139.75}
	if _, err := svc.ApplyCandidate(ctx, domain.UpdateCandidate{PlaceID: "p1", Location: &moved}); err != nil {
		t.Fatal(err)
	}
	listed, nearby := read()
	if listed != moved || nearby != moved {
		t.Errorf("expected moved coordinate after confirm, got list=%v nearby=%v", listed, nearby)
	}
	if listCalls != 2 || nearbyCalls != 2 {
		t.Errorf("expected one fresh read each, got list=%d nearby=%d", listCalls, nearbyCalls)
	}

	if err := svc.Delete(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	read()
	if listCalls != 3 || nearbyCalls != 3 {
		t.Errorf("expected delete to drop cached pages, got list=%d nearby=%d", listCalls, nearbyCalls)
	}
}

func TestPlaceService_ApplyCandidate_Validation(t *testing.T) {
	svc := usecases.NewPlaceService(&mockPlaceRepo{}, nil)
	ctx := context.Background()

	if _, err := svc.ApplyCandidate(ctx, domain.UpdateCandidate{NameEN: strPtr("x")}); err == nil {
		t.Error("expected error for missing place id")
	}
	if _, err := svc.ApplyCandidate(ctx, domain.UpdateCandidate{PlaceID: "p1"}); !errors.Is(err, domain.ErrEmptyCandidate) {
		t.Errorf("expected ErrEmptyCandidate, got %v", err)
	}
	bad := domain.UpdateCandidate{PlaceID: "p1", Location: pointPtr(0, 200)}
	if _, err := svc.ApplyCandidate(ctx, bad); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}
