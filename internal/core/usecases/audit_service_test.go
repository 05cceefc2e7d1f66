package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/usecases"
)

func auditRepo(p *domain.PlaceRecord) *mockPlaceRepo {
	return &mockPlaceRepo{getByIDFn: func(context.Context, string) (*domain.PlaceRecord, error) {
		return p, nil
	}}
}

func TestAuditService_Statuses(t *testing.T) {
	failing := &mockGeocoder{fn: func(context.Context, domain.GeoPoint, string) (*domain.GeocodeResult, error) {
		return nil, errors.New("503 Service Unavailable")
	}}

	tests := []struct {
		name     string
		place    *domain.PlaceRecord
		geocoder *mockGeocoder
		want     domain.AuditStatus
	}{
		{"match", tokyoTower(), geocodeTo("4 Chome-2-8 Shibakoen, Minato City, Tokyo, 105-0011, Japan"), domain.AuditMatch},
		{"mismatch", tokyoTower(), geocodeTo("Champ de Mars, Paris, France"), domain.AuditMismatch},
		{"empty stored", &domain.PlaceRecord{ID: "p1", Location: pointPtr(1, 1)}, geocodeTo("Somewhere"), domain.AuditMismatch},
		{"no result", tokyoTower(), &mockGeocoder{}, domain.AuditNoResult},
		{"unavailable", tokyoTower(), failing, domain.AuditUnavailable},
		{"skipped", &domain.PlaceRecord{ID: "p1", Address: "x"}, geocodeTo("x"), domain.AuditSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := usecases.NewAuditService(auditRepo(tt.place), tt.geocoder, nil, "en", time.Second)
			report, err := svc.Audit(context.Background(), "p1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Status != tt.want {
				t.Errorf("expected %s, got %s (%s)", tt.want, report.Status, report.Reason)
			}
		})
	}
}

func TestAuditService_MissingPlace(t *testing.T) {
	svc := usecases.NewAuditService(&mockPlaceRepo{}, geocodeTo("x"), nil, "en", 0)
	_, err := svc.Audit(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditService_Publish(t *testing.T) {
	pub := &mockPublisher{}
	svc := usecases.NewAuditService(auditRepo(tokyoTower()), geocodeTo("Tokyo"), pub, "en", 0)

	report, err := svc.Audit(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Publish(context.Background(), report); err != nil {
		t.Fatal(err)
	}
	if len(pub.audits) != 1 || pub.audits[0].Status != domain.AuditMatch {
		t.Errorf("expected one published match report, got %+v", pub.audits)
	}
}
