package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
	"github.com/samirrijal/placedesk/internal/pkg/metrics"
)

// AuditService checks stored addresses against their coordinates.
type AuditService struct {
	places    ports.PlaceRepository
	geocoder  ports.ReverseGeocoder
	publisher ports.EventPublisher
	language  string
	timeout   time.Duration
}

// NewAuditService creates a new AuditService. publisher may be nil.
func NewAuditService(
	places ports.PlaceRepository,
	geocoder ports.ReverseGeocoder,
	publisher ports.EventPublisher,
	language string,
	timeout time.Duration,
) *AuditService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuditService{
		places:    places,
		geocoder:  geocoder,
		publisher: publisher,
		language:  language,
		timeout:   timeout,
	}
}

// Audit reverse-geocodes the place's stored coordinate and compares the
// result with its stored address. Geocoder failures produce an
// "unavailable" report rather than an error; only a failed lookup of the
// place itself is returned as an error.
func (s *AuditService) Audit(ctx context.Context, placeID string) (*domain.AuditReport, error) {
	place, err := s.places.GetByID(ctx, placeID)
	if err != nil {
		return nil, fmt.Errorf("get place %s: %w", placeID, err)
	}

	report := &domain.AuditReport{
		PlaceID:       placeID,
		StoredAddress: place.Address,
		CheckedAt:     time.Now().UTC(),
	}

	switch {
	case place.Location == nil:
		report.Status = domain.AuditSkipped
		report.Reason = "place has no coordinate"
	case s.geocoder == nil:
		report.Status = domain.AuditUnavailable
		report.Reason = "reverse geocoding not configured"
	default:
		s.compare(ctx, *place.Location, report)
	}

	metrics.AuditsCompleted.WithLabelValues(string(report.Status)).Inc()
	return report, nil
}

// Publish sends a finished report to the event bus, if one is configured.
func (s *AuditService) Publish(ctx context.Context, report *domain.AuditReport) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishAuditReport(ctx, report)
}

func (s *AuditService) compare(ctx context.Context, p domain.GeoPoint, report *domain.AuditReport) {
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.geocoder.ReverseGeocode(gctx, p, s.language)
	switch {
	case err != nil:
		report.Status = domain.AuditUnavailable
		report.Reason = err.Error()
		return
	case result == nil || result.Address == "":
		report.Status = domain.AuditNoResult
		report.Reason = "no address for this coordinate"
		return
	}

	report.GeocodedAddress = result.Address
	switch {
	case report.StoredAddress == "":
		report.Status = domain.AuditMismatch
		report.Reason = "stored address is empty"
	case AddressesMatch(report.StoredAddress, result.Address):
		report.Status = domain.AuditMatch
	default:
		report.Status = domain.AuditMismatch
		report.Reason = "stored address differs from the reverse-geocoded address"
	}
}
