package usecases

import (
	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/pkg/geospatial"
)

// Distance thresholds for match confidence, in kilometres.
const (
	sameThresholdKm   = 0.5
	nearbyThresholdKm = 5.0
)

// FindNearest returns the place closest to point, skipping places without a
// coordinate. Ties keep the first place seen. Nil when nothing qualifies.
func FindNearest(point domain.GeoPoint, places []domain.PlaceRecord) *domain.NearestMatch {
	var best *domain.NearestMatch
	for _, p := range places {
		if p.Location == nil {
			continue
		}
		d := geospatial.DistanceKm(point.Lat, point.Lng, p.Location.Lat, p.Location.Lng)
		if best == nil || d < best.DistanceKm {
			best = &domain.NearestMatch{Place: p, DistanceKm: d}
		}
	}
	if best != nil {
		best.Confidence = ClassifyDistance(best.DistanceKm)
	}
	return best
}

// ClassifyDistance buckets a nearest-match distance.
func ClassifyDistance(km float64) domain.MatchConfidence {
	switch {
	case km < sameThresholdKm:
		return domain.MatchLikelySame
	case km <= nearbyThresholdKm:
		return domain.MatchNearbyConfirm
	}
	return domain.MatchLikelyDifferent
}
