package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
	"github.com/samirrijal/placedesk/internal/pkg/metrics"
)

// CachedGeocoder is a read-through cache in front of another geocoder.
// Concurrent lookups of the same key share one upstream call.
type CachedGeocoder struct {
	next  ports.ReverseGeocoder
	cache ports.CacheService
	ttl   int
	group singleflight.Group
}

// NewCached wraps next. ttlSeconds applies to answers and to "no result".
func NewCached(next ports.ReverseGeocoder, cache ports.CacheService, ttlSeconds int) *CachedGeocoder {
	if ttlSeconds <= 0 {
		ttlSeconds = 86400
	}
	return &CachedGeocoder{next: next, cache: cache, ttl: ttlSeconds}
}

// cacheKey rounds to 5 decimals (about 1 m).
func cacheKey(p domain.GeoPoint, lang string) string {
	return fmt.Sprintf("geocode:%.5f:%.5f:%s", p.Lat, p.Lng, lang)
}

// ReverseGeocode implements ports.ReverseGeocoder. Errors are never cached.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, p domain.GeoPoint, lang string) (*domain.GeocodeResult, error) {
	if !p.Valid() {
		return c.next.ReverseGeocode(ctx, p, lang)
	}
	key := cacheKey(p, lang)

	if c.cache != nil {
		if data, err := c.cache.Get(ctx, key); err == nil {
			var cached *domain.GeocodeResult
			if json.Unmarshal(data, &cached) == nil {
				metrics.CacheHits.WithLabelValues("geocode").Inc()
				return cached, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := c.next.ReverseGeocode(ctx, p, lang)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			data, _ := json.Marshal(res) // nil marshals to "null"
			if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
				slog.WarnContext(ctx, "geocode cache write failed", "key", key, "error", err)
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.GeocodeResult), nil
}
