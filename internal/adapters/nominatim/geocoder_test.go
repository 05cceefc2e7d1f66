package nominatim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
)

func newTestGeocoder(t *testing.T, handler http.HandlerFunc) (*Geocoder, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, DomesticCountry: "cn", Timeout: 200 * time.Millisecond}), &calls
}

func TestReverseGeocode_Domestic(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "39.9163000", r.URL.Query().Get("lat"))
		assert.Equal(t, "zh-CN", r.URL.Query().Get("accept-language"))
		_, _ = w.Write([]byte(`{
			"display_name": "故宫, 景山前街, 东城区, 北京市, 中国",
			"address": {"road": "景山前街", "house_number": "4", "city_district": "东城区",
			            "city": "北京市", "state": "北京市", "country": "中国", "country_code": "cn"}
		}`))
	})

	res, err := g.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 39.9163, Lng: 116.3972}, "zh-CN")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "北京市东城区景山前街4", res.Address)
	assert.Equal(t, "cn", res.CountryCode)
	assert.Equal(t, "nominatim", res.Provider)
}

func TestReverseGeocode_Foreign(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"display_name": "Tour Eiffel, 5, Avenue Anatole France, Paris, France",
			"address": {"house_number": "5", "road": "Avenue Anatole France", "suburb": "Gros-Caillou",
			            "city": "Paris", "state": "Île-de-France", "country": "France", "country_code": "fr"}
		}`))
	})

	res, err := g.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 48.8584, Lng: 2.2945}, "en")
	require.NoError(t, err)
	assert.Equal(t, "5, Avenue Anatole France, Gros-Caillou, Paris, Île-de-France, France", res.Address)
}

func TestReverseGeocode_DisplayNameFallback(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"display_name": "Pacific Ocean", "address": {"country_code": "us"}}`))
	})

	res, err := g.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 0, Lng: -140}, "")
	require.NoError(t, err)
	assert.Equal(t, "Pacific Ocean", res.Address)
}

func TestReverseGeocode_NoResult(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	res, err := g.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 1, Lng: 1}, "")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestReverseGeocode_ErrorObject(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Unable to geocode"}`))
	})

	_, err := g.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 1, Lng: 1}, "")
	assert.ErrorIs(t, err, domain.ErrGeocoderRejected)
}

func TestReverseGeocode_HTTPError(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := g.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 1, Lng: 1}, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrGeocoderRejected)
}

func TestReverseGeocode_Timeout(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})

	_, err := g.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 1, Lng: 1}, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReverseGeocode_RejectsOutOfRangeWithoutRequest(t *testing.T) {
	g, calls := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {})

	for _, p := range []domain.GeoPoint{{Lat: 91, Lng: 0}, {Lat: 0, Lng: -181}} {
		_, err := g.ReverseGeocode(context.Background(), p, "")
		assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]string
		domestic   bool
		want       string
	}{
		{"domestic dedups repeated level", map[string]string{"state": "上海市", "city": "上海市", "district": "浦东新区", "road": "世纪大道"}, true, "上海市浦东新区世纪大道"},
		{"single component", map[string]string{"country": "Japan"}, false, ""},
		{"foreign minimal", map[string]string{"city": "Tokyo", "country": "Japan"}, false, "Tokyo, Japan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAddress(tt.components, tt.domestic))
		})
	}
}

// --- cached geocoder ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type countingGeocoder struct {
	calls int32
	res   *domain.GeocodeResult
	err   error
}

func (g *countingGeocoder) ReverseGeocode(context.Context, domain.GeoPoint, string) (*domain.GeocodeResult, error) {
	atomic.AddInt32(&g.calls, 1)
	time.Sleep(20 * time.Millisecond)
	return g.res, g.err
}

func TestCachedGeocoder_ReadThrough(t *testing.T) {
	next := &countingGeocoder{res: &domain.GeocodeResult{Address: "Tokyo", Provider: "nominatim"}}
	c := NewCached(next, &memCache{data: map[string][]byte{}}, 60)
	p := domain.GeoPoint{Lat: 35.6586, Lng: 139.7454}

	for i := 0; i < 3; i++ {
		res, err := c.ReverseGeocode(context.Background(), p, "en")
		require.NoError(t, err)
		assert.Equal(t, "Tokyo", res.Address)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
}

func TestCachedGeocoder_CachesNoResult(t *testing.T) {
	next := &countingGeocoder{}
	c := NewCached(next, &memCache{data: map[string][]byte{}}, 60)

	for i := 0; i < 2; i++ {
		res, err := c.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 1, Lng: 1}, "")
		require.NoError(t, err)
		assert.Nil(t, res)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
}

func TestCachedGeocoder_DoesNotCacheErrors(t *testing.T) {
	next := &countingGeocoder{err: errors.New("boom")}
	c := NewCached(next, &memCache{data: map[string][]byte{}}, 60)

	for i := 0; i < 2; i++ {
		_, err := c.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 1, Lng: 1}, "")
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
}

func TestCachedGeocoder_SharesConcurrentLookups(t *testing.T) {
	next := &countingGeocoder{res: &domain.GeocodeResult{Address: "Tokyo"}}
	c := NewCached(next, nil, 60)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.ReverseGeocode(context.Background(), domain.GeoPoint{Lat: 35, Lng: 139}, "en")
		}()
	}
	wg.Wait()
	assert.Less(t, atomic.LoadInt32(&next.calls), int32(8))
}
