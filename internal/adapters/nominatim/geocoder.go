// Package nominatim implements reverse geocoding against an OpenStreetMap
// Nominatim server.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/pkg/metrics"
	"github.com/samirrijal/placedesk/internal/pkg/telemetry"
)

const provider = "nominatim"

// Config configures a Geocoder.
type Config struct {
	BaseURL         string
	UserAgent       string
	DomesticCountry string // ISO 3166-1 alpha-2, lower case
	Timeout         time.Duration
}

// Geocoder implements ports.ReverseGeocoder.
type Geocoder struct {
	client   *fasthttp.Client
	baseURL  string
	agent    string
	domestic string
	timeout  time.Duration
}

// New creates a Geocoder.
func New(cfg Config) *Geocoder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "placedesk/1.0"
	}
	return &Geocoder{
		client: &fasthttp.Client{
			Name:                cfg.UserAgent,
			MaxConnsPerHost:     8,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		agent:    cfg.UserAgent,
		domestic: strings.ToLower(cfg.DomesticCountry),
		timeout:  cfg.Timeout,
	}
}

type reverseResponse struct {
	Error       string            `json:"error"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// ReverseGeocode resolves p to a formatted address. Out-of-range input fails
// with domain.ErrInvalidCoordinate before any request is made. A nil result
// with a nil error means the service had nothing for this coordinate; an
// explicit error object in the response is domain.ErrGeocoderRejected.
func (g *Geocoder) ReverseGeocode(ctx context.Context, p domain.GeoPoint, lang string) (res *domain.GeocodeResult, err error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: (%g, %g)", domain.ErrInvalidCoordinate, p.Lat, p.Lng)
	}

	ctx, span := otel.Tracer("github.com/samirrijal/placedesk/internal/adapters/nominatim").Start(ctx, "nominatim.reverse")
	start := time.Now()
	defer func() {
		outcome := outcomeOf(res, err)
		span.SetAttributes(attribute.String(telemetry.AttrGeocodeOutcome, outcome))
		span.End()
		metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
		metrics.GeocodeDuration.Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.baseURL + "/reverse")
	args := req.URI().QueryArgs()
	args.Set("format", "jsonv2")
	args.Set("addressdetails", "1")
	args.Set("zoom", "18")
	args.Set("lat", strconv.FormatFloat(p.Lat, 'f', 7, 64))
	args.Set("lon", strconv.FormatFloat(p.Lng, 'f', 7, 64))
	if lang != "" {
		args.Set("accept-language", lang)
		req.Header.Set(fasthttp.HeaderAcceptLanguage, lang)
	}
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetUserAgent(g.agent)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline := time.Now().Add(g.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := g.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("nominatim: %w", context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("nominatim request: %w", err)
	}

	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return nil, fmt.Errorf("nominatim: unexpected status %d", status)
	}

	var body reverseResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrGeocoderRejected, body.Error)
	}

	country := strings.ToLower(body.Address["country_code"])
	address := FormatAddress(body.Address, country == g.domestic)
	if address == "" {
		address = body.DisplayName
	}
	if address == "" {
		return nil, nil
	}
	return &domain.GeocodeResult{
		Address:     address,
		DisplayName: body.DisplayName,
		CountryCode: country,
		Provider:    provider,
	}, nil
}

// Administrative levels, largest first, for domestic addresses.
var bigEndian = [][]string{
	{"province", "state"},
	{"city", "municipality"},
	{"city_district", "district", "county"},
	{"town", "suburb", "village", "township"},
	{"road", "street", "pedestrian"},
	{"house_number"},
}

// Address components, smallest first, for foreign addresses.
var littleEndian = [][]string{
	{"house_number"},
	{"road", "street", "pedestrian"},
	{"neighbourhood", "suburb", "quarter"},
	{"city", "town", "village", "municipality"},
	{"state", "province", "region"},
	{"country"},
}

// FormatAddress builds a locale-appropriate address from Nominatim address
// components: domestic addresses are concatenated largest-first without
// separators, others smallest-first joined by ", ". It returns "" when
// fewer than two components are available.
func FormatAddress(components map[string]string, domestic bool) string {
	order, sep := littleEndian, ", "
	if domestic {
		order, sep = bigEndian, ""
	}

	var parts []string
	for _, keys := range order {
		v := first(components, keys)
		if v == "" || (len(parts) > 0 && parts[len(parts)-1] == v) {
			continue
		}
		parts = append(parts, v)
	}
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts, sep)
}

func first(m map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

func outcomeOf(res *domain.GeocodeResult, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrInvalidCoordinate):
		return "invalid"
	case errors.Is(err, domain.ErrGeocoderRejected):
		return "rejected"
	case err != nil:
		return "error"
	case res == nil:
		return "no_result"
	}
	return "ok"
}
