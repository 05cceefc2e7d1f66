package usecases

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/extract"
)

// Coordinate sources reported by Normalize.
const (
	CoordinateFromModel = "model"
	CoordinateFromPrior = "prior"
)

// Prior is a fallback source of data already known about a place.
type Prior struct {
	Label  string
	Values map[string]any
}

// Normalized is a reconciled candidate with its provenance notes.
type Normalized struct {
	Candidate        domain.UpdateCandidate
	Annotations      []domain.Annotation
	CoordinateSource string
}

func (n *Normalized) note(kind domain.AnnotationKind, field, format string, args ...any) {
	n.Annotations = append(n.Annotations, domain.Annotation{
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// Normalize reconciles a raw model record, falling back to priorMetadata for
// the coordinate when the model did not provide one.
func Normalize(raw domain.RawCandidate, priorMetadata map[string]any) Normalized {
	return NormalizeWithPriors(raw, Prior{Label: "prior metadata", Values: priorMetadata})
}

// NormalizeWithPriors reconciles raw against an ordered list of fallbacks.
// Only keys present in raw appear in the candidate, with one exception: a
// coordinate missing from raw is carried over from the first prior that has one.
func NormalizeWithPriors(raw domain.RawCandidate, priors ...Prior) Normalized {
	var n Normalized
	seen := make(map[string]bool)

	for _, f := range textFields {
		key, v, ok := lookup(raw, f.keys)
		markSeen(seen, f.keys)
		if !ok {
			continue
		}
		s := asString(v)
		f.set(&n.Candidate, s)
		n.note(domain.AnnotationReplaced, f.name, "%s set from model output", f.name)
		if key != f.name {
			n.note(domain.AnnotationInfo, f.name, "read %s from key %q", f.name, key)
		}
	}

	if v, ok := raw["address"]; ok {
		addr := asString(v)
		n.Candidate.Address = &addr
		n.note(domain.AnnotationReplaced, "address", "address replaced by model output; reverse geocoding will not override it")
	}
	seen["address"] = true

	if v, ok := raw["category"]; ok {
		if c, valid := domain.ParseCategory(asString(v)); valid {
			n.Candidate.Category = &c
			n.note(domain.AnnotationReplaced, "category", "category set to %s", c)
		} else {
			n.note(domain.AnnotationWarning, "category", "ignored unknown category %q", asString(v))
		}
	}
	seen["category"] = true

	if v, ok := raw["rating"]; ok {
		r, valid := asFloat(v)
		switch {
		case !valid:
			n.note(domain.AnnotationWarning, "rating", "ignored non-numeric rating %v", v)
		case r < 0 || r > 5:
			n.note(domain.AnnotationWarning, "rating", "ignored rating %.2f outside 0-5", r)
		default:
			n.Candidate.Rating = &r
			n.note(domain.AnnotationReplaced, "rating", "rating set to %.1f", r)
		}
	}
	seen["rating"] = true

	if key, v, ok := lookup(raw, []string{"cityId", "city_id"}); ok {
		city := ""
		if v != nil {
			city = asString(v)
		}
		n.Candidate.CityID = &city
		if city == "" {
			n.note(domain.AnnotationReplaced, "cityId", "city reference cleared by model output")
		} else {
			n.note(domain.AnnotationReplaced, "cityId", "city reference set from %s", key)
		}
	}
	markSeen(seen, []string{"cityId", "city_id"})

	n.Candidate.Metadata = replaceObject(&n, raw, "metadata", []string{"metadata"})
	n.Candidate.PhysicalMetadata = replaceObject(&n, raw, "physicalMetadata", []string{"physicalMetadata", "physical_metadata"})
	markSeen(seen, []string{"metadata", "physicalMetadata", "physical_metadata"})

	resolveCoordinate(&n, raw, priors)
	markSeen(seen, []string{"location", "lat", "lng"})

	var ignored []string
	for key := range raw {
		if seen[key] {
			continue
		}
		if readOnlyKeys[key] {
			n.note(domain.AnnotationInfo, key, "ignored read-only field %s", key)
			continue
		}
		ignored = append(ignored, key)
	}
	if len(ignored) > 0 {
		sort.Strings(ignored)
		n.note(domain.AnnotationInfo, "", "ignored unknown fields: %s", strings.Join(ignored, ", "))
	}
	return n
}

// resolveCoordinate applies the precedence explicit model value, then priors
// in order, then nothing. A model coordinate that is present but malformed is
// rejected and the field is omitted; priors only stand in for an absent one.
func resolveCoordinate(n *Normalized, raw domain.RawCandidate, priors []Prior) {
	p, present, ok := explicitCoordinate(n, raw)
	if ok {
		n.Candidate.Location = &p
		n.CoordinateSource = CoordinateFromModel
		n.note(domain.AnnotationReplaced, "location", "coordinate (%.6f, %.6f) taken from model output", p.Lat, p.Lng)
		return
	}
	if present {
		return
	}
	for _, prior := range priors {
		if p, ok := CoordinateFromMetadata(prior.Values); ok {
			n.Candidate.Location = &p
			n.CoordinateSource = CoordinateFromPrior
			n.note(domain.AnnotationPreserved, "location", "model gave no coordinate; kept (%.6f, %.6f) from %s", p.Lat, p.Lng, prior.Label)
			return
		}
	}
	n.note(domain.AnnotationInfo, "location", "no coordinate in model output or prior data")
}

// explicitCoordinate reads the model's own coordinate. present reports that
// the model supplied one at all, valid or not.
func explicitCoordinate(n *Normalized, raw domain.RawCandidate) (p domain.GeoPoint, present, ok bool) {
	var latV, lngV any
	var hasLat, hasLng bool
	if loc, isMap := raw["location"].(map[string]any); isMap {
		latV, hasLat = loc["lat"]
		lngV, hasLng = loc["lng"]
	}
	if !hasLat && !hasLng {
		latV, hasLat = raw["lat"]
		lngV, hasLng = raw["lng"]
	}
	if !hasLat && !hasLng {
		return domain.GeoPoint{}, false, false
	}
	if hasLat != hasLng {
		n.note(domain.AnnotationWarning, "location", "rejected incomplete coordinate from model output; location omitted")
		return domain.GeoPoint{}, true, false
	}
	lat, okLat := asFloat(latV)
	lng, okLng := asFloat(lngV)
	if !okLat || !okLng {
		n.note(domain.AnnotationWarning, "location", "rejected non-numeric coordinate from model output; location omitted")
		return domain.GeoPoint{}, true, false
	}
	p = domain.GeoPoint{Lat: lat, Lng: lng}
	if !p.Valid() {
		n.note(domain.AnnotationWarning, "location", "rejected out-of-range coordinate (%g, %g) from model output; location omitted", lat, lng)
		return domain.GeoPoint{}, true, false
	}
	return p, true, true
}

// CoordinateFromMetadata finds a coordinate in a structured-data payload.
// It understands lat/lng, location.lat/lng, geo.latitude/longitude and a
// coordinates pair or object.
func CoordinateFromMetadata(m map[string]any) (domain.GeoPoint, bool) {
	if m == nil {
		return domain.GeoPoint{}, false
	}
	if p, ok := pointFrom(m, "lat", "lng"); ok {
		return p, true
	}
	if loc, ok := m["location"].(map[string]any); ok {
		if p, ok := pointFrom(loc, "lat", "lng"); ok {
			return p, true
		}
	}
	if geo, ok := m["geo"].(map[string]any); ok {
		if p, ok := pointFrom(geo, "latitude", "longitude"); ok {
			return p, true
		}
	}
	switch c := m["coordinates"].(type) {
	case []any:
		if len(c) == 2 {
			a, okA := asFloat(c[0])
			b, okB := asFloat(c[1])
			if okA && okB {
				return extract.DisambiguatePair(a, b)
			}
		}
	case map[string]any:
		return pointFrom(c, "lat", "lng")
	}
	return domain.GeoPoint{}, false
}

func pointFrom(m map[string]any, latKey, lngKey string) (domain.GeoPoint, bool) {
	lat, okLat := asFloat(m[latKey])
	lng, okLng := asFloat(m[lngKey])
	if !okLat || !okLng {
		return domain.GeoPoint{}, false
	}
	p := domain.GeoPoint{Lat: lat, Lng: lng}
	return p, p.Valid()
}

func replaceObject(n *Normalized, raw domain.RawCandidate, field string, keys []string) map[string]any {
	_, v, ok := lookup(raw, keys)
	if !ok {
		return nil
	}
	switch obj := v.(type) {
	case map[string]any:
		n.note(domain.AnnotationReplaced, field, "%s replaced as a whole (%d keys)", field, len(obj))
		return maps.Clone(obj)
	case nil:
		n.note(domain.AnnotationReplaced, field, "%s cleared by model output", field)
		return map[string]any{}
	}
	n.note(domain.AnnotationWarning, field, "ignored %s that is not an object", field)
	return nil
}

type textField struct {
	name string
	keys []string
	set  func(c *domain.UpdateCandidate, v string)
}

var textFields = []textField{
	{"nameCN", []string{"nameCN", "nameCn", "name_cn"}, func(c *domain.UpdateCandidate, v string) { c.NameCN = &v }},
	{"nameEN", []string{"nameEN", "nameEn", "name_en"}, func(c *domain.UpdateCandidate, v string) { c.NameEN = &v }},
	{"description", []string{"description"}, func(c *domain.UpdateCandidate, v string) { c.Description = &v }},
	{"externalPlaceId", []string{"externalPlaceId", "googlePlaceId", "external_place_id"}, func(c *domain.UpdateCandidate, v string) { c.ExternalPlaceID = &v }},
}

var readOnlyKeys = map[string]bool{
	"id":         true,
	"placeId":    true,
	"createdAt":  true,
	"updatedAt":  true,
	"created_at": true,
	"updated_at": true,
}

// lookup returns the first of keys present in raw.
func lookup(raw domain.RawCandidate, keys []string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return k, v, true
		}
	}
	return "", nil, false
}

func markSeen(seen map[string]bool, keys []string) {
	for _, k := range keys {
		seen[k] = true
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
