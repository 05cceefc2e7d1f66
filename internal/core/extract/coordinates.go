// Package extract pulls structured data out of untrusted model output.
//
// Every extractor is a fallible parser: a miss is reported through the
// boolean result, never through an error or a panic.
package extract

import (
	"math"
	"regexp"
	"strconv"

	"github.com/samirrijal/placedesk/internal/core/domain"
)

const number = `([-+]?\d+(?:\.\d+)?)`

var (
	labeledLat = regexp.MustCompile(`(?i)(?:^|[^a-z_])(?:latitude|lat|纬度)["']?\s*[:：=]?\s*["']?` + number)
	labeledLng = regexp.MustCompile(`(?i)(?:^|[^a-z_])(?:longitude|lng|lon|经度)["']?\s*[:：=]?\s*["']?` + number)

	locationLatFirst = regexp.MustCompile(`"location"\s*:\s*\{\s*"lat"\s*:\s*` + number + `\s*,\s*"lng"\s*:\s*` + number)
	locationLngFirst = regexp.MustCompile(`"location"\s*:\s*\{\s*"lng"\s*:\s*` + number + `\s*,\s*"lat"\s*:\s*` + number)

	bracketPair = regexp.MustCompile(`\[\s*` + number + `\s*,\s*` + number + `\s*\]`)
)

// Coordinates finds a latitude/longitude pair in free text. Patterns are
// tried in order: labelled pair, "location" JSON fragment, bracketed array.
func Coordinates(text string) (domain.GeoPoint, bool) {
	for _, try := range []func(string) (domain.GeoPoint, bool){
		labeledPair,
		locationFragment,
		bracketedPair,
	} {
		if p, ok := try(text); ok {
			return p, true
		}
	}
	return domain.GeoPoint{}, false
}

// DisambiguatePair orders two numbers of unknown order into a coordinate.
// The first number is taken as latitude whenever that reading is valid.
func DisambiguatePair(a, b float64) (domain.GeoPoint, bool) {
	switch {
	case math.Abs(a) <= 90 && math.Abs(b) <= 180:
		return domain.GeoPoint{Lat: a, Lng: b}, true
	case math.Abs(b) <= 90 && math.Abs(a) <= 180:
		return domain.GeoPoint{Lat: b, Lng: a}, true
	}
	return domain.GeoPoint{}, false
}

func labeledPair(text string) (domain.GeoPoint, bool) {
	latM := labeledLat.FindStringSubmatch(text)
	lngM := labeledLng.FindStringSubmatch(text)
	if latM == nil || lngM == nil {
		return domain.GeoPoint{}, false
	}
	return parsePoint(latM[1], lngM[1])
}

func locationFragment(text string) (domain.GeoPoint, bool) {
	if m := locationLatFirst.FindStringSubmatch(text); m != nil {
		if p, ok := parsePoint(m[1], m[2]); ok {
			return p, true
		}
	}
	if m := locationLngFirst.FindStringSubmatch(text); m != nil {
		return parsePoint(m[2], m[1])
	}
	return domain.GeoPoint{}, false
}

func bracketedPair(text string) (domain.GeoPoint, bool) {
	for _, m := range bracketPair.FindAllStringSubmatch(text, -1) {
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA != nil || errB != nil {
			continue
		}
		if p, ok := DisambiguatePair(a, b); ok {
			return p, true
		}
	}
	return domain.GeoPoint{}, false
}

func parsePoint(latS, lngS string) (domain.GeoPoint, bool) {
	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil {
		return domain.GeoPoint{}, false
	}
	lng, err := strconv.ParseFloat(lngS, 64)
	if err != nil {
		return domain.GeoPoint{}, false
	}
	p := domain.GeoPoint{Lat: lat, Lng: lng}
	if !p.Valid() {
		return domain.GeoPoint{}, false
	}
	return p, true
}
