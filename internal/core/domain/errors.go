package domain

import "errors"

var (
	// ErrNotFound is returned when a place does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCoordinate is returned for latitude/longitude outside range.
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	// ErrGeocoderRejected is returned when the geocoding service answers with an error object.
	ErrGeocoderRejected = errors.New("geocoder rejected request")
	// ErrEmptyCandidate is returned when confirming a candidate that changes nothing.
	ErrEmptyCandidate = errors.New("candidate has no fields")
)
