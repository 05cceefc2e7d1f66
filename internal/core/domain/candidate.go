package domain

import (
	"encoding/json"
	"sort"
)

// RawCandidate is a loosely typed record extracted from model output.
type RawCandidate map[string]any

// Has reports whether key is explicitly present, whatever its value.
func (r RawCandidate) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// UpdateCandidate is a sparse patch proposed for a PlaceRecord.
// A nil field means "leave unchanged". Location carries lat and lng together.
type UpdateCandidate struct {
	PlaceID          string
	NameCN           *string
	NameEN           *string
	Category         *Category
	Address          *string
	Description      *string
	Rating           *float64
	ExternalPlaceID  *string
	CityID           *string // pointer to "" clears the city reference
	Location         *GeoPoint
	Metadata         map[string]any
	PhysicalMetadata map[string]any
}

// Patch returns the present fields keyed by their wire names.
func (c UpdateCandidate) Patch() map[string]any {
	m := make(map[string]any)
	if c.NameCN != nil {
		m["nameCN"] = *c.NameCN
	}
	if c.NameEN != nil {
		m["nameEN"] = *c.NameEN
	}
	if c.Category != nil {
		m["category"] = *c.Category
	}
	if c.Address != nil {
		m["address"] = *c.Address
	}
	if c.Description != nil {
		m["description"] = *c.Description
	}
	if c.Rating != nil {
		m["rating"] = *c.Rating
	}
	if c.ExternalPlaceID != nil {
		m["externalPlaceId"] = *c.ExternalPlaceID
	}
	if c.CityID != nil {
		if *c.CityID == "" {
			m["cityId"] = nil
		} else {
			m["cityId"] = *c.CityID
		}
	}
	if c.Location != nil {
		m["location"] = *c.Location
	}
	if c.Metadata != nil {
		m["metadata"] = c.Metadata
	}
	if c.PhysicalMetadata != nil {
		m["physicalMetadata"] = c.PhysicalMetadata
	}
	return m
}

// Fields lists the wire names of the present fields in sorted order.
func (c UpdateCandidate) Fields() []string {
	patch := c.Patch()
	fields := make([]string, 0, len(patch))
	for k := range patch {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// IsEmpty reports whether the candidate changes nothing.
func (c UpdateCandidate) IsEmpty() bool {
	return len(c.Patch()) == 0
}

// MarshalJSON renders the candidate as its sparse patch plus the place ID.
func (c UpdateCandidate) MarshalJSON() ([]byte, error) {
	m := c.Patch()
	m["placeId"] = c.PlaceID
	return json.Marshal(m)
}

// AnnotationKind classifies a provenance note.
type AnnotationKind string

const (
	AnnotationReplaced  AnnotationKind = "replaced"
	AnnotationPreserved AnnotationKind = "preserved"
	AnnotationFilled    AnnotationKind = "filled"
	AnnotationWarning   AnnotationKind = "warning"
	AnnotationInfo      AnnotationKind = "info"
	AnnotationError     AnnotationKind = "error"
)

// Annotation is a human-readable provenance note attached to a candidate.
type Annotation struct {
	Kind    AnnotationKind `json:"kind"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
}

// MatchConfidence buckets the distance to the nearest reference place.
type MatchConfidence string

const (
	MatchLikelySame      MatchConfidence = "likely_same"
	MatchNearbyConfirm   MatchConfidence = "nearby_confirm"
	MatchLikelyDifferent MatchConfidence = "likely_different"
)

// Describe returns the reviewer-facing wording of the bucket.
func (m MatchConfidence) Describe() string {
	switch m {
	case MatchLikelySame:
		return "likely same place"
	case MatchNearbyConfirm:
		return "nearby, confirm"
	case MatchLikelyDifferent:
		return "likely different place"
	}
	return string(m)
}

// NearestMatch is the closest reference place to a coordinate.
type NearestMatch struct {
	Place      PlaceRecord     `json:"place"`
	DistanceKm float64         `json:"distanceKm"`
	Confidence MatchConfidence `json:"confidence"`
}

// GeocodeResult is a reverse-geocoded address.
type GeocodeResult struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	Provider    string `json:"provider"`
}

// RunState is a state of the reconciliation state machine.
type RunState string

const (
	StateIdle        RunState = "idle"
	StateExtracting  RunState = "extracting"
	StateReconciling RunState = "reconciling"
	StateVerifying   RunState = "verifying"
	StateReady       RunState = "ready"
	StateFailed      RunState = "failed"
)

// Reconciliation is the outcome of one orchestrator run.
type Reconciliation struct {
	RunID            string          `json:"runId"`
	PlaceID          string          `json:"placeId"`
	State            RunState        `json:"state"`
	Trail            []RunState      `json:"trail"`
	Candidate        UpdateCandidate `json:"candidate"`
	Annotations      []Annotation    `json:"annotations"`
	Nearest          *NearestMatch   `json:"nearest,omitempty"`
	Geocode          *GeocodeResult  `json:"geocode,omitempty"`
	CoordinateSource string          `json:"coordinateSource,omitempty"`
}

// Annotate appends a provenance note.
func (r *Reconciliation) Annotate(kind AnnotationKind, field, message string) {
	r.Annotations = append(r.Annotations, Annotation{Kind: kind, Field: field, Message: message})
}

// Enter records a state transition.
func (r *Reconciliation) Enter(s RunState) {
	r.State = s
	r.Trail = append(r.Trail, s)
}
