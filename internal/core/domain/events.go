package domain

import "time"

// PlaceUpdatedEvent is published after a confirmed candidate was written.
type PlaceUpdatedEvent struct {
	PlaceID string    `json:"placeId"`
	Fields  []string  `json:"fields"`
	Time    time.Time `json:"time"`
}

// CandidateReadyEvent is published when a reconciliation run reaches a terminal state.
type CandidateReadyEvent struct {
	RunID       string   `json:"runId"`
	PlaceID     string   `json:"placeId"`
	State       RunState `json:"state"`
	Fields      []string `json:"fields"`
	Annotations int      `json:"annotations"`
}

// AuditStatus is the verdict of an address audit.
type AuditStatus string

const (
	AuditMatch       AuditStatus = "match"
	AuditMismatch    AuditStatus = "mismatch"
	AuditNoResult    AuditStatus = "no_result"
	AuditSkipped     AuditStatus = "skipped"
	AuditUnavailable AuditStatus = "unavailable"
)

// AuditReport compares a stored address with the reverse-geocoded one.
type AuditReport struct {
	PlaceID         string      `json:"placeId"`
	Status          AuditStatus `json:"status"`
	StoredAddress   string      `json:"storedAddress,omitempty"`
	GeocodedAddress string      `json:"geocodedAddress,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	CheckedAt       time.Time   `json:"checkedAt"`
}
