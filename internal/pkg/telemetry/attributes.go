package telemetry

// Span attribute keys shared by the reconcile pipeline and its adapters.
const (
	AttrPlaceID        = "place.id"
	AttrReconcileState = "reconcile.state"
	AttrGeocodeOutcome = "geocoder.outcome"
)
