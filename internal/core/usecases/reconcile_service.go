package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/extract"
	"github.com/samirrijal/placedesk/internal/core/ports"
	"github.com/samirrijal/placedesk/internal/pkg/metrics"
	"github.com/samirrijal/placedesk/internal/pkg/telemetry"
)

var tracer = otel.Tracer("github.com/samirrijal/placedesk/internal/core/usecases")

// ErrNoGenerator is returned by Assist when no text generator is wired.
var ErrNoGenerator = errors.New("text generation not configured")

// ReconcileOptions tunes the verification step.
type ReconcileOptions struct {
	Language       string        // language preference passed to the geocoder
	GeocodeTimeout time.Duration // upper bound on one reverse-geocode call
	PageSize       int           // reference page size when the caller gives none
}

// Page selects the visible slice of the place list.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ReconcileContext is everything one run needs to know about the session.
type ReconcileContext struct {
	PlaceID string
	Record  *domain.PlaceRecord  // loaded through the place service when nil
	Form    ports.FormSource     // unsaved form edits, read when the run reconciles
	History []domain.ChatTurn    // prior conversation, oldest first
	Visible []domain.PlaceRecord // reference places; the page is loaded when nil
	Page    Page
}

// AssistResult is the model reply together with the reconciled candidate.
type AssistResult struct {
	Reply          string                 `json:"reply"`
	Reconciliation *domain.Reconciliation `json:"reconciliation"`
}

// ReconcileService turns model output into reviewed update candidates.
type ReconcileService struct {
	places    *PlaceService
	geocoder  ports.ReverseGeocoder
	generator ports.TextGenerator
	publisher ports.EventPublisher
	opts      ReconcileOptions
	locks     keyedMutex
}

// NewReconcileService creates a new ReconcileService. geocoder, generator and
// publisher may be nil; the matching enrichment is then skipped.
func NewReconcileService(
	places *PlaceService,
	geocoder ports.ReverseGeocoder,
	generator ports.TextGenerator,
	publisher ports.EventPublisher,
	opts ReconcileOptions,
) *ReconcileService {
	if opts.GeocodeTimeout <= 0 {
		opts.GeocodeTimeout = 5 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &ReconcileService{
		places:    places,
		geocoder:  geocoder,
		generator: generator,
		publisher: publisher,
		opts:      opts,
	}
}

// Assist sends the reviewer's message to the model and reconciles its reply.
// Only a failed model call is returned as an error.
func (s *ReconcileService) Assist(ctx context.Context, rc ReconcileContext, message string) (*AssistResult, error) {
	if s.generator == nil {
		return nil, ErrNoGenerator
	}

	unlock := s.locks.Lock(rc.PlaceID)
	defer unlock()

	if rc.Record == nil && s.places != nil {
		if record, err := s.places.GetByID(ctx, rc.PlaceID); err == nil {
			rc.Record = record
		} else {
			slog.WarnContext(ctx, "assist without current record", "place_id", rc.PlaceID, "error", err)
		}
	}

	turns := make([]domain.ChatTurn, 0, len(rc.History)+1)
	turns = append(turns, rc.History...)
	turns = append(turns, domain.ChatTurn{Role: "user", Content: message})

	reply, err := s.generator.Generate(ctx, ports.GenerateRequest{
		Instructions: buildInstructions(rc.Record),
		Turns:        turns,
	})
	if err != nil {
		metrics.ModelRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("generate: %w", err)
	}
	metrics.ModelRequests.WithLabelValues("ok").Inc()

	return &AssistResult{Reply: reply, Reconciliation: s.run(ctx, rc, reply)}, nil
}

// Reconcile runs the engine on model output the caller already has. It
// always returns a result; failures end in StateFailed with an empty candidate.
func (s *ReconcileService) Reconcile(ctx context.Context, rc ReconcileContext, text string) *domain.Reconciliation {
	unlock := s.locks.Lock(rc.PlaceID)
	defer unlock()
	return s.run(ctx, rc, text)
}

// Confirm writes a reviewed candidate. It is the only path that changes a place.
func (s *ReconcileService) Confirm(ctx context.Context, placeID string, c domain.UpdateCandidate) (*domain.PlaceRecord, error) {
	c.PlaceID = placeID

	unlock := s.locks.Lock(placeID)
	defer unlock()

	updated, err := s.places.ApplyCandidate(ctx, c)
	if err != nil {
		return nil, err
	}
	metrics.CandidatesConfirmed.Inc()

	if s.publisher != nil {
		event := &domain.PlaceUpdatedEvent{PlaceID: placeID, Fields: c.Fields(), Time: time.Now().UTC()}
		if err := s.publisher.PublishPlaceUpdated(ctx, event); err != nil {
			slog.WarnContext(ctx, "publish place update failed", "place_id", placeID, "error", err)
		}
	}
	return updated, nil
}

func (s *ReconcileService) run(ctx context.Context, rc ReconcileContext, text string) (res *domain.Reconciliation) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "reconcile.run")
	span.SetAttributes(attribute.String(telemetry.AttrPlaceID, rc.PlaceID))

	res = &domain.Reconciliation{
		RunID:     uuid.NewString(),
		PlaceID:   rc.PlaceID,
		Candidate: domain.UpdateCandidate{PlaceID: rc.PlaceID},
	}
	res.Enter(domain.StateIdle)

	defer func() {
		if r := recover(); r != nil {
			s.fail(res, fmt.Errorf("unexpected failure: %v", r))
		}
		if res.State == domain.StateFailed {
			span.SetStatus(codes.Error, "reconcile failed")
		}
		span.SetAttributes(
			attribute.String(telemetry.AttrReconcileState, string(res.State)),
			attribute.Int("reconcile.annotations", len(res.Annotations)),
		)
		span.End()

		metrics.ReconcileRuns.WithLabelValues(string(res.State)).Inc()
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
		s.announce(ctx, res)
	}()

	state, err := s.extractAndReconcile(ctx, rc, text, res)
	if err != nil {
		s.fail(res, err)
		return res
	}
	if state.done {
		res.Enter(domain.StateReady)
		return res
	}

	s.verify(ctx, rc, state, res)
	res.Enter(domain.StateReady)

	slog.DebugContext(ctx, "reconcile ready",
		"place_id", rc.PlaceID,
		"run_id", res.RunID,
		"fields", res.Candidate.Fields(),
		"coordinate_source", res.CoordinateSource,
	)
	return res
}

// runState carries what the reconcile step learned into the verify step.
type runState struct {
	done     bool
	degraded bool // coordinate recovered from prose; the candidate carries nothing else
	record   *domain.PlaceRecord
	form     domain.FormState
}

func (s *ReconcileService) extractAndReconcile(ctx context.Context, rc ReconcileContext, text string, res *domain.Reconciliation) (runState, error) {
	res.Enter(domain.StateExtracting)

	raw, ok := extract.Record(text)
	degraded := !ok
	if degraded {
		p, found := extract.Coordinates(text)
		if !found {
			res.Annotate(domain.AnnotationInfo, "", "no structured record or coordinate found in the model output; nothing to update")
			return runState{done: true}, nil
		}
		raw = domain.RawCandidate{"lat": p.Lat, "lng": p.Lng}
		res.Annotate(domain.AnnotationInfo, "", "no structured record found; using the coordinate mentioned in the text")
	}

	res.Enter(domain.StateReconciling)

	record := rc.Record
	if record == nil && s.places != nil {
		loaded, err := s.places.GetByID(ctx, rc.PlaceID)
		if err != nil {
			res.Annotate(domain.AnnotationWarning, "", fmt.Sprintf("current record unavailable, reconciling without it: %v", err))
		} else {
			record = loaded
		}
	}

	// Read the form now, not when the request was dispatched.
	var form domain.FormState
	if rc.Form != nil {
		f, err := rc.Form.Snapshot(ctx)
		if err != nil {
			return runState{}, fmt.Errorf("read form state: %w", err)
		}
		form = f
	}

	n := NormalizeWithPriors(raw, priorsFor(form, record)...)
	n.Candidate.PlaceID = rc.PlaceID
	res.Candidate = n.Candidate
	res.CoordinateSource = n.CoordinateSource
	res.Annotations = append(res.Annotations, n.Annotations...)

	return runState{degraded: degraded, record: record, form: form}, nil
}

// priorsFor orders coordinate fallbacks: unsaved form edits, then the
// record's structured metadata, then its stored coordinate.
func priorsFor(form domain.FormState, record *domain.PlaceRecord) []Prior {
	var priors []Prior
	if form.Location != nil {
		priors = append(priors, Prior{Label: "unsaved form edits", Values: pointValues(*form.Location)})
	}
	if record != nil {
		if record.Metadata != nil {
			priors = append(priors, Prior{Label: "record metadata", Values: record.Metadata})
		}
		if record.Location != nil {
			priors = append(priors, Prior{Label: "stored coordinate", Values: pointValues(*record.Location)})
		}
	}
	return priors
}

func pointValues(p domain.GeoPoint) map[string]any {
	return map[string]any{"lat": p.Lat, "lng": p.Lng}
}

func (s *ReconcileService) verify(ctx context.Context, rc ReconcileContext, state runState, res *domain.Reconciliation) {
	res.Enter(domain.StateVerifying)

	if res.Candidate.Location == nil {
		res.Annotate(domain.AnnotationInfo, "location", "no coordinate; skipped reverse geocoding and nearest-place check")
		return
	}
	point := *res.Candidate.Location

	s.verifyAddress(ctx, point, state, res)
	s.matchNearest(ctx, rc, point, res)
}

func (s *ReconcileService) verifyAddress(ctx context.Context, point domain.GeoPoint, state runState, res *domain.Reconciliation) {
	ctx, span := tracer.Start(ctx, "reconcile.geocode")
	defer span.End()

	existing, origin := currentAddress(res.Candidate, state)

	var result *domain.GeocodeResult
	if s.geocoder == nil {
		res.Annotate(domain.AnnotationInfo, "address", "reverse geocoding not configured")
	} else {
		gctx, cancel := context.WithTimeout(ctx, s.opts.GeocodeTimeout)
		r, err := s.geocoder.ReverseGeocode(gctx, point, s.opts.Language)
		cancel()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			res.Annotate(domain.AnnotationWarning, "address", "reverse geocoding timed out; continuing without a geocode result")
		case errors.Is(err, domain.ErrInvalidCoordinate):
			res.Annotate(domain.AnnotationWarning, "location", fmt.Sprintf("coordinate rejected before geocoding: %v", err))
		case err != nil:
			span.RecordError(err)
			res.Annotate(domain.AnnotationWarning, "address", fmt.Sprintf("reverse geocoding unavailable: %v", err))
		case r == nil || r.Address == "":
			res.Annotate(domain.AnnotationInfo, "address", "reverse geocoding returned no result for this coordinate")
		default:
			result = r
			res.Geocode = r
		}
	}

	if existing == "" {
		if result == nil {
			res.Annotate(domain.AnnotationWarning, "address", "address is missing and could not be filled from reverse geocoding")
			return
		}
		if state.degraded {
			res.Annotate(domain.AnnotationInfo, "address", fmt.Sprintf("suggested address from reverse geocoding (not applied): %s", result.Address))
			return
		}
		addr := result.Address
		res.Candidate.Address = &addr
		res.Annotate(domain.AnnotationFilled, "address", fmt.Sprintf("address filled from reverse geocoding: %s", addr))
		return
	}
	if result == nil {
		return
	}
	if AddressesMatch(existing, result.Address) {
		res.Annotate(domain.AnnotationInfo, "address", "address agrees with reverse geocoding")
		return
	}
	res.Annotate(domain.AnnotationWarning, "address", fmt.Sprintf(
		"%s address %q does not match %q reverse-geocoded from the coordinate; kept the %s address",
		origin, existing, result.Address, origin))
}

// currentAddress is the address the reviewer would end up with, and where it came from.
func currentAddress(c domain.UpdateCandidate, state runState) (string, string) {
	switch {
	case c.Address != nil:
		return *c.Address, "model"
	case state.form.Address != nil && *state.form.Address != "":
		return *state.form.Address, "edited"
	case state.record != nil:
		return state.record.Address, "stored"
	}
	return "", ""
}

func (s *ReconcileService) matchNearest(ctx context.Context, rc ReconcileContext, point domain.GeoPoint, res *domain.Reconciliation) {
	refs := rc.Visible
	if refs == nil && s.places != nil {
		limit := rc.Page.Limit
		if limit <= 0 {
			limit = s.opts.PageSize
		}
		page, _, err := s.places.List(ctx, rc.Page.Offset, limit)
		if err != nil {
			res.Annotate(domain.AnnotationWarning, "location", fmt.Sprintf("nearest-place check unavailable: %v", err))
			return
		}
		refs = page
	}

	others := make([]domain.PlaceRecord, 0, len(refs))
	for _, p := range refs {
		if p.ID != rc.PlaceID {
			others = append(others, p)
		}
	}

	m := FindNearest(point, others)
	if m == nil {
		res.Annotate(domain.AnnotationInfo, "location", "no reference places with coordinates to compare against")
		return
	}
	res.Nearest = m
	metrics.MatchConfidence.WithLabelValues(string(m.Confidence)).Inc()

	kind := domain.AnnotationInfo
	if m.Confidence == domain.MatchLikelySame {
		kind = domain.AnnotationWarning
	}
	res.Annotate(kind, "location", fmt.Sprintf("nearest known place is %s, %.2f km away: %s",
		m.Place.DisplayName(), m.DistanceKm, m.Confidence.Describe()))
}

func (s *ReconcileService) fail(res *domain.Reconciliation, err error) {
	res.Candidate = domain.UpdateCandidate{PlaceID: res.PlaceID}
	res.Annotations = []domain.Annotation{{Kind: domain.AnnotationError, Message: err.Error()}}
	res.Nearest = nil
	res.Geocode = nil
	res.CoordinateSource = ""
	res.Enter(domain.StateFailed)
}

func (s *ReconcileService) announce(ctx context.Context, res *domain.Reconciliation) {
	if s.publisher == nil {
		return
	}
	event := &domain.CandidateReadyEvent{
		RunID:       res.RunID,
		PlaceID:     res.PlaceID,
		State:       res.State,
		Fields:      res.Candidate.Fields(),
		Annotations: len(res.Annotations),
	}
	if err := s.publisher.PublishCandidateReady(ctx, event); err != nil {
		slog.WarnContext(ctx, "publish candidate failed", "place_id", res.PlaceID, "error", err)
	}
}
