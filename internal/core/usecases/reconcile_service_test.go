package usecases_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
	"github.com/samirrijal/placedesk/internal/core/usecases"
)

func newReconciler(geocoder ports.ReverseGeocoder, generator ports.TextGenerator, publisher ports.EventPublisher) *usecases.ReconcileService {
	return usecases.NewReconcileService(nil, geocoder, generator, publisher, usecases.ReconcileOptions{
		Language:       "en",
		GeocodeTimeout: 50 * time.Millisecond,
	})
}

func tokyoTower() *domain.PlaceRecord {
	return &domain.PlaceRecord{
		ID:       "p1",
		NameEN:   "Tokyo Tower",
		Address:  "4 Chome-2-8 Shibakoen, Minato City, Tokyo",
		Location: pointPtr(35.6586, 139.7454),
	}
}

func TestReconcile_FencedRecordKeepsFormCoordinate(t *testing.T) {
	svc := newReconciler(nil, nil, nil)
	rc := usecases.ReconcileContext{
		PlaceID: "p1",
		Record:  tokyoTower(),
		Form:    usecases.StaticForm{Location: pointPtr(35.0, 139.0)},
		Visible: []domain.PlaceRecord{},
	}

	res := svc.Reconcile(context.Background(), rc, "Here you go:\n```json\n{\"nameCN\": \"东京塔\"}\n```")

	if res.State != domain.StateReady {
		t.Fatalf("expected ready, got %s (%+v)", res.State, res.Annotations)
	}
	if res.Candidate.NameCN == nil || *res.Candidate.NameCN != "东京塔" {
		t.Errorf("expected nameCN updated, got %v", res.Candidate.NameCN)
	}
	if res.Candidate.Location == nil || *res.Candidate.Location != (domain.GeoPoint{Lat: 35, Lng: 139}) {
		t.Errorf("expected form coordinate {35,139} preserved, got %v", res.Candidate.Location)
	}
	if res.CoordinateSource != usecases.CoordinateFromPrior {
		t.Errorf("expected prior coordinate source, got %q", res.CoordinateSource)
	}
	want := []domain.RunState{domain.StateIdle, domain.StateExtracting, domain.StateReconciling, domain.StateVerifying, domain.StateReady}
	if !reflect.DeepEqual(res.Trail, want) {
		t.Errorf("expected trail %v, got %v", want, res.Trail)
	}
}

func TestReconcile_StoredCoordinateWhenFormEmpty(t *testing.T) {
	svc := newReconciler(nil, nil, nil)
	rc := usecases.ReconcileContext{PlaceID: "p1", Record: tokyoTower(), Form: usecases.StaticForm{}}

	res := svc.Reconcile(context.Background(), rc, "```json\n{\"description\": \"Lattice tower\"}\n```")

	if res.Candidate.Location == nil || res.Candidate.Location.Lat != 35.6586 {
		t.Fatalf("expected stored coordinate preserved, got %v", res.Candidate.Location)
	}
}

func TestReconcile_ProseCoordinateOnly(t *testing.T) {
	svc := newReconciler(geocodeTo("Paris addr"), nil, nil)
	record := tokyoTower()
	record.Address = ""
	rc := usecases.ReconcileContext{PlaceID: "p1", Record: record}

	res := svc.Reconcile(context.Background(), rc, "The tower is at lat: 48.8566, lng: 2.3522 if I recall.")

	if res.State != domain.StateReady {
		t.Fatalf("expected ready, got %s", res.State)
	}
	if got := res.Candidate.Fields(); !reflect.DeepEqual(got, []string{"location"}) {
		t.Fatalf("expected only location, got %v", got)
	}
	if *res.Candidate.Location != (domain.GeoPoint{Lat: 48.8566, Lng: 2.3522}) {
		t.Errorf("unexpected location %v", *res.Candidate.Location)
	}
	if res.Geocode == nil || res.Geocode.Address != "Paris addr" {
		t.Errorf("expected geocode result attached, got %+v", res.Geocode)
	}
	found := false
	for _, a := range res.Annotations {
		if a.Field == "address" && strings.Contains(a.Message, "suggested address") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a suggested-address annotation, got %+v", res.Annotations)
	}
}

func TestReconcile_NothingExtracted(t *testing.T) {
	svc := newReconciler(nil, nil, nil)
	res := svc.Reconcile(context.Background(), usecases.ReconcileContext{PlaceID: "p1"}, "I am not sure, sorry.")

	if res.State != domain.StateReady {
		t.Fatalf("expected ready, got %s", res.State)
	}
	if !res.Candidate.IsEmpty() {
		t.Errorf("expected empty candidate, got %v", res.Candidate.Fields())
	}
	if len(res.Annotations) != 1 || res.Annotations[0].Kind != domain.AnnotationInfo {
		t.Errorf("expected one info annotation, got %+v", res.Annotations)
	}
}

func TestReconcile_GeocoderFailureStillReady(t *testing.T) {
	geo := &mockGeocoder{fn: func(context.Context, domain.GeoPoint, string) (*domain.GeocodeResult, error) {
		return nil, errors.New("connection refused")
	}}
	svc := newReconciler(geo, nil, nil)
	record := tokyoTower()
	record.Address = ""
	rc := usecases.ReconcileContext{PlaceID: "p1", Record: record}

	res := svc.Reconcile(context.Background(), rc, `{"location": {"lat": 35.6586, "lng": 139.7454}}`)

	if res.State != domain.StateReady {
		t.Fatalf("expected ready, got %s (%+v)", res.State, res.Annotations)
	}
	if res.Candidate.Location == nil {
		t.Fatal("expected location kept")
	}
	if res.Candidate.Address != nil {
		t.Errorf("expected no address, got %q", *res.Candidate.Address)
	}
	if !hasAnnotation(res.Annotations, domain.AnnotationWarning, "address") {
		t.Error("expected a missing-address warning")
	}
	if geo.calls != 1 {
		t.Errorf("expected exactly one geocode attempt, got %d", geo.calls)
	}
}

func TestReconcile_GeocoderTimeoutStillReady(t *testing.T) {
	geo := &mockGeocoder{fn: func(ctx context.Context, _ domain.GeoPoint, _ string) (*domain.GeocodeResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc := newReconciler(geo, nil, nil)
	rc := usecases.ReconcileContext{PlaceID: "p1", Record: tokyoTower()}

	start := time.Now()
	res := svc.Reconcile(context.Background(), rc, "lat: 35.6586, lng: 139.7454")

	if res.State != domain.StateReady {
		t.Fatalf("expected ready, got %s", res.State)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("geocode timeout did not bound the run")
	}
	if !hasAnnotation(res.Annotations, domain.AnnotationWarning, "address") {
		t.Error("expected a timeout warning")
	}
}

func TestReconcile_FillsMissingAddress(t *testing.T) {
	svc := newReconciler(geocodeTo("东京都港区芝公园4丁目2-8"), nil, nil)
	record := tokyoTower()
	record.Address = ""
	rc := usecases.ReconcileContext{PlaceID: "p1", Record: record}

	res := svc.Reconcile(context.Background(), rc, `{"nameEN": "Tokyo Tower", "location": {"lat": 35.6586, "lng": 139.7454}}`)

	if res.Candidate.Address == nil || *res.Candidate.Address != "东京都港区芝公园4丁目2-8" {
		t.Fatalf("expected address filled, got %v", res.Candidate.Address)
	}
	if !hasAnnotation(res.Annotations, domain.AnnotationFilled, "address") {
		t.Error("expected a filled annotation")
	}
	if res.Geocode == nil {
		t.Error("expected geocode result attached")
	}
}

func TestReconcile_EditedAddressIsNotOverwritten(t *testing.T) {
	svc := newReconciler(geocodeTo("Somewhere Else"), nil, nil)
	record := tokyoTower()
	record.Address = ""
	rc := usecases.ReconcileContext{
		PlaceID: "p1",
		Record:  record,
		Form:    usecases.StaticForm{Address: strPtr("Shibakoen, Minato City")},
	}

	res := svc.Reconcile(context.Background(), rc, "lat: 35.6586, lng: 139.7454")

	if res.Candidate.Address != nil {
		t.Errorf("expected address untouched, got %q", *res.Candidate.Address)
	}
	if !hasAnnotation(res.Annotations, domain.AnnotationWarning, "address") {
		t.Error("expected a mismatch warning against the edited address")
	}
}

func TestReconcile_ModelAddressWinsOverGeocoder(t *testing.T) {
	svc := newReconciler(geocodeTo("Champ de Mars, Paris"), nil, nil)
	rc := usecases.ReconcileContext{PlaceID: "p1", Record: tokyoTower()}
	text := "```json\n{\"address\": \"New Addr\", \"lat\": 35.6586, \"lng\": 139.7454}\n```"

	res := svc.Reconcile(context.Background(), rc, text)

	if res.Candidate.Address == nil || *res.Candidate.Address != "New Addr" {
		t.Fatalf("expected model address kept, got %v", res.Candidate.Address)
	}
	var mismatch bool
	for _, a := range res.Annotations {
		if a.Kind == domain.AnnotationWarning && strings.Contains(a.Message, "does not match") {
			mismatch = true
		}
	}
	if !mismatch {
		t.Errorf("expected a mismatch warning, got %+v", res.Annotations)
	}
}

func TestReconcile_NearestExcludesSelf(t *testing.T) {
	svc := newReconciler(nil, nil, nil)
	rc := usecases.ReconcileContext{
		PlaceID: "p1",
		Record:  tokyoTower(),
		Visible: []domain.PlaceRecord{
			*tokyoTower(),
			{ID: "p2", NameEN: "Zojoji", Location: pointPtr(35.6574, 139.7480)},
		},
	}

	res := svc.Reconcile(context.Background(), rc, "lat: 35.6586, lng: 139.7454")

	if res.Nearest == nil {
		t.Fatal("expected a nearest match")
	}
	if res.Nearest.Place.ID != "p2" {
		t.Errorf("expected p2, got %s", res.Nearest.Place.ID)
	}
	if res.Nearest.Confidence != domain.MatchLikelySame {
		t.Errorf("expected likely same, got %s", res.Nearest.Confidence)
	}
	if !hasAnnotation(res.Annotations, domain.AnnotationWarning, "location") {
		t.Error("expected a warning for a likely duplicate")
	}
}

func TestReconcile_NearestUsesPlaceListPage(t *testing.T) {
	var gotLimit int
	repo := &mockPlaceRepo{
		listFn: func(_ context.Context, _, limit int) ([]domain.PlaceRecord, int, error) {
			gotLimit = limit
			return []domain.PlaceRecord{{ID: "far", Location: pointPtr(48.8584, 2.2945)}}, 1, nil
		},
	}
	places := usecases.NewPlaceService(repo, nil)
	svc := usecases.NewReconcileService(places, nil, nil, nil, usecases.ReconcileOptions{PageSize: 20})
	rc := usecases.ReconcileContext{PlaceID: "p1", Record: tokyoTower()}

	res := svc.Reconcile(context.Background(), rc, "lat: 35.6586, lng: 139.7454")

	if gotLimit != 20 {
		t.Errorf("expected page size 20, got %d", gotLimit)
	}
	if res.Nearest == nil || res.Nearest.Confidence != domain.MatchLikelyDifferent {
		t.Fatalf("expected a likely-different match, got %+v", res.Nearest)
	}
}

func TestReconcile_FormErrorFails(t *testing.T) {
	svc := newReconciler(nil, nil, nil)
	rc := usecases.ReconcileContext{
		PlaceID: "p1",
		Form: formFunc(func(context.Context) (domain.FormState, error) {
			return domain.FormState{}, errors.New("form detached")
		}),
	}

	res := svc.Reconcile(context.Background(), rc, "```json\n{\"nameEN\": \"Tokyo Tower\"}\n```")

	if res.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if !res.Candidate.IsEmpty() {
		t.Errorf("expected empty candidate, got %v", res.Candidate.Fields())
	}
	if len(res.Annotations) != 1 || res.Annotations[0].Kind != domain.AnnotationError {
		t.Fatalf("expected a single error annotation, got %+v", res.Annotations)
	}
	if !strings.Contains(res.Annotations[0].Message, "form detached") {
		t.Errorf("expected raw error text, got %q", res.Annotations[0].Message)
	}
}

func TestReconcile_PanicFails(t *testing.T) {
	svc := newReconciler(nil, nil, nil)
	rc := usecases.ReconcileContext{
		PlaceID: "p1",
		Form: formFunc(func(context.Context) (domain.FormState, error) {
			panic("boom")
		}),
	}

	res := svc.Reconcile(context.Background(), rc, "lat: 1, lng: 2")

	if res.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if len(res.Annotations) != 1 || !strings.Contains(res.Annotations[0].Message, "boom") {
		t.Errorf("expected panic message as sole annotation, got %+v", res.Annotations)
	}
}

func TestReconcile_PublishesCandidateReady(t *testing.T) {
	pub := &mockPublisher{}
	svc := newReconciler(nil, nil, pub)
	rc := usecases.ReconcileContext{PlaceID: "p1", Record: tokyoTower()}

	res := svc.Reconcile(context.Background(), rc, "lat: 35.6586, lng: 139.7454")

	if len(pub.candidates) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.candidates))
	}
	ev := pub.candidates[0]
	if ev.RunID != res.RunID || ev.State != domain.StateReady {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestAssist_ReadsFormWhenRunCompletes(t *testing.T) {
	var mu sync.Mutex
	form := domain.FormState{Location: pointPtr(10, 10)}

	gen := &mockGenerator{fn: func(_ context.Context, req ports.GenerateRequest) (string, error) {
		// The reviewer keeps editing while the model is thinking.
		mu.Lock()
		form = domain.FormState{Location: pointPtr(35, 139)}
		mu.Unlock()
		return "```json\n{\"nameCN\": \"东京塔\"}\n```", nil
	}}
	svc := newReconciler(nil, gen, nil)
	rc := usecases.ReconcileContext{
		PlaceID: "p1",
		Record:  tokyoTower(),
		Form: formFunc(func(context.Context) (domain.FormState, error) {
			mu.Lock()
			defer mu.Unlock()
			return form, nil
		}),
	}

	out, err := svc.Assist(context.Background(), rc, "Add the Chinese name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loc := out.Reconciliation.Candidate.Location
	if loc == nil || *loc != (domain.GeoPoint{Lat: 35, Lng: 139}) {
		t.Fatalf("expected latest form coordinate {35,139}, got %v", loc)
	}
	if !strings.Contains(out.Reply, "东京塔") {
		t.Errorf("expected reply passed through, got %q", out.Reply)
	}
}

func TestAssist_SendsRecordAndHistory(t *testing.T) {
	var got ports.GenerateRequest
	gen := &mockGenerator{fn: func(_ context.Context, req ports.GenerateRequest) (string, error) {
		got = req
		return "No changes needed.", nil
	}}
	svc := newReconciler(nil, gen, nil)
	rc := usecases.ReconcileContext{
		PlaceID: "p1",
		Record:  tokyoTower(),
		History: []domain.ChatTurn{{Role: "user", Content: "hi"}, {Role: "model", Content: "hello"}},
	}

	if _, err := svc.Assist(context.Background(), rc, "check it"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got.Instructions, "Tokyo Tower") {
		t.Error("expected the current record in the instructions")
	}
	if len(got.Turns) != 3 || got.Turns[2].Content != "check it" || got.Turns[2].Role != "user" {
		t.Errorf("unexpected turns %+v", got.Turns)
	}
}

func TestAssist_GeneratorError(t *testing.T) {
	gen := &mockGenerator{fn: func(context.Context, ports.GenerateRequest) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	svc := newReconciler(nil, gen, nil)

	_, err := svc.Assist(context.Background(), usecases.ReconcileContext{PlaceID: "p1", Record: tokyoTower()}, "hi")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAssist_SerializedPerPlace(t *testing.T) {
	var inFlight, peak int32
	gen := &mockGenerator{fn: func(context.Context, ports.GenerateRequest) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "lat: 1, lng: 2", nil
	}}
	svc := newReconciler(nil, gen, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Assist(context.Background(), usecases.ReconcileContext{PlaceID: "p1", Record: tokyoTower()}, "go")
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("expected runs for one place to be serialized, peak concurrency %d", peak)
	}
}

func TestConfirm_WritesAndPublishes(t *testing.T) {
	var written domain.UpdateCandidate
	repo := &mockPlaceRepo{updateFn: func(_ context.Context, c domain.UpdateCandidate) (*domain.PlaceRecord, error) {
		written = c
		return &domain.PlaceRecord{ID: c.PlaceID, NameCN: *c.NameCN}, nil
	}}
	pub := &mockPublisher{}
	svc := usecases.NewReconcileService(usecases.NewPlaceService(repo, nil), nil, nil, pub, usecases.ReconcileOptions{})

	updated, err := svc.Confirm(context.Background(), "p1", domain.UpdateCandidate{NameCN: strPtr("东京塔")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written.PlaceID != "p1" || updated.NameCN != "东京塔" {
		t.Errorf("unexpected write %+v", written)
	}
	if len(pub.updates) != 1 || !reflect.DeepEqual(pub.updates[0].Fields, []string{"nameCN"}) {
		t.Errorf("expected one update event for nameCN, got %+v", pub.updates)
	}
}

func TestConfirm_EmptyCandidate(t *testing.T) {
	svc := usecases.NewReconcileService(usecases.NewPlaceService(&mockPlaceRepo{}, nil), nil, nil, nil, usecases.ReconcileOptions{})
	_, err := svc.Confirm(context.Background(), "p1", domain.UpdateCandidate{})
	if !errors.Is(err, domain.ErrEmptyCandidate) {
		t.Fatalf("expected ErrEmptyCandidate, got %v", err)
	}
}
