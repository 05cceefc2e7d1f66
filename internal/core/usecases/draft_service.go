package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
)

// DraftService keeps a reviewer's unsaved form edits per place.
type DraftService struct {
	cache ports.CacheService
	ttl   int
}

// NewDraftService creates a new DraftService. ttlSeconds bounds how long an
// abandoned draft survives.
func NewDraftService(cache ports.CacheService, ttlSeconds int) *DraftService {
	if ttlSeconds <= 0 {
		ttlSeconds = 3600
	}
	return &DraftService{cache: cache, ttl: ttlSeconds}
}

func draftKey(placeID string) string { return "places:draft:" + placeID }

// Save stores the draft for a place, replacing any previous one.
func (s *DraftService) Save(ctx context.Context, placeID string, form domain.FormState) error {
	if s.cache == nil {
		return fmt.Errorf("draft storage not configured")
	}
	if form.Location != nil && !form.Location.Valid() {
		return domain.ErrInvalidCoordinate
	}
	data, err := json.Marshal(form)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, draftKey(placeID), data, s.ttl)
}

// Load returns the stored draft; ok is false when none exists.
func (s *DraftService) Load(ctx context.Context, placeID string) (domain.FormState, bool, error) {
	if s.cache == nil {
		return domain.FormState{}, false, nil
	}
	data, err := s.cache.Get(ctx, draftKey(placeID))
	if errors.Is(err, ports.ErrCacheMiss) {
		return domain.FormState{}, false, nil
	}
	if err != nil {
		return domain.FormState{}, false, err
	}
	var form domain.FormState
	if err := json.Unmarshal(data, &form); err != nil {
		return domain.FormState{}, false, fmt.Errorf("decode draft: %w", err)
	}
	return form, true, nil
}

// Clear drops the draft, typically after the reviewer confirmed a candidate.
func (s *DraftService) Clear(ctx context.Context, placeID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, draftKey(placeID))
}

// Source returns a FormSource that reads the stored draft each time it is
// asked, falling back to the snapshot sent with the request.
func (s *DraftService) Source(placeID string, snapshot domain.FormState) ports.FormSource {
	return &draftSource{drafts: s, placeID: placeID, snapshot: snapshot}
}

type draftSource struct {
	drafts   *DraftService
	placeID  string
	snapshot domain.FormState
}

func (d *draftSource) Snapshot(ctx context.Context) (domain.FormState, error) {
	if d.drafts != nil {
		form, ok, err := d.drafts.Load(ctx, d.placeID)
		if err != nil {
			slog.WarnContext(ctx, "draft unavailable, using request snapshot", "place_id", d.placeID, "error", err)
		} else if ok {
			return form, nil
		}
	}
	return d.snapshot, nil
}

// StaticForm is a FormSource that always returns the same state.
type StaticForm domain.FormState

// Snapshot implements ports.FormSource.
func (f StaticForm) Snapshot(context.Context) (domain.FormState, error) {
	return domain.FormState(f), nil
}
