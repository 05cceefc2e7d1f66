package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/usecases"
)

// ListPlacesHandler returns one page of places.
func ListPlacesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		places, total, err := deps.Places.List(c.UserContext(), offset, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if places == nil {
			places = []domain.PlaceRecord{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: places, Pagination: pg})
	}
}

// NearbyPlacesHandler returns places within a radius of a point.
func NearbyPlacesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		point, ok := queryPoint(c)
		if !ok {
			return errBadRequest(c, "lat and lng are required")
		}
		radius := c.QueryFloat("radius", 500)
		limit := c.QueryInt("limit", 20)
		if radius <= 0 || radius > 50000 {
			return errBadRequest(c, "radius must be between 1 and 50000 meters")
		}
		if limit <= 0 || limit > 50 {
			limit = 20
		}

		places, err := deps.Places.FindNearby(c.UserContext(), point.Lat, point.Lng, radius, limit)
		if err != nil {
			return errFromDomain(c, err, "place")
		}
		if places == nil {
			places = []domain.PlaceRecord{}
		}

		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(places)
	}
}

// GetPlaceHandler returns a single place by ID.
func GetPlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		place, err := deps.Places.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err, "place")
		}
		return c.JSON(place)
	}
}

// DeletePlaceHandler removes a place.
func DeletePlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Places.Delete(c.UserContext(), c.Params("id")); err != nil {
			return errFromDomain(c, err, "place")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GetDraftHandler returns the reviewer's unsaved form edits for a place.
func GetDraftHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, ok, err := deps.Drafts.Load(c.UserContext(), c.Params("id"))
		if err != nil {
			return errInternal(c, err.Error())
		}
		if !ok {
			return errNotFound(c, "no draft for this place")
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(form)
	}
}

// PutDraftHandler replaces the reviewer's unsaved form edits for a place.
func PutDraftHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var form domain.FormState
		if err := c.BodyParser(&form); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := deps.Drafts.Save(c.UserContext(), c.Params("id"), form); err != nil {
			if errors.Is(err, domain.ErrInvalidCoordinate) {
				return errBadRequest(c, err.Error())
			}
			return errUnavailable(c, err.Error())
		}
		return c.JSON(form)
	}
}

// sessionRequest carries the client-side state of a review session.
type sessionRequest struct {
	Message string               `json:"message"`
	Text    string               `json:"text"`
	History []domain.ChatTurn    `json:"history"`
	Form    domain.FormState     `json:"form"`
	Page    *usecases.Page       `json:"page"`
	Visible []domain.PlaceRecord `json:"visible"`
}

func (r sessionRequest) context(deps *Dependencies, placeID string) usecases.ReconcileContext {
	rc := usecases.ReconcileContext{
		PlaceID: placeID,
		Form:    deps.Drafts.Source(placeID, r.Form),
		History: r.History,
		Visible: r.Visible,
	}
	if r.Page != nil {
		rc.Page = *r.Page
	}
	return rc
}

// AssistHandler sends a reviewer message to the model and reconciles the reply.
func AssistHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req sessionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Message == "" {
			return errBadRequest(c, "message is required")
		}
		if len(req.Message) > 8000 {
			return errBadRequest(c, "message too long (max 8000 characters)")
		}

		placeID := c.Params("id")
		result, err := deps.Reconciler.Assist(c.UserContext(), req.context(deps, placeID), req.Message)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Warn("assist failed", "place_id", placeID, "error", err)
			switch {
			case errors.Is(err, usecases.ErrNoGenerator):
				return errUnavailable(c, err.Error())
			case errors.Is(err, context.DeadlineExceeded):
				return errTimeout(c, "assistant did not answer in time")
			}
			return errUpstream(c, "assistant unavailable")
		}
		return c.JSON(result)
	}
}

// ReconcileHandler runs the engine on model text the client already has.
func ReconcileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req sessionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Text == "" {
			return errBadRequest(c, "text is required")
		}

		res := deps.Reconciler.Reconcile(c.UserContext(), req.context(deps, c.Params("id")), req.Text)
		return c.JSON(res)
	}
}

// ConfirmHandler writes a reviewed candidate and drops the draft.
// The body uses the same keys as model output, so a candidate can be
// posted back exactly as the reconcile response rendered it.
func ConfirmHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var raw domain.RawCandidate
		if err := json.Unmarshal(c.Body(), &raw); err != nil || raw == nil {
			return errBadRequest(c, "request body must be a JSON object")
		}
		delete(raw, "placeId")

		placeID := c.Params("id")
		normalized := usecases.Normalize(raw, nil)
		updated, err := deps.Reconciler.Confirm(c.UserContext(), placeID, normalized.Candidate)
		if err != nil {
			return errFromDomain(c, err, "place")
		}

		if err := deps.Drafts.Clear(c.UserContext(), placeID); err != nil {
			slog.WarnContext(c.UserContext(), "draft not cleared", "place_id", placeID, "error", err)
		}
		return c.JSON(fiber.Map{
			"place":       updated,
			"annotations": normalized.Annotations,
		})
	}
}

// AuditPlaceHandler compares a place's stored address with reverse geocoding.
func AuditPlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Audits == nil {
			return errUnavailable(c, "address audit not configured")
		}
		report, err := deps.Audits.Audit(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err, "place")
		}
		if err := deps.Audits.Publish(c.UserContext(), report); err != nil {
			slog.WarnContext(c.UserContext(), "publish audit report failed", "place_id", report.PlaceID, "error", err)
		}
		return c.JSON(report)
	}
}

// ReverseGeocodeHandler resolves a coordinate to an address.
func ReverseGeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Geocoder == nil {
			return errUnavailable(c, "reverse geocoding not configured")
		}
		point, ok := queryPoint(c)
		if !ok {
			return errBadRequest(c, "lat and lng are required")
		}
		lang := c.Query("lang", deps.Language)

		res, err := deps.Geocoder.ReverseGeocode(c.UserContext(), point, lang)
		if err != nil {
			return errFromDomain(c, err, "address")
		}
		if res == nil {
			return errNotFound(c, "no address found for this coordinate")
		}

		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(res)
	}
}

// queryPoint reads lat and lng (or lon) query parameters.
func queryPoint(c *fiber.Ctx) (domain.GeoPoint, bool) {
	latStr := c.Query("lat")
	lngStr := c.Query("lng", c.Query("lon"))
	if latStr == "" || lngStr == "" {
		return domain.GeoPoint{}, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return domain.GeoPoint{}, false
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: lat, Lng: lng}, true
}
