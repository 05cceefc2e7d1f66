package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/pkg/geospatial"
)

// PlaceRepo implements ports.PlaceRepository with pgx.
type PlaceRepo struct {
	db *DB
}

// NewPlaceRepo creates a new PlaceRepo.
func NewPlaceRepo(db *DB) *PlaceRepo {
	return &PlaceRepo{db: db}
}

const placeColumns = `id, COALESCE(name_cn, ''), COALESCE(name_en, ''), COALESCE(category, ''),
	COALESCE(address, ''), COALESCE(description, ''), COALESCE(rating, 0),
	COALESCE(external_place_id, ''), lat, lng, city_id,
	COALESCE(metadata, '{}'), COALESCE(physical_metadata, '{}'), created_at, updated_at`

func scanPlace(row pgx.Row) (*domain.PlaceRecord, error) {
	var p domain.PlaceRecord
	var lat, lng *float64
	if err := row.Scan(
		&p.ID, &p.NameCN, &p.NameEN, &p.Category,
		&p.Address, &p.Description, &p.Rating,
		&p.ExternalPlaceID, &lat, &lng, &p.CityID,
		&p.Metadata, &p.PhysicalMetadata, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		p.Location = &domain.GeoPoint{Lat: *lat, Lng: *lng}
	}
	return &p, nil
}

func collectPlaces(rows pgx.Rows) ([]domain.PlaceRecord, error) {
	defer rows.Close()
	var places []domain.PlaceRecord
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, *p)
	}
	return places, rows.Err()
}

// validID reports whether id can name a row. Place IDs are UUIDs; anything
// else cannot exist and must not reach Postgres as a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// nullIfEmpty maps "" to SQL NULL for nullable unique columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetByID returns a place by UUID.
func (r *PlaceRepo) GetByID(ctx context.Context, id string) (*domain.PlaceRecord, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	p, err := scanPlace(r.db.Pool.QueryRow(ctx, `SELECT `+placeColumns+` FROM places WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns one page of places ordered by name together with the total count.
func (r *PlaceRepo) List(ctx context.Context, offset, limit int) ([]domain.PlaceRecord, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM places`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count places: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+placeColumns+`
		FROM places
		ORDER BY COALESCE(NULLIF(name_en, ''), name_cn), id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	places, err := collectPlaces(rows)
	if err != nil {
		return nil, 0, err
	}
	return places, total, nil
}

// FindNearby returns places within radiusMeters, nearest first. The bounding
// box narrows the scan on the (lat, lng) index; haversine does the exact cut.
func (r *PlaceRepo) FindNearby(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]domain.PlaceRecord, error) {
	minLat, minLng, maxLat, maxLng := geospatial.BoundingBox(lat, lng, radiusMeters)

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+placeColumns+`
		FROM places
		WHERE lat BETWEEN $1 AND $2
		  AND lng BETWEEN $3 AND $4
	`, minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil, err
	}
	candidates, err := collectPlaces(rows)
	if err != nil {
		return nil, err
	}

	var places []domain.PlaceRecord
	for _, p := range candidates {
		d := geospatial.Haversine(lat, lng, p.Location.Lat, p.Location.Lng)
		if d > radiusMeters {
			continue
		}
		p.Distance = &d
		places = append(places, p)
	}
	sort.SliceStable(places, func(i, j int) bool { return *places[i].Distance < *places[j].Distance })
	if len(places) > limit {
		places = places[:limit]
	}
	return places, nil
}

// Update applies the present fields of c in a single statement and returns
// the updated row.
func (r *PlaceRepo) Update(ctx context.Context, c domain.UpdateCandidate) (*domain.PlaceRecord, error) {
	if !validID(c.PlaceID) {
		return nil, domain.ErrNotFound
	}
	query, args, err := updateStatement(c)
	if err != nil {
		return nil, err
	}

	p, err := scanPlace(r.db.Pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// updateStatement builds the UPDATE for the present fields of c.
func updateStatement(c domain.UpdateCandidate) (string, []any, error) {
	var sets []string
	var args []any
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if c.NameCN != nil {
		set("name_cn", *c.NameCN)
	}
	if c.NameEN != nil {
		set("name_en", *c.NameEN)
	}
	if c.Category != nil {
		set("category", string(*c.Category))
	}
	if c.Address != nil {
		set("address", *c.Address)
	}
	if c.Description != nil {
		set("description", *c.Description)
	}
	if c.Rating != nil {
		set("rating", *c.Rating)
	}
	if c.ExternalPlaceID != nil {
		set("external_place_id", nullIfEmpty(*c.ExternalPlaceID))
	}
	if c.CityID != nil {
		set("city_id", nullIfEmpty(*c.CityID))
	}
	if c.Location != nil {
		set("lat", c.Location.Lat)
		set("lng", c.Location.Lng)
	}
	if c.Metadata != nil {
		set("metadata", c.Metadata)
	}
	if c.PhysicalMetadata != nil {
		set("physical_metadata", c.PhysicalMetadata)
	}
	if len(sets) == 0 {
		return "", nil, domain.ErrEmptyCandidate
	}

	args = append(args, c.PlaceID)
	query := fmt.Sprintf(`UPDATE places SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), placeColumns)
	return query, args, nil
}

// Delete removes a place.
func (r *PlaceRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM places WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertBatch inserts or replaces many places using pgx.Batch.
func (r *PlaceRepo) UpsertBatch(ctx context.Context, places []domain.PlaceRecord) error {
	batch := &pgx.Batch{}
	for _, p := range places {
		var lat, lng *float64
		if p.Location != nil {
			lat, lng = &p.Location.Lat, &p.Location.Lng
		}
		metadata, physical := p.Metadata, p.PhysicalMetadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		if physical == nil {
			physical = map[string]any{}
		}
		batch.Queue(`
			INSERT INTO places (id, name_cn, name_en, category, address, description, rating,
			                    external_place_id, lat, lng, city_id, metadata, physical_metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE
			SET name_cn = EXCLUDED.name_cn, name_en = EXCLUDED.name_en,
			    category = EXCLUDED.category, address = EXCLUDED.address,
			    description = EXCLUDED.description, rating = EXCLUDED.rating,
			    external_place_id = EXCLUDED.external_place_id,
			    lat = EXCLUDED.lat, lng = EXCLUDED.lng, city_id = EXCLUDED.city_id,
			    metadata = EXCLUDED.metadata, physical_metadata = EXCLUDED.physical_metadata,
			    updated_at = NOW()
		`, p.ID, p.NameCN, p.NameEN, string(p.Category), p.Address, p.Description, p.Rating,
			p.ExternalPlaceID, lat, lng, p.CityID, metadata, physical)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range places {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

