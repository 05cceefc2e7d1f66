package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/samirrijal/placedesk/internal/adapters/postgres"
	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/pkg/config"
	"github.com/samirrijal/placedesk/internal/pkg/logging"
)

const batchSize = 500

func main() {
	cfg, err := config.Load("placedesk-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Server.LogLevel, cfg.Server.LogFormat)

	path := "places.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}

	places, err := prepare(data)
	if err != nil {
		log.Fatalf("parse %s: %v", path, err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	repo := postgres.NewPlaceRepo(db)
	for start := 0; start < len(places); start += batchSize {
		end := min(start+batchSize, len(places))
		if err := repo.UpsertBatch(ctx, places[start:end]); err != nil {
			log.Fatalf("upsert places %d-%d: %v", start, end, err)
		}
		slog.Info("imported batch", "from", start, "to", end)
	}

	slog.Info("import complete", "file", path, "places", len(places))
}

// prepare decodes a JSON array of places. Records without an ID get a fresh
// UUID, category aliases are canonicalised and out-of-range coordinates are
// dropped rather than stored.
func prepare(data []byte) ([]domain.PlaceRecord, error) {
	var places []domain.PlaceRecord
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, err
	}
	for i := range places {
		p := &places[i]
		if strings.TrimSpace(p.ID) == "" {
			p.ID = uuid.NewString()
		}
		if p.Category != "" {
			cat, ok := domain.ParseCategory(string(p.Category))
			if !ok {
				return nil, fmt.Errorf("place %s: unknown category %q", p.ID, p.Category)
			}
			p.Category = cat
		}
		if p.Location != nil && !p.Location.Valid() {
			slog.Warn("dropping invalid location", "place_id", p.ID, "lat", p.Location.Lat, "lng", p.Location.Lng)
			p.Location = nil
		}
		// Computed by queries, never stored
		p.Distance = nil
	}
	return places, nil
}
