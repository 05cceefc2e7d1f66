package main

import (
	"context"
	"errors"
	"log"
	"log/slog"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/placedesk/internal/adapters/nats"
	"github.com/samirrijal/placedesk/internal/adapters/nominatim"
	"github.com/samirrijal/placedesk/internal/adapters/postgres"
	"github.com/samirrijal/placedesk/internal/adapters/valkey"
	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
	"github.com/samirrijal/placedesk/internal/core/usecases"
	"github.com/samirrijal/placedesk/internal/pkg/config"
	"github.com/samirrijal/placedesk/internal/pkg/logging"
	"github.com/samirrijal/placedesk/internal/workflows"
)

func main() {
	cfg, err := config.Load("placedesk-auditor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var geocoder ports.ReverseGeocoder = nominatim.New(nominatim.Config{
		BaseURL:         cfg.Geocoder.BaseURL,
		UserAgent:       cfg.Geocoder.UserAgent,
		DomesticCountry: cfg.Geocoder.DomesticCountry,
		Timeout:         cfg.Geocoder.Timeout,
	})
	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, geocoding uncached", "error", err)
	} else {
		defer cache.Close()
		geocoder = nominatim.NewCached(geocoder, cache, cfg.Geocoder.CacheTTL)
	}

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, audit reports not published", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	audits := usecases.NewAuditService(postgres.NewPlaceRepo(db), geocoder, publisher, cfg.Geocoder.Language, cfg.Geocoder.Timeout)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.AddressAuditWorkflow)
	w.RegisterActivity(&workflows.AuditActivities{Audits: audits})

	// Confirmed writes that move a place or change its address trigger an audit
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, "auditor")
	if err != nil {
		slog.Warn("nats subscriber unavailable, only scheduled audits will run", "error", err)
	} else {
		defer sub.Close()
		err = sub.SubscribePlaceUpdated(ctx, func(ctx context.Context, event *domain.PlaceUpdatedEvent) error {
			if !workflows.NeedsAudit(event) {
				return nil
			}
			_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
				ID:        workflows.AuditWorkflowID(event.PlaceID),
				TaskQueue: cfg.Temporal.TaskQueue,
			}, workflows.AddressAuditWorkflow, workflows.AddressAuditInput{
				PlaceIDs: []string{event.PlaceID},
				Reason:   "place updated",
			})
			var started *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(err, &started) {
				return nil
			}
			if err != nil {
				slog.Error("start audit workflow", "place_id", event.PlaceID, "error", err)
			}
			return err
		})
		if err != nil {
			log.Fatalf("subscribe place updates: %v", err)
		}
	}

	slog.Info("auditor worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
