package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/placedesk/internal/core/domain"
)

// Subjects used on the PLACES stream.
const (
	SubjectCandidates = "places.candidates."
	SubjectUpdated    = "places.updated."
	SubjectAudits     = "places.audits."
	SubjectAll        = "places.>"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStream(js); err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, js: js}, nil
}

func ensureStream(js nats.JetStreamContext) error {
	cfg := nats.StreamConfig{
		Name:      "PLACES",
		Subjects:  []string{SubjectAll},
		Retention: nats.InterestPolicy,
		MaxAge:    72 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist; try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// PublishCandidateReady announces a finished reconciliation run.
func (p *Publisher) PublishCandidateReady(ctx context.Context, event *domain.CandidateReadyEvent) error {
	return p.publish(ctx, SubjectCandidates+event.PlaceID, event)
}

// PublishPlaceUpdated announces a confirmed write.
func (p *Publisher) PublishPlaceUpdated(ctx context.Context, event *domain.PlaceUpdatedEvent) error {
	return p.publish(ctx, SubjectUpdated+event.PlaceID, event)
}

// PublishAuditReport announces the outcome of an address audit.
func (p *Publisher) PublishAuditReport(ctx context.Context, report *domain.AuditReport) error {
	return p.publish(ctx, SubjectAudits+report.PlaceID, report)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
