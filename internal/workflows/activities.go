package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/usecases"
)

// Activity names registered by the auditor worker.
const (
	ActivityAuditPlace    = "AuditPlace"
	ActivityPublishReport = "PublishReport"
)

// AuditActivities holds the activity implementations for the address audit workflow.
type AuditActivities struct {
	Audits *usecases.AuditService
}

// AuditPlace compares one place's stored address with reverse geocoding.
// A missing place is not retried.
func (a *AuditActivities) AuditPlace(ctx context.Context, placeID string) (*domain.AuditReport, error) {
	report, err := a.Audits.Audit(ctx, placeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("place %s not found", placeID), "PlaceNotFound", err)
	}
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "address audited", "place_id", placeID, "status", report.Status)
	return report, nil
}

// PublishReport announces an audit report on the event stream.
func (a *AuditActivities) PublishReport(ctx context.Context, report *domain.AuditReport) error {
	if err := a.Audits.Publish(ctx, report); err != nil {
		return fmt.Errorf("publish audit report %s: %w", report.PlaceID, err)
	}
	return nil
}
