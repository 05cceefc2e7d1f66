package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/placedesk/internal/core/domain"
)

// AddressAuditInput is the input for the address audit workflow.
type AddressAuditInput struct {
	PlaceIDs []string
	Reason   string        // what triggered the audit, for the logs
	Interval time.Duration // pause between geocoder calls; defaults to one second
}

// AddressAuditSummary counts the outcome of an audit run.
type AddressAuditSummary struct {
	Statuses map[domain.AuditStatus]int
	Failed   []string // places whose audit could not run
}

// AddressAuditWorkflow audits the stored address of each place in turn and
// publishes every report. Places are spaced by Interval to respect the public
// Nominatim rate limit. A failing place is recorded and skipped.
func AddressAuditWorkflow(ctx workflow.Context, input AddressAuditInput) (*AddressAuditSummary, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting address audit", "places", len(input.PlaceIDs), "reason", input.Reason)

	interval := input.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaximumAttempts: 3,
		},
	})

	summary := &AddressAuditSummary{Statuses: make(map[domain.AuditStatus]int)}
	for i, placeID := range input.PlaceIDs {
		if i > 0 {
			if err := workflow.Sleep(ctx, interval); err != nil {
				return summary, err
			}
		}

		var report domain.AuditReport
		if err := workflow.ExecuteActivity(ctx, ActivityAuditPlace, placeID).Get(ctx, &report); err != nil {
			logger.Warn("audit failed", "place_id", placeID, "error", err)
			summary.Failed = append(summary.Failed, placeID)
			continue
		}
		summary.Statuses[report.Status]++

		if err := workflow.ExecuteActivity(ctx, ActivityPublishReport, &report).Get(ctx, nil); err != nil {
			logger.Warn("publish failed", "place_id", placeID, "error", err)
		}
	}

	logger.Info("Address audit finished", "statuses", summary.Statuses, "failed", len(summary.Failed))
	return summary, nil
}

// NeedsAudit reports whether a confirmed write touched the fields an address
// audit compares.
func NeedsAudit(event *domain.PlaceUpdatedEvent) bool {
	for _, f := range event.Fields {
		if f == "location" || f == "address" {
			return true
		}
	}
	return false
}

// AuditWorkflowID is the workflow ID used for an event-triggered audit of one
// place. Reusing it collapses bursts of updates into one running audit.
func AuditWorkflowID(placeID string) string {
	return "address-audit-" + placeID
}
