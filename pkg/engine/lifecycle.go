package engine

import (
	"context"
	"log/slog"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/jonboulle/clockwork"
)

// lifecycle publishes run events for host monitoring. Publishing never fails a run.
type lifecycle struct {
	publisher eventbus.EventPublisher
	workerID  string
	clock     clockwork.Clock
	logger    *slog.Logger
}

func (l *lifecycle) publish(ctx context.Context, event events.RunEvent) {
	if l.publisher == nil {
		return
	}

	event.WorkerID = l.workerID

	if err := l.publisher.Publish(ctx, event.RunID, event); err != nil {
		l.logger.WarnContext(ctx, "Failed to publish run event",
			"event_type", event.Type,
			"run_id", event.RunID,
			"error", err,
		)
	}
}

func (l *lifecycle) runEvent(ctx context.Context, eventType events.EventType, run *models.WorkflowRun) {
	l.publish(ctx, events.NewRunEvent(eventType, run, l.clock.Now()))
}

func (l *lifecycle) stepEvent(ctx context.Context, run *models.WorkflowRun, result models.StepResult) {
	eventType := events.RunStepSucceededEvent
	if result.Status == models.StepStatusFailed {
		eventType = events.RunStepFailedEvent
	}

	l.publish(ctx, events.NewRunEvent(eventType, run, l.clock.Now()).WithStep(result.Index, result.Error))
}

// terminalEvent maps a terminal status to its lifecycle event.
func terminalEvent(status models.RunStatus) events.EventType {
	switch status {
	case models.RunStatusFailed:
		return events.RunFailedEvent
	case models.RunStatusCancelled:
		return events.RunCancelledEvent
	default:
		return events.RunCompletedEvent
	}
}
