package workflow

import (
	"context"
	"errors"
	"time"

	"callqa/internal/events"
	"callqa/internal/logging"
)

// publish sends a lifecycle event. Delivery failures never affect the job.
func (m *Manager) publish(ctx context.Context, event events.Event) {
	if m.publisher == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	if err := m.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger := logging.WithContext(ctx, m.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not publish job event")
			return
		}
		logger.Debug("job event publish failed",
			logging.String("event", string(event.Type)),
			logging.Error(err),
		)
	}
}
