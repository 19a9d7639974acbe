package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/event"
	"github.com/phoenixops/incident-engine/internal/storage"
)

// StatusReporter periodically publishes a status_update envelope for every
// active incident so stakeholders see progress between lifecycle events.
type StatusReporter struct {
	logger   *zap.Logger
	store    storage.IncidentStore
	bus      event.Publisher
	schedule string
	cron     *cron.Cron
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewStatusReporter creates a reporter with a cron schedule such as
// "@every 30s".
func NewStatusReporter(store storage.IncidentStore, bus event.Publisher, schedule string, logger *zap.Logger) *StatusReporter {
	named := logger.Named("status-reporter")
	return &StatusReporter{
		logger:   named,
		store:    store,
		bus:      bus,
		schedule: schedule,
		cron: cron.New(
			cron.WithChain(cron.Recover(&cronLogger{logger: named})),
		),
	}
}

// Start registers the reporting job and starts the cron runner.
func (r *StatusReporter) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		r.report(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add report schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.logger.Info("Status reporter started", zap.String("schedule", r.schedule))
	return nil
}

// Stop halts the cron runner and waits for a running job to finish.
func (r *StatusReporter) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	r.logger.Info("Status reporter stopped")
}

func (r *StatusReporter) report(ctx context.Context) {
	incidents, err := r.store.ListActive(ctx)
	if err != nil {
		r.logger.Error("Failed to list active incidents", zap.Error(err))
		return
	}

	for _, incident := range incidents {
		env := &event.Envelope{
			EventType:    event.TypeStatusUpdate,
			IncidentID:   incident.ID,
			IncidentData: incident,
			Message:      "periodic_status",
			Timestamp:    time.Now().UTC(),
			SourceAgent:  "status-reporter",
		}
		if err := r.bus.Publish(ctx, env); err != nil {
			r.logger.Error("Failed to publish status update",
				zap.String("incident_id", incident.ID),
				zap.Error(err))
		}
	}

	if len(incidents) > 0 {
		r.logger.Debug("Status updates published", zap.Int("incidents", len(incidents)))
	}
}
