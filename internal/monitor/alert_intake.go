package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/model"
)

// AlertSubject is the NATS subject raw monitoring alerts arrive on. It lives
// outside the incident stream because raw alerts are not envelopes.
const AlertSubject = "alerts.raw"

// AlertProcessor turns an alert into a tracked incident.
type AlertProcessor interface {
	ProcessAlert(ctx context.Context, alert *model.Alert) (string, error)
}

// Enricher fills in metrics an alert did not carry.
type Enricher interface {
	Enrich(alert *model.Alert)
}

// AlertIntake decodes raw alert payloads, enriches them with host metrics
// when configured and hands them to the orchestrator. Without enrichment an
// alert arriving bare of metrics would always classify as low severity.
type AlertIntake struct {
	logger    *zap.Logger
	processor AlertProcessor
	enricher  Enricher
}

// NewAlertIntake creates an intake. enricher may be nil, disabling enrichment.
func NewAlertIntake(processor AlertProcessor, enricher Enricher, logger *zap.Logger) *AlertIntake {
	return &AlertIntake{
		logger:    logger.Named("alert-intake"),
		processor: processor,
		enricher:  enricher,
	}
}

// HandleRaw decodes and processes one raw alert payload. It returns the id
// of the created incident.
func (a *AlertIntake) HandleRaw(ctx context.Context, data []byte) (string, error) {
	var alert model.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return "", fmt.Errorf("failed to decode alert: %w", err)
	}

	if a.enricher != nil {
		a.enricher.Enrich(&alert)
	}

	id, err := a.processor.ProcessAlert(ctx, &alert)
	if err != nil {
		return "", fmt.Errorf("failed to process alert: %w", err)
	}

	a.logger.Info("Alert ingested",
		zap.String("incident_id", id),
		zap.String("title", alert.Title))
	return id, nil
}
