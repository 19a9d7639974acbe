package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/model"
)

// InferenceClient is the injected AI capability used for severity
// classification. Implementations call a real model endpoint; tests use
// deterministic fakes.
type InferenceClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// SeverityClassifier turns raw alerts into a severity level. The primary path
// asks the inference capability for a single-word answer; any failure falls
// back to a pure rule ladder so classification never blocks incident creation.
type SeverityClassifier struct {
	logger    *zap.Logger
	inference InferenceClient
	timeout   time.Duration
}

// NewSeverityClassifier creates a classifier. inference may be nil, in which
// case only the rule-based fallback is used.
func NewSeverityClassifier(inference InferenceClient, timeout time.Duration, logger *zap.Logger) *SeverityClassifier {
	return &SeverityClassifier{
		logger:    logger.Named("classifier"),
		inference: inference,
		timeout:   timeout,
	}
}

// Classify returns the severity for an alert. It always returns a value.
func (c *SeverityClassifier) Classify(ctx context.Context, alert *model.Alert) model.Severity {
	if c.inference == nil {
		return FallbackSeverity(alert.Metrics)
	}

	inferCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.inference.Complete(inferCtx, c.buildPrompt(alert))
	if err != nil {
		c.logger.Warn("Inference classification failed, using rule fallback",
			zap.String("title", alert.Title),
			zap.Error(err))
		return FallbackSeverity(alert.Metrics)
	}

	severity, err := parseSeverityAnswer(answer)
	if err != nil {
		c.logger.Warn("Unparsable inference answer, using rule fallback",
			zap.String("answer", answer),
			zap.Error(err))
		return FallbackSeverity(alert.Metrics)
	}

	return severity
}

func (c *SeverityClassifier) buildPrompt(alert *model.Alert) string {
	metrics, err := json.MarshalIndent(alert.Metrics, "", "  ")
	if err != nil {
		metrics = []byte("{}")
	}

	return fmt.Sprintf(`Analyze the following alert and classify its severity:

Title: %s
Description: %s
Metrics: %s

Severity criteria:
- CRITICAL: total service impact, significant revenue loss
- HIGH: severe degradation, multiple users impacted
- MEDIUM: moderate degradation, limited impact
- LOW: minor issues, no significant impact

Answer with exactly one word: CRITICAL, HIGH, MEDIUM or LOW`,
		alert.Title, alert.Description, metrics)
}

func parseSeverityAnswer(answer string) (model.Severity, error) {
	return model.ParseSeverity(strings.TrimSpace(answer))
}

// FallbackSeverity is the deterministic rule ladder over alert metrics. All
// comparisons are strict (exclusive bounds): cpu=90 is not CRITICAL, cpu=91
// is. The function is pure and total.
func FallbackSeverity(metrics map[string]interface{}) model.Severity {
	cpu, _ := model.MetricNumber(metrics, "cpu_percentage")
	memory, _ := model.MetricNumber(metrics, "memory_percentage")
	errorRate, _ := model.MetricNumber(metrics, "error_rate")

	switch {
	case cpu > 90 || memory > 95 || errorRate > 50:
		return model.SeverityCritical
	case cpu > 80 || memory > 85 || errorRate > 20:
		return model.SeverityHigh
	case cpu > 70 || memory > 75 || errorRate > 10:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
