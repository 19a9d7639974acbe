package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/classifier"
	"github.com/phoenixops/incident-engine/internal/event"
	"github.com/phoenixops/incident-engine/internal/metrics"
	"github.com/phoenixops/incident-engine/internal/model"
	"github.com/phoenixops/incident-engine/internal/storage"
)

// Config defines configuration for the orchestrator
type Config struct {
	// ResponseTimeout is the budget an incident has to make progress before
	// the supervisor forces escalation.
	ResponseTimeout time.Duration

	// MaxRetries bounds event dispatch retries.
	MaxRetries int

	// DiagnosisConfidenceThreshold is the minimum confidence for automatic
	// resolution. Below it the incident escalates.
	DiagnosisConfidenceThreshold float64
}

// DefaultConfig returns the stock orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		ResponseTimeout:              5 * time.Minute,
		MaxRetries:                   3,
		DiagnosisConfidenceThreshold: 0.8,
	}
}

// incidentEntry guards one active incident against concurrent response
// handlers. Transitions for a single incident are serialized on mu.
type incidentEntry struct {
	mu       sync.Mutex
	incident *model.Incident
}

// Orchestrator owns each incident's lifecycle: it creates incidents from
// alerts, assigns agents, dispatches events and applies the decision rules
// that translate agent responses into the next transition. It is the sole
// writer of incident state.
type Orchestrator struct {
	logger     *zap.Logger
	agentID    string
	config     Config
	classifier *classifier.SeverityClassifier
	store      storage.IncidentStore
	bus        event.Publisher
	supervisor *Supervisor

	mu     sync.RWMutex
	active map[string]*incidentEntry
}

// New creates an orchestrator and its escalation supervisor.
func New(c *classifier.SeverityClassifier, store storage.IncidentStore, bus event.Publisher, config Config, logger *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		logger:     logger.Named("orchestrator"),
		agentID:    fmt.Sprintf("orchestrator-%s", uuid.New().String()[:8]),
		config:     config,
		classifier: c,
		store:      store,
		bus:        bus,
		active:     make(map[string]*incidentEntry),
	}
	o.supervisor = NewSupervisor(o, store, config.ResponseTimeout, logger)
	return o
}

// validTransitions is the incident lifecycle graph. Resolved and escalated
// have no outgoing edges.
var validTransitions = map[model.Status][]model.Status{
	model.StatusDetected:  {model.StatusAnalyzing},
	model.StatusAnalyzing: {model.StatusResolving, model.StatusEscalated},
	model.StatusResolving: {model.StatusResolved, model.StatusEscalated},
}

func transitionAllowed(from, to model.Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ProcessAlert turns a monitoring alert into a tracked incident and starts
// the coordinated response. It returns the new incident's id.
func (o *Orchestrator) ProcessAlert(ctx context.Context, alert *model.Alert) (string, error) {
	severity := o.classifier.Classify(ctx, alert)
	now := time.Now().UTC()

	incident := &model.Incident{
		ID:                uuid.New().String(),
		Title:             alert.Title,
		Description:       alert.Description,
		Severity:          severity,
		Status:            model.StatusDetected,
		Source:            alert.Source,
		Metrics:           alert.Metrics,
		CreatedAt:         now,
		UpdatedAt:         now,
		AssignedAgents:    requiredAgents(severity),
		ResolutionActions: []model.ActionResult{},
	}
	if incident.Title == "" {
		incident.Title = "Unknown Incident"
	}
	if incident.Source == "" {
		incident.Source = "monitoring"
	}

	entry := &incidentEntry{incident: incident}
	o.mu.Lock()
	o.active[incident.ID] = entry
	o.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := o.store.Save(ctx, incident); err != nil {
		// An incident that was never persisted must not linger in the
		// active map.
		o.retire(incident.ID)
		return "", fmt.Errorf("failed to persist incident: %w", err)
	}
	metrics.ObserveIncidentCreated(string(severity))

	o.setStatus(incident, model.StatusAnalyzing)
	if err := o.store.Save(ctx, incident); err != nil {
		o.retire(incident.ID)
		return "", fmt.Errorf("failed to persist incident: %w", err)
	}

	if err := o.dispatch(ctx, event.TypeAnalysisRequest, incident, nil); err != nil {
		// Coordination failure: never crash, escalate with the cause.
		o.escalateLocked(ctx, incident, fmt.Sprintf("Coordination failed: %v", err))
		return incident.ID, nil
	}

	o.supervisor.Watch(incident.ID)

	o.logger.Info("Alert processed",
		zap.String("incident_id", incident.ID),
		zap.String("severity", string(severity)),
		zap.Int("assigned_agents", len(incident.AssignedAgents)))

	return incident.ID, nil
}

// requiredAgents determines the agent set for a severity: diagnostic always,
// resolution and communication for high/critical, communication alone for
// medium.
func requiredAgents(severity model.Severity) []model.AgentRole {
	agents := []model.AgentRole{model.AgentDiagnostic}
	switch severity {
	case model.SeverityHigh, model.SeverityCritical:
		agents = append(agents, model.AgentResolution, model.AgentCommunication)
	case model.SeverityMedium:
		agents = append(agents, model.AgentCommunication)
	}
	return agents
}

// HandleAgentResponse applies an agent's envelope to the incident state
// machine. Responses for unknown incidents are logged and ignored; responses
// for terminal incidents are logged and discarded.
func (o *Orchestrator) HandleAgentResponse(ctx context.Context, env *event.Envelope) error {
	entry, ok := o.lookup(ctx, env.IncidentID)
	if !ok {
		o.logger.Warn("Response for unknown incident",
			zap.String("incident_id", env.IncidentID),
			zap.String("event_type", string(env.EventType)))
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	incident := entry.incident
	if incident.Status.Terminal() {
		o.logger.Info("Discarding late response for terminal incident",
			zap.String("incident_id", incident.ID),
			zap.String("status", string(incident.Status)),
			zap.String("event_type", string(env.EventType)))
		return nil
	}

	switch env.EventType {
	case event.TypeDiagnosticResult:
		return o.handleDiagnosticResult(ctx, incident, env)
	case event.TypeResolutionResult:
		return o.handleResolutionResult(ctx, incident, env)
	case event.TypeStatusUpdate:
		o.logger.Info("Status update received",
			zap.String("incident_id", incident.ID),
			zap.String("source_agent", env.SourceAgent))
		return nil
	default:
		// In-vocabulary but unexpected here: a warning, not a failure.
		o.logger.Warn("Unhandled event type",
			zap.String("incident_id", incident.ID),
			zap.String("event_type", string(env.EventType)))
		return nil
	}
}

func (o *Orchestrator) handleDiagnosticResult(ctx context.Context, incident *model.Incident, env *event.Envelope) error {
	diagnosis := env.Diagnosis
	if diagnosis == nil {
		return fmt.Errorf("diagnostic_result for %s missing diagnosis payload", incident.ID)
	}

	if diagnosis.Confidence < o.config.DiagnosisConfidenceThreshold {
		o.escalateLocked(ctx, incident, fmt.Sprintf("Low diagnostic confidence: %v", diagnosis.Confidence))
		return nil
	}

	if incident.HasAgent(model.AgentResolution) {
		o.setStatus(incident, model.StatusResolving)
		if err := o.store.Save(ctx, incident); err != nil {
			o.logger.Error("Failed to persist incident", zap.String("incident_id", incident.ID), zap.Error(err))
		}
		if err := o.dispatch(ctx, event.TypeResolutionRequest, incident, diagnosis); err != nil {
			o.escalateLocked(ctx, incident, fmt.Sprintf("Coordination failed: %v", err))
		}
		return nil
	}

	// Resolution not assigned: notify communication and keep analyzing,
	// awaiting external action.
	if incident.HasAgent(model.AgentCommunication) {
		o.notifyCommunication(ctx, incident, "diagnosis_complete")
	}
	return nil
}

func (o *Orchestrator) handleResolutionResult(ctx context.Context, incident *model.Incident, env *event.Envelope) error {
	if env.Success == nil {
		return fmt.Errorf("resolution_result for %s missing success flag", incident.ID)
	}

	incident.ResolutionActions = append(incident.ResolutionActions, env.ActionsTaken...)

	if !*env.Success {
		o.escalateLocked(ctx, incident, "Automatic resolution failed")
		return nil
	}

	elapsed := time.Now().UTC().Sub(incident.CreatedAt)
	incident.ActualResolutionTime = int(elapsed.Seconds())
	o.setStatus(incident, model.StatusResolved)

	if err := o.store.Save(ctx, incident); err != nil {
		o.logger.Error("Failed to persist incident", zap.String("incident_id", incident.ID), zap.Error(err))
	}
	metrics.ObserveOutcome("resolved", elapsed)
	o.retire(incident.ID)

	if incident.HasAgent(model.AgentCommunication) {
		o.notifyCommunication(ctx, incident, "incident_resolved")
	}

	o.logger.Info("Incident resolved",
		zap.String("incident_id", incident.ID),
		zap.Int("actual_resolution_time", incident.ActualResolutionTime))
	return nil
}

// Escalate forces the terminal escalated transition for an incident,
// recording a human-readable reason. Escalating an already terminal incident
// is a no-op.
func (o *Orchestrator) Escalate(ctx context.Context, incidentID, reason string) error {
	entry, ok := o.lookup(ctx, incidentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrIncidentNotFound, incidentID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.incident.Status.Terminal() {
		return nil
	}
	o.escalateLocked(ctx, entry.incident, reason)
	return nil
}

// escalateLocked performs the escalation transition. Callers hold the
// incident's lock.
func (o *Orchestrator) escalateLocked(ctx context.Context, incident *model.Incident, reason string) {
	incident.Status = model.StatusEscalated
	incident.UpdatedAt = time.Now().UTC()

	if err := o.store.Save(ctx, incident); err != nil {
		o.logger.Error("Failed to persist escalated incident",
			zap.String("incident_id", incident.ID),
			zap.Error(err))
	}
	metrics.ObserveOutcome("escalated", incident.UpdatedAt.Sub(incident.CreatedAt))

	// Publish before retiring: retire cancels the watchdog context this call
	// may be running under, which would abort the publish.
	if incident.HasAgent(model.AgentCommunication) {
		env := &event.Envelope{
			EventType:    event.TypeEscalation,
			IncidentID:   incident.ID,
			IncidentData: incident,
			Reason:       reason,
			Timestamp:    time.Now().UTC(),
			SourceAgent:  o.agentID,
		}
		if err := o.bus.Publish(ctx, env); err != nil {
			o.logger.Error("Failed to publish escalation",
				zap.String("incident_id", incident.ID),
				zap.Error(err))
		}
	}

	o.retire(incident.ID)

	o.logger.Warn("Incident escalated",
		zap.String("incident_id", incident.ID),
		zap.String("reason", reason))
}

// RecordApprovalResponse publishes a human approval decision for a pending
// resolution plan.
func (o *Orchestrator) RecordApprovalResponse(ctx context.Context, incidentID string, decision model.ApprovalDecision, responder string) error {
	env := &event.Envelope{
		EventType:  event.TypeApprovalResponse,
		IncidentID: incidentID,
		Approval: &model.Approval{
			Decision:  decision,
			Responder: responder,
		},
		Timestamp:   time.Now().UTC(),
		SourceAgent: o.agentID,
	}
	if err := o.bus.Publish(ctx, env); err != nil {
		return fmt.Errorf("failed to publish approval response: %w", err)
	}

	o.logger.Info("Approval response recorded",
		zap.String("incident_id", incidentID),
		zap.String("decision", string(decision)),
		zap.String("responder", responder))
	return nil
}

// GetIncident returns an incident by id, preferring the in-memory fast path
// and falling back to the store for retired incidents.
func (o *Orchestrator) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	o.mu.RLock()
	entry, ok := o.active[id]
	o.mu.RUnlock()
	if ok {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		copied := *entry.incident
		return &copied, nil
	}

	incident, err := o.store.Get(ctx, id)
	if err != nil {
		if err == storage.ErrIncidentNotFound {
			return nil, ErrIncidentNotFound
		}
		return nil, err
	}
	return incident, nil
}

// ListActiveIncidents returns all incidents that have not reached a terminal
// status.
func (o *Orchestrator) ListActiveIncidents(ctx context.Context) ([]*model.Incident, error) {
	return o.store.ListActive(ctx)
}

// Stop cancels all supervisor watchdogs.
func (o *Orchestrator) Stop() {
	o.supervisor.StopAll()
}

// lookup finds the incident entry for an id, loading retired or recovered
// incidents from the store on a miss.
func (o *Orchestrator) lookup(ctx context.Context, id string) (*incidentEntry, bool) {
	o.mu.RLock()
	entry, ok := o.active[id]
	o.mu.RUnlock()
	if ok {
		return entry, true
	}

	incident, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, false
	}

	entry = &incidentEntry{incident: incident}
	if !incident.Status.Terminal() {
		o.mu.Lock()
		if existing, raced := o.active[id]; raced {
			entry = existing
		} else {
			o.active[id] = entry
		}
		o.mu.Unlock()
	}
	return entry, true
}

// retire drops an incident from the active fast path and stops its watchdog.
// The persisted record remains for audit. Bounded memory depends on this:
// terminal incidents must not be retained.
func (o *Orchestrator) retire(id string) {
	o.supervisor.Unwatch(id)
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

func (o *Orchestrator) setStatus(incident *model.Incident, status model.Status) {
	if !transitionAllowed(incident.Status, status) {
		// Lifecycle violations indicate a bug; log loudly but do not apply.
		o.logger.Error("Invalid status transition rejected",
			zap.String("incident_id", incident.ID),
			zap.String("from", string(incident.Status)),
			zap.String("to", string(status)))
		return
	}
	incident.Status = status
	incident.UpdatedAt = time.Now().UTC()
}

func (o *Orchestrator) dispatch(ctx context.Context, t event.Type, incident *model.Incident, diagnosis *model.Diagnosis) error {
	env := &event.Envelope{
		EventType:    t,
		IncidentID:   incident.ID,
		IncidentData: incident,
		Diagnosis:    diagnosis,
		Timestamp:    time.Now().UTC(),
		SourceAgent:  o.agentID,
	}

	var err error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if err = o.bus.Publish(ctx, env); err == nil {
			return nil
		}
	}
	return fmt.Errorf("dispatch of %s failed after %d attempts: %w", t, o.config.MaxRetries+1, err)
}

func (o *Orchestrator) notifyCommunication(ctx context.Context, incident *model.Incident, message string) {
	env := &event.Envelope{
		EventType:    event.TypeStatusUpdate,
		IncidentID:   incident.ID,
		IncidentData: incident,
		Message:      message,
		Timestamp:    time.Now().UTC(),
		SourceAgent:  o.agentID,
	}
	if err := o.bus.Publish(ctx, env); err != nil {
		o.logger.Error("Failed to notify communication agent",
			zap.String("incident_id", incident.ID),
			zap.String("message", message),
			zap.Error(err))
	}
}
