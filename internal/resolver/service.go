package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/event"
	"github.com/phoenixops/incident-engine/internal/model"
	"github.com/phoenixops/incident-engine/internal/planner"
)

var (
	// ErrNoPendingPlan is returned when an approval arrives for an incident
	// without a parked plan
	ErrNoPendingPlan = errors.New("no pending plan awaiting approval")
)

// Service consumes resolution_request envelopes, plans corrective actions and
// executes them, gating high-risk plans behind human approval. Results go
// back to the orchestrator as resolution_result envelopes.
type Service struct {
	logger   *zap.Logger
	agentID  string
	planner  *planner.Planner
	executor *Executor
	bus      event.Publisher

	mu      sync.Mutex
	pending map[string]*model.ResolutionPlan // incident id -> plan awaiting approval
}

// NewService creates a resolution service.
func NewService(p *planner.Planner, e *Executor, bus event.Publisher, logger *zap.Logger) *Service {
	return &Service{
		logger:   logger.Named("resolution-service"),
		agentID:  fmt.Sprintf("resolution-%s", uuid.New().String()[:8]),
		planner:  p,
		executor: e,
		bus:      bus,
		pending:  make(map[string]*model.ResolutionPlan),
	}
}

// HandleResolutionRequest plans and, unless approval is required, executes
// the resolution for the incident carried by the envelope.
func (s *Service) HandleResolutionRequest(ctx context.Context, env *event.Envelope) error {
	if env.IncidentData == nil || env.Diagnosis == nil {
		return fmt.Errorf("resolution_request for %s missing incident or diagnosis payload", env.IncidentID)
	}

	incident := env.IncidentData
	plan := s.planner.Plan(incident, env.Diagnosis)

	if plan.RequiresApproval {
		return s.RequestApproval(ctx, plan)
	}

	return s.executeAndReport(ctx, plan)
}

// RequestApproval parks the plan and emits an approval_request envelope for
// human review. The executor is not invoked until an approving
// approval_response arrives.
func (s *Service) RequestApproval(ctx context.Context, plan *model.ResolutionPlan) error {
	s.mu.Lock()
	s.pending[plan.IncidentID] = plan
	s.mu.Unlock()

	env := &event.Envelope{
		EventType:   event.TypeApprovalRequest,
		IncidentID:  plan.IncidentID,
		Plan:        plan,
		Timestamp:   time.Now().UTC(),
		SourceAgent: s.agentID,
	}

	if err := s.bus.Publish(ctx, env); err != nil {
		return fmt.Errorf("failed to publish approval request: %w", err)
	}

	s.logger.Info("Approval requested",
		zap.String("incident_id", plan.IncidentID),
		zap.String("risk_level", string(plan.RiskLevel)))
	return nil
}

// HandleApprovalResponse resumes or rejects a parked plan. A denial reports a
// failed resolution so the orchestrator escalates; the denied plan is
// discarded, never mutated.
func (s *Service) HandleApprovalResponse(ctx context.Context, env *event.Envelope) error {
	if env.Approval == nil {
		return fmt.Errorf("approval_response for %s missing approval payload", env.IncidentID)
	}

	s.mu.Lock()
	plan, ok := s.pending[env.IncidentID]
	if ok {
		delete(s.pending, env.IncidentID)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("Approval response for unknown plan",
			zap.String("incident_id", env.IncidentID))
		return ErrNoPendingPlan
	}

	if env.Approval.Decision != model.ApprovalApprove {
		s.logger.Warn("Resolution plan denied",
			zap.String("incident_id", env.IncidentID),
			zap.String("responder", env.Approval.Responder))
		return s.publishResult(ctx, &model.ResolutionResult{
			IncidentID: env.IncidentID,
			Success:    false,
			Message:    fmt.Sprintf("resolution plan denied by %s", env.Approval.Responder),
		})
	}

	s.logger.Info("Resolution plan approved",
		zap.String("incident_id", env.IncidentID),
		zap.String("responder", env.Approval.Responder))
	return s.executeAndReport(ctx, plan)
}

// PendingPlan returns the plan parked for an incident, if any.
func (s *Service) PendingPlan(incidentID string) (*model.ResolutionPlan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.pending[incidentID]
	return plan, ok
}

func (s *Service) executeAndReport(ctx context.Context, plan *model.ResolutionPlan) error {
	result := s.executor.Execute(ctx, plan)
	return s.publishResult(ctx, result)
}

func (s *Service) publishResult(ctx context.Context, result *model.ResolutionResult) error {
	success := result.Success
	env := &event.Envelope{
		EventType:    event.TypeResolutionResult,
		IncidentID:   result.IncidentID,
		Success:      &success,
		ActionsTaken: result.ActionsTaken,
		Message:      result.Message,
		Timestamp:    time.Now().UTC(),
		SourceAgent:  s.agentID,
	}

	if err := s.bus.Publish(ctx, env); err != nil {
		return fmt.Errorf("failed to publish resolution result: %w", err)
	}
	return nil
}
