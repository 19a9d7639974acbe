package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/capability"
	"github.com/phoenixops/incident-engine/internal/event"
	"github.com/phoenixops/incident-engine/internal/model"
	"github.com/phoenixops/incident-engine/internal/planner"
)

// recordingPublisher captures envelopes instead of touching NATS.
type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []*event.Envelope
}

func (p *recordingPublisher) Publish(ctx context.Context, env *event.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, env)
	return nil
}

func (p *recordingPublisher) byType(t event.Type) []*event.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*event.Envelope
	for _, env := range p.envelopes {
		if env.EventType == t {
			out = append(out, env)
		}
	}
	return out
}

// countingHandler succeeds always and counts invocations.
type countingHandler struct {
	mu    sync.Mutex
	count int
}

func (h *countingHandler) Execute(ctx context.Context, action *model.ResolutionAction) (*capability.Result, error) {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()
	return &capability.Result{Success: true, Message: "done"}, nil
}

func (h *countingHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func newTestService(t *testing.T) (*Service, *recordingPublisher, *countingHandler) {
	t.Helper()

	handler := &countingHandler{}
	registry := capability.NewRegistry()
	for _, at := range []model.ActionType{
		model.ActionScaleOut, model.ActionScaleUp, model.ActionRestartService,
		model.ActionClearCache, model.ActionOptimizeDatabase,
		model.ActionUpdateConfig, model.ActionRollbackDeployment,
		model.ActionCircuitBreaker,
	} {
		registry.Register(at, handler)
	}

	logger := zap.NewNop()
	p := planner.NewPlanner(planner.Config{
		ServiceName:   "app-service",
		ResourceGroup: "production",
		DatabaseName:  "appdb",
	}, nil, logger)
	executor := NewExecutor(registry, ExecutorConfig{
		ExecutionTimeout: time.Second,
		RollbackEnabled:  true,
		Limits:           DefaultSafetyLimits(),
	}, logger)

	bus := &recordingPublisher{}
	return NewService(p, executor, bus, logger), bus, handler
}

func resolutionRequest(incidentID string, severity model.Severity, confidence float64, rootCause string) *event.Envelope {
	return &event.Envelope{
		EventType:  event.TypeResolutionRequest,
		IncidentID: incidentID,
		IncidentData: &model.Incident{
			ID:       incidentID,
			Title:    "test incident",
			Severity: severity,
			Status:   model.StatusResolving,
		},
		Diagnosis: &model.Diagnosis{
			RootCause:  rootCause,
			Confidence: confidence,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestHandleResolutionRequestExecutesDirectly(t *testing.T) {
	s, bus, handler := newTestService(t)

	env := resolutionRequest("INC-1", model.SeverityHigh, 0.9, "database latency")
	require.NoError(t, s.HandleResolutionRequest(context.Background(), env))

	results := bus.byType(event.TypeResolutionResult)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Success)
	assert.True(t, *results[0].Success)
	assert.Equal(t, "INC-1", results[0].IncidentID)
	assert.Len(t, results[0].ActionsTaken, 2)
	assert.Equal(t, 2, handler.calls())

	assert.Empty(t, bus.byType(event.TypeApprovalRequest))
	_, pending := s.PendingPlan("INC-1")
	assert.False(t, pending)
}

func TestHandleResolutionRequestParksHighRiskPlan(t *testing.T) {
	s, bus, handler := newTestService(t)

	// Low confidence forces approval regardless of category.
	env := resolutionRequest("INC-2", model.SeverityHigh, 0.5, "database latency")
	require.NoError(t, s.HandleResolutionRequest(context.Background(), env))

	// Nothing executed, plan parked, approval requested.
	assert.Equal(t, 0, handler.calls())
	assert.Empty(t, bus.byType(event.TypeResolutionResult))

	requests := bus.byType(event.TypeApprovalRequest)
	require.Len(t, requests, 1)
	require.NotNil(t, requests[0].Plan)
	assert.Equal(t, "INC-2", requests[0].IncidentID)
	assert.Equal(t, model.RiskHigh, requests[0].Plan.RiskLevel)

	plan, pending := s.PendingPlan("INC-2")
	require.True(t, pending)
	assert.Equal(t, "INC-2", plan.IncidentID)
}

func TestHandleApprovalResponseApprove(t *testing.T) {
	s, bus, handler := newTestService(t)

	require.NoError(t, s.HandleResolutionRequest(context.Background(),
		resolutionRequest("INC-3", model.SeverityCritical, 0.5, "memory leak")))
	require.Equal(t, 0, handler.calls())

	approval := &event.Envelope{
		EventType:  event.TypeApprovalResponse,
		IncidentID: "INC-3",
		Approval:   &model.Approval{Decision: model.ApprovalApprove, Responder: "oncall-sre"},
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, s.HandleApprovalResponse(context.Background(), approval))

	assert.Greater(t, handler.calls(), 0)
	results := bus.byType(event.TypeResolutionResult)
	require.Len(t, results, 1)
	assert.True(t, *results[0].Success)

	_, pending := s.PendingPlan("INC-3")
	assert.False(t, pending)
}

func TestHandleApprovalResponseDeny(t *testing.T) {
	s, bus, handler := newTestService(t)

	require.NoError(t, s.HandleResolutionRequest(context.Background(),
		resolutionRequest("INC-4", model.SeverityCritical, 0.5, "memory leak")))

	denial := &event.Envelope{
		EventType:  event.TypeApprovalResponse,
		IncidentID: "INC-4",
		Approval:   &model.Approval{Decision: model.ApprovalDeny, Responder: "oncall-sre"},
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, s.HandleApprovalResponse(context.Background(), denial))

	// Denial never executes; a failed result is reported instead.
	assert.Equal(t, 0, handler.calls())
	results := bus.byType(event.TypeResolutionResult)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Success)
	assert.False(t, *results[0].Success)
	assert.Contains(t, results[0].Message, "denied by oncall-sre")

	_, pending := s.PendingPlan("INC-4")
	assert.False(t, pending)
}

func TestHandleApprovalResponseWithoutPendingPlan(t *testing.T) {
	s, _, _ := newTestService(t)

	env := &event.Envelope{
		EventType:  event.TypeApprovalResponse,
		IncidentID: "INC-missing",
		Approval:   &model.Approval{Decision: model.ApprovalApprove, Responder: "oncall-sre"},
	}
	err := s.HandleApprovalResponse(context.Background(), env)
	assert.ErrorIs(t, err, ErrNoPendingPlan)
}

func TestHandleResolutionRequestMissingPayload(t *testing.T) {
	s, _, _ := newTestService(t)

	err := s.HandleResolutionRequest(context.Background(), &event.Envelope{
		EventType:  event.TypeResolutionRequest,
		IncidentID: "INC-5",
	})
	assert.Error(t, err)
}

func TestHandleApprovalResponseMissingPayload(t *testing.T) {
	s, _, _ := newTestService(t)

	err := s.HandleApprovalResponse(context.Background(), &event.Envelope{
		EventType:  event.TypeApprovalResponse,
		IncidentID: "INC-6",
	})
	assert.Error(t, err)
}
