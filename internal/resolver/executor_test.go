package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/capability"
	"github.com/phoenixops/incident-engine/internal/model"
)

// scriptedHandler returns canned results per action ID and records the order
// in which actions reached it.
type scriptedHandler struct {
	results map[string]*capability.Result
	err     error
	calls   []string
}

func (h *scriptedHandler) Execute(ctx context.Context, action *model.ResolutionAction) (*capability.Result, error) {
	h.calls = append(h.calls, action.ID)
	if h.err != nil {
		return nil, h.err
	}
	if result, ok := h.results[action.ID]; ok {
		return result, nil
	}
	return &capability.Result{Success: true, Message: "ok"}, nil
}

func newTestExecutor(handler capability.Handler, rollback bool) *Executor {
	registry := capability.NewRegistry()
	for _, t := range []model.ActionType{
		model.ActionScaleOut, model.ActionScaleUp, model.ActionRestartService,
		model.ActionClearCache, model.ActionUpdateConfig,
	} {
		registry.Register(t, handler)
	}
	return NewExecutor(registry, ExecutorConfig{
		ExecutionTimeout: time.Second,
		RollbackEnabled:  rollback,
		Limits:           SafetyLimits{MaxScaleInstances: 20, CooldownPeriod: time.Minute},
	}, zap.NewNop())
}

func action(id string, t model.ActionType, params map[string]interface{}) model.ResolutionAction {
	return model.ResolutionAction{
		ID:          id,
		Type:        t,
		Description: string(t),
		Parameters:  params,
		Status:      model.ActionStatusPending,
	}
}

func TestExecuteRunsActionsInOrder(t *testing.T) {
	handler := &scriptedHandler{}
	e := newTestExecutor(handler, true)

	plan := &model.ResolutionPlan{
		IncidentID: "INC-1",
		Actions: []model.ResolutionAction{
			action("a1", model.ActionClearCache, nil),
			action("a2", model.ActionScaleOut, map[string]interface{}{"target_instances": 3}),
		},
	}

	result := e.Execute(context.Background(), plan)

	assert.True(t, result.Success)
	assert.Equal(t, "INC-1", result.IncidentID)
	require.Len(t, result.ActionsTaken, 2)
	assert.Equal(t, []string{"a1", "a2"}, handler.calls)
	for _, r := range result.ActionsTaken {
		assert.Equal(t, model.ActionStatusCompleted, r.Status)
		assert.True(t, r.Success)
		assert.GreaterOrEqual(t, r.Duration, 0.0)
	}
	assert.Equal(t, model.ActionStatusCompleted, plan.Actions[0].Status)
	require.NotNil(t, plan.Actions[0].StartedAt)
	require.NotNil(t, plan.Actions[0].CompletedAt)
}

func TestExecuteContinuesPastFailure(t *testing.T) {
	handler := &scriptedHandler{
		results: map[string]*capability.Result{
			"a1": {Success: false, Message: "restart failed"},
		},
	}
	e := newTestExecutor(handler, true)

	plan := &model.ResolutionPlan{
		IncidentID: "INC-2",
		Actions: []model.ResolutionAction{
			action("a1", model.ActionRestartService, nil),
			action("a2", model.ActionClearCache, nil),
		},
	}

	result := e.Execute(context.Background(), plan)

	assert.False(t, result.Success)
	require.Len(t, result.ActionsTaken, 2)
	assert.Equal(t, model.ActionStatusFailed, result.ActionsTaken[0].Status)
	assert.Equal(t, model.ActionStatusCompleted, result.ActionsTaken[1].Status)
	// Both actions reached the handler despite the first failure.
	assert.Equal(t, []string{"a1", "a2"}, handler.calls)
}

func TestExecuteSafetyLimitBlocksBeforeHandler(t *testing.T) {
	handler := &scriptedHandler{}
	e := newTestExecutor(handler, true)

	plan := &model.ResolutionPlan{
		IncidentID: "INC-3",
		Actions: []model.ResolutionAction{
			action("a1", model.ActionScaleOut, map[string]interface{}{"target_instances": 50}),
		},
	}

	result := e.Execute(context.Background(), plan)

	assert.False(t, result.Success)
	require.Len(t, result.ActionsTaken, 1)
	assert.Equal(t, model.ActionStatusFailed, result.ActionsTaken[0].Status)
	assert.Contains(t, result.ActionsTaken[0].Message, "safety limit exceeded")
	assert.Contains(t, result.ActionsTaken[0].Message, "(50)")
	assert.Contains(t, result.ActionsTaken[0].Message, "(20)")
	// The capability handler must never see a limit-violating action.
	assert.Empty(t, handler.calls)
}

func TestExecuteScaleAtLimitIsAllowed(t *testing.T) {
	handler := &scriptedHandler{}
	e := newTestExecutor(handler, true)

	plan := &model.ResolutionPlan{
		IncidentID: "INC-4",
		Actions: []model.ResolutionAction{
			action("a1", model.ActionScaleUp, map[string]interface{}{"target_instances": 20}),
		},
	}

	result := e.Execute(context.Background(), plan)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"a1"}, handler.calls)
}

func TestExecuteRollbackOnFailure(t *testing.T) {
	t.Run("successful rollback marks action rolled_back", func(t *testing.T) {
		handler := &scriptedHandler{
			results: map[string]*capability.Result{
				"a1": {Success: false, Message: "config update failed"},
				"rb": {Success: true, Message: "restored"},
			},
		}
		e := newTestExecutor(handler, true)

		rollback := action("rb", model.ActionUpdateConfig, map[string]interface{}{"restore_previous": true})
		failing := action("a1", model.ActionUpdateConfig, nil)
		failing.Rollback = &rollback

		plan := &model.ResolutionPlan{IncidentID: "INC-5", Actions: []model.ResolutionAction{failing}}
		result := e.Execute(context.Background(), plan)

		assert.False(t, result.Success)
		require.Len(t, result.ActionsTaken, 1)
		assert.Equal(t, model.ActionStatusRolledBack, result.ActionsTaken[0].Status)
		assert.Equal(t, model.ActionStatusRolledBack, plan.Actions[0].Status)
		assert.Equal(t, model.ActionStatusCompleted, plan.Actions[0].Rollback.Status)
		assert.Equal(t, []string{"a1", "rb"}, handler.calls)
	})

	t.Run("failed rollback leaves action failed", func(t *testing.T) {
		handler := &scriptedHandler{
			results: map[string]*capability.Result{
				"a1": {Success: false, Message: "config update failed"},
				"rb": {Success: false, Message: "restore failed too"},
			},
		}
		e := newTestExecutor(handler, true)

		rollback := action("rb", model.ActionUpdateConfig, nil)
		failing := action("a1", model.ActionUpdateConfig, nil)
		failing.Rollback = &rollback

		plan := &model.ResolutionPlan{IncidentID: "INC-6", Actions: []model.ResolutionAction{failing}}
		result := e.Execute(context.Background(), plan)

		assert.False(t, result.Success)
		assert.Equal(t, model.ActionStatusFailed, result.ActionsTaken[0].Status)
		assert.Equal(t, model.ActionStatusFailed, plan.Actions[0].Rollback.Status)
	})

	t.Run("rollback disabled", func(t *testing.T) {
		handler := &scriptedHandler{
			results: map[string]*capability.Result{
				"a1": {Success: false, Message: "failed"},
			},
		}
		e := newTestExecutor(handler, false)

		rollback := action("rb", model.ActionUpdateConfig, nil)
		failing := action("a1", model.ActionUpdateConfig, nil)
		failing.Rollback = &rollback

		plan := &model.ResolutionPlan{IncidentID: "INC-7", Actions: []model.ResolutionAction{failing}}
		result := e.Execute(context.Background(), plan)

		assert.Equal(t, model.ActionStatusFailed, result.ActionsTaken[0].Status)
		assert.Equal(t, []string{"a1"}, handler.calls)
	})
}

func TestExecuteHandlerErrorBecomesFailedResult(t *testing.T) {
	handler := &scriptedHandler{err: errors.New("connection refused")}
	e := newTestExecutor(handler, true)

	plan := &model.ResolutionPlan{
		IncidentID: "INC-8",
		Actions:    []model.ResolutionAction{action("a1", model.ActionClearCache, nil)},
	}

	result := e.Execute(context.Background(), plan)

	assert.False(t, result.Success)
	assert.Contains(t, result.ActionsTaken[0].Message, "action execution failed")
	assert.Contains(t, result.ActionsTaken[0].Message, "connection refused")
}

func TestExecuteUnknownActionTypeFails(t *testing.T) {
	e := NewExecutor(capability.NewRegistry(), ExecutorConfig{
		RollbackEnabled: true,
		Limits:          DefaultSafetyLimits(),
	}, zap.NewNop())

	plan := &model.ResolutionPlan{
		IncidentID: "INC-9",
		Actions:    []model.ResolutionAction{action("a1", model.ActionCircuitBreaker, nil)},
	}

	result := e.Execute(context.Background(), plan)

	assert.False(t, result.Success)
	assert.Equal(t, model.ActionStatusFailed, result.ActionsTaken[0].Status)
}
