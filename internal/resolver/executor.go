package resolver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/capability"
	"github.com/phoenixops/incident-engine/internal/model"
)

// SafetyLimits are hard ceilings automated actions may not exceed.
type SafetyLimits struct {
	MaxScaleInstances int
	CooldownPeriod    time.Duration
}

// DefaultSafetyLimits returns the stock limits.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		MaxScaleInstances: 20,
		CooldownPeriod:    5 * time.Minute,
	}
}

// ExecutorConfig defines configuration for the resolution executor
type ExecutorConfig struct {
	ExecutionTimeout time.Duration
	RollbackEnabled  bool
	Limits           SafetyLimits
}

// Executor runs a resolution plan's actions strictly in order against the
// capability registry, enforcing safety limits and triggering rollback on
// failure. Plans for different incidents may execute concurrently; actions
// within one plan never do.
type Executor struct {
	logger   *zap.Logger
	registry *capability.Registry
	config   ExecutorConfig
}

// NewExecutor creates a resolution executor.
func NewExecutor(registry *capability.Registry, config ExecutorConfig, logger *zap.Logger) *Executor {
	if config.Limits.MaxScaleInstances == 0 {
		config.Limits = DefaultSafetyLimits()
	}
	return &Executor{
		logger:   logger.Named("resolution-executor"),
		registry: registry,
		config:   config,
	}
}

// Execute runs every action in the plan and returns the aggregate result.
// A failed action does not abort the remaining actions; overall success is
// the logical AND of all action successes.
func (e *Executor) Execute(ctx context.Context, plan *model.ResolutionPlan) *model.ResolutionResult {
	results := make([]model.ActionResult, 0, len(plan.Actions))
	success := true

	for i := range plan.Actions {
		action := &plan.Actions[i]
		result := e.executeAction(ctx, action)
		results = append(results, result)
		if !result.Success {
			success = false
		}
	}

	e.logger.Info("Plan execution finished",
		zap.String("incident_id", plan.IncidentID),
		zap.Bool("success", success),
		zap.Int("actions", len(results)))

	return &model.ResolutionResult{
		IncidentID:   plan.IncidentID,
		Success:      success,
		ActionsTaken: results,
	}
}

func (e *Executor) executeAction(ctx context.Context, action *model.ResolutionAction) model.ActionResult {
	started := time.Now()
	action.Status = model.ActionStatusExecuting
	action.StartedAt = &started

	result := e.invoke(ctx, action)

	completed := time.Now()
	action.CompletedAt = &completed
	duration := completed.Sub(started).Seconds()

	if result.Success {
		action.Status = model.ActionStatusCompleted
	} else {
		action.Status = model.ActionStatusFailed
		if e.config.RollbackEnabled && action.Rollback != nil {
			e.rollback(ctx, action)
		}
	}

	action.Result = map[string]interface{}{
		"success": result.Success,
		"message": result.Message,
		"details": result.Details,
	}

	e.logger.Info("Action executed",
		zap.String("action_id", action.ID),
		zap.String("type", string(action.Type)),
		zap.String("status", string(action.Status)),
		zap.Float64("duration", duration))

	return model.ActionResult{
		ActionID:    action.ID,
		Type:        action.Type,
		Description: action.Description,
		Status:      action.Status,
		Success:     result.Success,
		Message:     result.Message,
		Duration:    duration,
	}
}

// invoke checks safety limits and dispatches to the capability handler. Limit
// violations fail fast and never reach the capability call.
func (e *Executor) invoke(ctx context.Context, action *model.ResolutionAction) *capability.Result {
	if action.Type == model.ActionScaleOut || action.Type == model.ActionScaleUp {
		if target, ok := model.MetricNumber(action.Parameters, "target_instances"); ok {
			if int(target) > e.config.Limits.MaxScaleInstances {
				return &capability.Result{
					Success: false,
					Message: fmt.Sprintf("safety limit exceeded: target instances (%d) above maximum (%d)",
						int(target), e.config.Limits.MaxScaleInstances),
				}
			}
		}
	}

	handler, err := e.registry.Lookup(action.Type)
	if err != nil {
		return &capability.Result{Success: false, Message: err.Error()}
	}

	execCtx := ctx
	if e.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.config.ExecutionTimeout)
		defer cancel()
	}

	result, err := handler.Execute(execCtx, action)
	if err != nil {
		return &capability.Result{
			Success: false,
			Message: fmt.Sprintf("action execution failed: %v", err),
		}
	}
	return result
}

// rollback executes the compensating action synchronously through the same
// handler dispatch. The original action becomes rolled_back only if the
// rollback itself succeeds; otherwise it stays failed.
func (e *Executor) rollback(ctx context.Context, action *model.ResolutionAction) {
	rb := action.Rollback
	started := time.Now()
	rb.Status = model.ActionStatusExecuting
	rb.StartedAt = &started

	result := e.invoke(ctx, rb)

	completed := time.Now()
	rb.CompletedAt = &completed

	if result.Success {
		rb.Status = model.ActionStatusCompleted
		action.Status = model.ActionStatusRolledBack
		e.logger.Info("Action rolled back",
			zap.String("action_id", action.ID),
			zap.String("rollback_id", rb.ID))
	} else {
		rb.Status = model.ActionStatusFailed
		e.logger.Error("Rollback failed",
			zap.String("action_id", action.ID),
			zap.String("rollback_id", rb.ID),
			zap.String("message", result.Message))
	}
}
