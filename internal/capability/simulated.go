package capability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/model"
)

// ScalingHandler simulates horizontal and vertical scaling operations.
type ScalingHandler struct {
	logger *zap.Logger
}

// NewScalingHandler creates a handler for scale_out and scale_up actions.
func NewScalingHandler(logger *zap.Logger) *ScalingHandler {
	return &ScalingHandler{logger: logger}
}

// Execute performs the scaling operation described by the action.
func (h *ScalingHandler) Execute(ctx context.Context, action *model.ResolutionAction) (*Result, error) {
	switch action.Type {
	case model.ActionScaleOut:
		target, _ := model.MetricNumber(action.Parameters, "target_instances")
		h.logger.Info("Scaling out",
			zap.Int("target_instances", int(target)),
			zap.String("action_id", action.ID))
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Successfully scaled out to %d instances", int(target)),
			Details: map[string]interface{}{
				"new_instances": int(target),
			},
		}, nil
	case model.ActionScaleUp:
		sku, _ := action.Parameters["new_sku"].(string)
		h.logger.Info("Scaling up", zap.String("new_sku", sku))
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Successfully scaled up to %s", sku),
			Details: map[string]interface{}{"new_sku": sku},
		}, nil
	}
	return nil, fmt.Errorf("scaling handler cannot execute action type %s", action.Type)
}

// ServiceHandler simulates service restarts and cache clears.
type ServiceHandler struct {
	logger *zap.Logger
}

// NewServiceHandler creates a handler for restart_service and clear_cache actions.
func NewServiceHandler(logger *zap.Logger) *ServiceHandler {
	return &ServiceHandler{logger: logger}
}

// Execute performs the service operation described by the action.
func (h *ServiceHandler) Execute(ctx context.Context, action *model.ResolutionAction) (*Result, error) {
	switch action.Type {
	case model.ActionRestartService:
		name, _ := action.Parameters["service_name"].(string)
		graceful, _ := action.Parameters["graceful_shutdown"].(bool)
		h.logger.Info("Restarting service",
			zap.String("service_name", name),
			zap.Bool("graceful", graceful))
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Successfully restarted service %s", name),
			Details: map[string]interface{}{
				"graceful_shutdown": graceful,
				"restart_time":      time.Now().UTC().Format(time.RFC3339),
			},
		}, nil
	case model.ActionClearCache:
		cacheType, _ := action.Parameters["cache_type"].(string)
		h.logger.Info("Clearing cache", zap.String("cache_type", cacheType))
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Successfully cleared %s", cacheType),
			Details: map[string]interface{}{"cache_type": cacheType},
		}, nil
	}
	return nil, fmt.Errorf("service handler cannot execute action type %s", action.Type)
}

// ConfigHandler simulates configuration and database tuning operations.
type ConfigHandler struct {
	logger *zap.Logger
}

// NewConfigHandler creates a handler for update_config and optimize_database actions.
func NewConfigHandler(logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{logger: logger}
}

// Execute applies the configuration change described by the action.
func (h *ConfigHandler) Execute(ctx context.Context, action *model.ResolutionAction) (*Result, error) {
	switch action.Type {
	case model.ActionUpdateConfig:
		h.logger.Info("Updating application configuration")
		return &Result{
			Success: true,
			Message: "Configuration updated successfully",
			Details: map[string]interface{}{
				"changes_applied": action.Parameters["config_changes"],
			},
		}, nil
	case model.ActionOptimizeDatabase:
		h.logger.Info("Optimizing database configuration")
		optimizations := make([]string, 0, len(action.Parameters))
		for key := range action.Parameters {
			optimizations = append(optimizations, key)
		}
		return &Result{
			Success: true,
			Message: "Database configuration optimized",
			Details: map[string]interface{}{
				"optimizations_applied": optimizations,
			},
		}, nil
	}
	return nil, fmt.Errorf("config handler cannot execute action type %s", action.Type)
}

// DeploymentHandler simulates deployment rollbacks and circuit breaker setup.
type DeploymentHandler struct {
	logger *zap.Logger
}

// NewDeploymentHandler creates a handler for rollback_deployment and circuit_breaker actions.
func NewDeploymentHandler(logger *zap.Logger) *DeploymentHandler {
	return &DeploymentHandler{logger: logger}
}

// Execute performs the deployment operation described by the action.
func (h *DeploymentHandler) Execute(ctx context.Context, action *model.ResolutionAction) (*Result, error) {
	switch action.Type {
	case model.ActionRollbackDeployment:
		version, _ := action.Parameters["target_version"].(string)
		h.logger.Info("Rolling back deployment", zap.String("target_version", version))
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Successfully rolled back to version %s", version),
			Details: map[string]interface{}{"target_version": version},
		}, nil
	case model.ActionCircuitBreaker:
		threshold, _ := model.MetricNumber(action.Parameters, "failure_threshold")
		h.logger.Info("Enabling circuit breaker", zap.Int("failure_threshold", int(threshold)))
		return &Result{
			Success: true,
			Message: "Circuit breaker enabled successfully",
			Details: map[string]interface{}{"failure_threshold": int(threshold)},
		}, nil
	}
	return nil, fmt.Errorf("deployment handler cannot execute action type %s", action.Type)
}

// RegisterSimulated fills a registry with simulated handlers for every
// action type.
func RegisterSimulated(registry *Registry, logger *zap.Logger) {
	scaling := NewScalingHandler(logger)
	service := NewServiceHandler(logger)
	config := NewConfigHandler(logger)
	deployment := NewDeploymentHandler(logger)

	registry.Register(model.ActionScaleOut, scaling)
	registry.Register(model.ActionScaleUp, scaling)
	registry.Register(model.ActionRestartService, service)
	registry.Register(model.ActionClearCache, service)
	registry.Register(model.ActionUpdateConfig, config)
	registry.Register(model.ActionOptimizeDatabase, config)
	registry.Register(model.ActionRollbackDeployment, deployment)
	registry.Register(model.ActionCircuitBreaker, deployment)
}
