package model

import "time"

// ActionType identifies a corrective action the resolution engine can take
type ActionType string

const (
	ActionScaleOut           ActionType = "scale_out"
	ActionScaleUp            ActionType = "scale_up"
	ActionRestartService     ActionType = "restart_service"
	ActionClearCache         ActionType = "clear_cache"
	ActionOptimizeDatabase   ActionType = "optimize_database"
	ActionUpdateConfig       ActionType = "update_config"
	ActionRollbackDeployment ActionType = "rollback_deployment"
	ActionCircuitBreaker     ActionType = "circuit_breaker"
)

// ActionStatus represents the execution status of a resolution action
type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusExecuting  ActionStatus = "executing"
	ActionStatusCompleted  ActionStatus = "completed"
	ActionStatusFailed     ActionStatus = "failed"
	ActionStatusRolledBack ActionStatus = "rolled_back"
)

// ResolutionAction is a single proposed corrective step. It is created by the
// planner and mutated only by the executor; once it reaches a final status it
// is immutable.
type ResolutionAction struct {
	ID          string                 `json:"id"`
	Type        ActionType             `json:"type"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	Status      ActionStatus           `json:"status"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`

	// Rollback is an optional compensating action, one level deep.
	Rollback *ResolutionAction `json:"rollback_action,omitempty"`
}

// ActionResult is the executed-action record appended to the incident.
type ActionResult struct {
	ActionID    string       `json:"action_id"`
	Type        ActionType   `json:"type"`
	Description string       `json:"description"`
	Status      ActionStatus `json:"status"`
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Duration    float64      `json:"duration"`
}

// RiskLevel classifies how dangerous a resolution plan is
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ResolutionPlan is an ordered list of corrective actions for one incident.
// Plans are immutable once created; a denied or modified plan triggers
// creation of a new plan.
type ResolutionPlan struct {
	IncidentID        string             `json:"incident_id"`
	Actions           []ResolutionAction `json:"actions"`
	EstimatedDuration int                `json:"estimated_duration"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	RequiresApproval  bool               `json:"requires_approval"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ResolutionResult is the outcome of executing a plan.
type ResolutionResult struct {
	IncidentID   string         `json:"incident_id"`
	Success      bool           `json:"success"`
	ActionsTaken []ActionResult `json:"actions_taken"`
	Message      string         `json:"message,omitempty"`
}
