package planner

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/model"
)

// DeploymentHistory reports whether a recent deployment exists that could be
// rolled back. Production implementations query the deployment system.
type DeploymentHistory interface {
	RecentDeployment(incident *model.Incident) (id string, previousVersion string, ok bool)
}

// Config carries the infrastructure names actions are parameterized with.
type Config struct {
	ServiceName   string
	ResourceGroup string
	DatabaseName  string
}

// Planner maps a diagnosed root cause and incident metrics into an ordered,
// risk-scored resolution plan. Planning is table driven: a given
// (root cause category, metrics, confidence) tuple always yields the same
// plan shape.
type Planner struct {
	logger      *zap.Logger
	config      Config
	deployments DeploymentHistory
}

// actionDurations is the fixed per-action-type duration estimate in seconds.
var actionDurations = map[model.ActionType]int{
	model.ActionScaleOut:           120,
	model.ActionScaleUp:            180,
	model.ActionRestartService:     60,
	model.ActionClearCache:         30,
	model.ActionOptimizeDatabase:   45,
	model.ActionUpdateConfig:       30,
	model.ActionRollbackDeployment: 300,
	model.ActionCircuitBreaker:     15,
}

// EstimateDuration returns the fixed duration estimate for an action type.
func EstimateDuration(t model.ActionType) int {
	if d, ok := actionDurations[t]; ok {
		return d
	}
	return 60
}

// NewPlanner creates a planner. deployments may be nil, in which case the
// error category never proposes a deployment rollback.
func NewPlanner(config Config, deployments DeploymentHistory, logger *zap.Logger) *Planner {
	return &Planner{
		logger:      logger.Named("planner"),
		config:      config,
		deployments: deployments,
	}
}

// Plan builds a resolution plan for the incident from the diagnosis. The root
// cause text is matched case-insensitively against an ordered category list;
// the first match wins. If no category matches, a conservative generic plan
// is used.
func (p *Planner) Plan(incident *model.Incident, diagnosis *model.Diagnosis) *model.ResolutionPlan {
	rootCause := strings.ToLower(diagnosis.RootCause)

	var actions []model.ResolutionAction
	switch {
	case strings.Contains(rootCause, "cpu"):
		actions = p.planCPU(incident)
	case strings.Contains(rootCause, "memory"):
		actions = p.planMemory(incident)
	case strings.Contains(rootCause, "database"):
		actions = p.planDatabase(incident)
	case strings.Contains(rootCause, "timeout"), strings.Contains(rootCause, "response"):
		actions = p.planPerformance(incident)
	case strings.Contains(rootCause, "error"), strings.Contains(rootCause, "exception"):
		actions = p.planError(incident)
	}

	if len(actions) == 0 {
		actions = p.planGeneric(incident)
	}

	riskLevel := model.RiskLow
	requiresApproval := false
	if diagnosis.Confidence < 0.7 {
		// Low confidence overrides any category-specific risk.
		riskLevel = model.RiskHigh
		requiresApproval = true
	} else if containsDisruptive(actions) {
		riskLevel = model.RiskMedium
		requiresApproval = incident.Severity == model.SeverityCritical
	}

	estimated := 0
	for _, action := range actions {
		estimated += EstimateDuration(action.Type)
	}

	plan := &model.ResolutionPlan{
		IncidentID:        incident.ID,
		Actions:           actions,
		EstimatedDuration: estimated,
		RiskLevel:         riskLevel,
		RequiresApproval:  requiresApproval,
		CreatedAt:         time.Now().UTC(),
	}

	p.logger.Info("Resolution plan created",
		zap.String("incident_id", incident.ID),
		zap.Int("actions", len(plan.Actions)),
		zap.String("risk_level", string(plan.RiskLevel)),
		zap.Bool("requires_approval", plan.RequiresApproval))

	return plan
}

func containsDisruptive(actions []model.ResolutionAction) bool {
	for _, action := range actions {
		if action.Type == model.ActionRollbackDeployment || action.Type == model.ActionRestartService {
			return true
		}
	}
	return false
}

func (p *Planner) newAction(t model.ActionType, description string, params map[string]interface{}) model.ResolutionAction {
	return model.ResolutionAction{
		ID:          uuid.New().String(),
		Type:        t,
		Description: description,
		Parameters:  params,
		Status:      model.ActionStatusPending,
	}
}

func (p *Planner) planCPU(incident *model.Incident) []model.ResolutionAction {
	actions := []model.ResolutionAction{
		p.newAction(model.ActionScaleOut,
			"Scale out application instances to distribute CPU load",
			map[string]interface{}{
				"target_instances": 5,
				"resource_group":   p.config.ResourceGroup,
				"service_name":     p.config.ServiceName,
			}),
	}

	if cpu, ok := model.MetricNumber(incident.Metrics, "cpu_percentage"); ok && cpu > 90 {
		update := p.newAction(model.ActionUpdateConfig,
			"Optimize application configuration for CPU usage",
			map[string]interface{}{
				"config_changes": map[string]interface{}{
					"thread_pool_size":   50,
					"connection_timeout": 30,
					"enable_caching":     true,
				},
			})
		rollback := p.newAction(model.ActionUpdateConfig,
			"Restore previous application configuration",
			map[string]interface{}{"restore_previous": true})
		update.Rollback = &rollback
		actions = append(actions, update)
	}

	return actions
}

func (p *Planner) planMemory(incident *model.Incident) []model.ResolutionAction {
	actions := []model.ResolutionAction{
		p.newAction(model.ActionRestartService,
			"Restart service to clear memory leaks",
			map[string]interface{}{
				"service_name":      p.config.ServiceName,
				"resource_group":    p.config.ResourceGroup,
				"graceful_shutdown": true,
			}),
	}

	if memory, ok := model.MetricNumber(incident.Metrics, "memory_percentage"); ok && memory > 85 {
		actions = append(actions, p.newAction(model.ActionScaleUp,
			"Scale up instance size for more memory",
			map[string]interface{}{
				"new_sku":        "P2v3",
				"resource_group": p.config.ResourceGroup,
			}))
	}

	return actions
}

func (p *Planner) planDatabase(incident *model.Incident) []model.ResolutionAction {
	return []model.ResolutionAction{
		p.newAction(model.ActionOptimizeDatabase,
			"Optimize database connection settings",
			map[string]interface{}{
				"connection_pool_size":      20,
				"connection_timeout":        30,
				"query_timeout":             60,
				"enable_connection_pooling": true,
			}),
		p.newAction(model.ActionClearCache,
			"Clear database query cache",
			map[string]interface{}{
				"cache_type":    "query_cache",
				"database_name": p.config.DatabaseName,
			}),
	}
}

func (p *Planner) planPerformance(incident *model.Incident) []model.ResolutionAction {
	return []model.ResolutionAction{
		p.newAction(model.ActionCircuitBreaker,
			"Enable circuit breaker for failing services",
			map[string]interface{}{
				"failure_threshold": 5,
				"timeout":           60,
				"fallback_enabled":  true,
			}),
		p.newAction(model.ActionScaleOut,
			"Scale out to improve response times",
			map[string]interface{}{
				"target_instances": 3,
				"resource_group":   p.config.ResourceGroup,
				"service_name":     p.config.ServiceName,
			}),
	}
}

func (p *Planner) planError(incident *model.Incident) []model.ResolutionAction {
	if p.deployments != nil {
		if id, previous, ok := p.deployments.RecentDeployment(incident); ok {
			return []model.ResolutionAction{
				p.newAction(model.ActionRollbackDeployment,
					"Rollback to previous stable deployment",
					map[string]interface{}{
						"deployment_id":  id,
						"target_version": previous,
					}),
			}
		}
	}

	return []model.ResolutionAction{
		p.newAction(model.ActionRestartService,
			"Restart service to resolve temporary errors",
			map[string]interface{}{
				"service_name":      p.config.ServiceName,
				"resource_group":    p.config.ResourceGroup,
				"graceful_shutdown": true,
			}),
	}
}

func (p *Planner) planGeneric(incident *model.Incident) []model.ResolutionAction {
	return []model.ResolutionAction{
		p.newAction(model.ActionClearCache,
			"Clear application cache",
			map[string]interface{}{"cache_type": "application_cache"}),
		p.newAction(model.ActionScaleOut,
			"Scale out instances as precautionary measure",
			map[string]interface{}{
				"target_instances": 2,
				"resource_group":   p.config.ResourceGroup,
				"service_name":     p.config.ServiceName,
			}),
	}
}
