package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity represents the severity level of an incident
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity parses a severity string in any case. It returns an error
// for values outside the closed vocabulary.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityCritical:
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Status represents the lifecycle status of an incident
type Status string

const (
	StatusDetected  Status = "detected"
	StatusAnalyzing Status = "analyzing"
	StatusResolving Status = "resolving"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusEscalated
}

// AgentRole identifies a specialized agent participating in incident response
type AgentRole string

const (
	AgentDiagnostic    AgentRole = "diagnostic"
	AgentResolution    AgentRole = "resolution"
	AgentCommunication AgentRole = "communication"
)

// Incident represents a tracked problem instance with lifecycle state
type Incident struct {
	ID                      string                 `json:"id"`
	Title                   string                 `json:"title"`
	Description             string                 `json:"description"`
	Severity                Severity               `json:"severity"`
	Status                  Status                 `json:"status"`
	Source                  string                 `json:"source"`
	Metrics                 map[string]interface{} `json:"metrics"`
	CreatedAt               time.Time              `json:"created_at"`
	UpdatedAt               time.Time              `json:"updated_at"`
	AssignedAgents          []AgentRole            `json:"assigned_agents"`
	ResolutionActions       []ActionResult         `json:"resolution_actions"`
	EstimatedResolutionTime int                    `json:"estimated_resolution_time,omitempty"`
	ActualResolutionTime    int                    `json:"actual_resolution_time,omitempty"`
}

// HasAgent reports whether the given role is assigned to the incident.
func (i *Incident) HasAgent(role AgentRole) bool {
	for _, a := range i.AssignedAgents {
		if a == role {
			return true
		}
	}
	return false
}

// MetricNumber extracts a numeric metric from the metrics bag. Values stored
// as strings are parsed; missing or non-numeric values yield the zero value
// and ok=false.
func MetricNumber(metrics map[string]interface{}, name string) (float64, bool) {
	v, ok := metrics[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
