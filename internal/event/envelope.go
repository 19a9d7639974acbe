package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/phoenixops/incident-engine/internal/model"
)

// Type identifies the kind of message carried by an envelope
type Type string

const (
	TypeAnalysisRequest   Type = "incident_analysis_request"
	TypeDiagnosticResult  Type = "diagnostic_result"
	TypeResolutionRequest Type = "resolution_request"
	TypeResolutionResult  Type = "resolution_result"
	TypeEscalation        Type = "incident_escalation"
	TypeApprovalRequest   Type = "approval_request"
	TypeApprovalResponse  Type = "approval_response"
	TypeStatusUpdate      Type = "status_update"
)

var (
	// ErrMissingIncidentID is returned when an envelope has no incident reference
	ErrMissingIncidentID = errors.New("envelope missing incident_id")

	// ErrMissingPayload is returned when an envelope lacks the payload its type requires
	ErrMissingPayload = errors.New("envelope missing required payload")
)

// Envelope is the sole message exchanged between agents. Producers serialize
// it to JSON; consumers tolerate unknown event types by ignoring them.
// Envelopes are immutable once published.
type Envelope struct {
	EventType  Type   `json:"event_type"`
	IncidentID string `json:"incident_id"`

	// Payload fields, populated per event type.
	IncidentData *model.Incident       `json:"incident_data,omitempty"`
	Diagnosis    *model.Diagnosis      `json:"diagnosis,omitempty"`
	Plan         *model.ResolutionPlan `json:"plan,omitempty"`
	Approval     *model.Approval       `json:"approval,omitempty"`
	Success      *bool                 `json:"success,omitempty"`
	ActionsTaken []model.ActionResult  `json:"actions_taken,omitempty"`
	Reason       string                `json:"reason,omitempty"`
	Message      string                `json:"message,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	SourceAgent string    `json:"source_agent"`
}

// Known reports whether the event type belongs to the engine's vocabulary.
// Unknown types are tolerated for forward compatibility.
func (t Type) Known() bool {
	switch t {
	case TypeAnalysisRequest, TypeDiagnosticResult, TypeResolutionRequest,
		TypeResolutionResult, TypeEscalation, TypeApprovalRequest,
		TypeApprovalResponse, TypeStatusUpdate:
		return true
	}
	return false
}

// Decode parses a wire envelope and validates that the payload required by
// its event type is present. Malformed payloads are rejected at the boundary.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks the per-type payload requirements. Envelopes with unknown
// event types validate successfully so newer producers do not break older
// consumers.
func (e *Envelope) Validate() error {
	if !e.EventType.Known() {
		return nil
	}
	if e.IncidentID == "" {
		return fmt.Errorf("%w (event_type=%s)", ErrMissingIncidentID, e.EventType)
	}

	switch e.EventType {
	case TypeDiagnosticResult:
		if e.Diagnosis == nil {
			return fmt.Errorf("%w: diagnostic_result requires diagnosis", ErrMissingPayload)
		}
		if e.Diagnosis.Confidence < 0 || e.Diagnosis.Confidence > 1 {
			return fmt.Errorf("diagnosis confidence %v out of range [0,1]", e.Diagnosis.Confidence)
		}
	case TypeResolutionRequest:
		if e.Diagnosis == nil {
			return fmt.Errorf("%w: resolution_request requires diagnosis", ErrMissingPayload)
		}
	case TypeResolutionResult:
		if e.Success == nil {
			return fmt.Errorf("%w: resolution_result requires success flag", ErrMissingPayload)
		}
	case TypeEscalation:
		if e.Reason == "" {
			return fmt.Errorf("%w: incident_escalation requires reason", ErrMissingPayload)
		}
	case TypeApprovalRequest:
		if e.Plan == nil {
			return fmt.Errorf("%w: approval_request requires plan", ErrMissingPayload)
		}
	case TypeApprovalResponse:
		if e.Approval == nil {
			return fmt.Errorf("%w: approval_response requires approval", ErrMissingPayload)
		}
	}
	return nil
}
