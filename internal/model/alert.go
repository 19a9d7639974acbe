package model

// Alert is a raw monitoring alert as received from the host's alerting
// pipeline. The orchestrator turns alerts into incidents.
type Alert struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Source      string                 `json:"source"`
	Metrics     map[string]interface{} `json:"metrics"`
}

// Diagnosis is the opaque result of root-cause analysis produced by the
// diagnostic agent. The engine consumes it without interpreting the evidence.
type Diagnosis struct {
	RootCause  string                 `json:"root_cause"`
	Confidence float64                `json:"confidence"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
}

// ApprovalDecision is a human operator's verdict on a resolution plan
type ApprovalDecision string

const (
	ApprovalApprove ApprovalDecision = "approve"
	ApprovalDeny    ApprovalDecision = "deny"
)

// Approval records a human decision on a pending resolution plan.
type Approval struct {
	Decision  ApprovalDecision `json:"decision"`
	Responder string           `json:"responder"`
}
