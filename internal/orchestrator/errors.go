package orchestrator

import "errors"

// ErrIncidentNotFound is returned when an incident id is unknown
var ErrIncidentNotFound = errors.New("incident not found")
