// Package capability models the infrastructure side effects the resolution
// executor can take. One handler serves each action type; production
// implementations call real infrastructure while the simulated ones are
// deterministic stand-ins.
package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/phoenixops/incident-engine/internal/model"
)

// ErrHandlerNotFound is returned when no handler is registered for an action type
var ErrHandlerNotFound = errors.New("no capability handler registered for action type")

// Result is the outcome of one capability invocation.
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Handler executes one kind of resolution action against infrastructure.
type Handler interface {
	Execute(ctx context.Context, action *model.ResolutionAction) (*Result, error)
}

// Registry maps action types to their handlers.
type Registry struct {
	handlers map[model.ActionType]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.ActionType]Handler)}
}

// Register binds a handler to an action type, replacing any previous binding.
func (r *Registry) Register(t model.ActionType, handler Handler) {
	r.handlers[t] = handler
}

// Lookup returns the handler for an action type.
func (r *Registry) Lookup(t model.ActionType) (Handler, error) {
	handler, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, t)
	}
	return handler, nil
}
