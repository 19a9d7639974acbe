package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/storage"
)

// Supervisor runs one lightweight watchdog per active incident. Each watchdog
// polls the persisted record until the incident reaches a terminal status or
// the response timeout elapses, in which case it forces escalation. The
// watchdog never advances an incident forward; it only forces the terminal
// escalated transition.
type Supervisor struct {
	logger       *zap.Logger
	orchestrator *Orchestrator
	store        storage.IncidentStore
	timeout      time.Duration
	pollInterval time.Duration

	mu        sync.Mutex
	watchdogs map[string]context.CancelFunc
}

// NewSupervisor creates a supervisor. pollInterval falls back to 5s when zero.
func NewSupervisor(o *Orchestrator, store storage.IncidentStore, timeout time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		logger:       logger.Named("supervisor"),
		orchestrator: o,
		store:        store,
		timeout:      timeout,
		pollInterval: 5 * time.Second,
		watchdogs:    make(map[string]context.CancelFunc),
	}
}

// Watch starts a watchdog for an incident. Watching an already watched
// incident is a no-op.
func (s *Supervisor) Watch(incidentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.watchdogs[incidentID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.watchdogs[incidentID] = cancel
	go s.run(ctx, incidentID)
}

// Unwatch cancels the watchdog for an incident, if any.
func (s *Supervisor) Unwatch(incidentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.watchdogs[incidentID]; ok {
		cancel()
		delete(s.watchdogs, incidentID)
	}
}

// StopAll cancels every watchdog.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, cancel := range s.watchdogs {
		cancel()
		delete(s.watchdogs, id)
	}
}

func (s *Supervisor) run(ctx context.Context, incidentID string) {
	deadline := time.NewTimer(s.timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer deadline.Stop()
	defer ticker.Stop()
	defer s.Unwatch(incidentID)

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			incident, err := s.store.Get(ctx, incidentID)
			if err != nil {
				s.logger.Error("Failed to poll incident state",
					zap.String("incident_id", incidentID),
					zap.Error(err))
				continue
			}
			if incident.Status.Terminal() {
				s.logger.Debug("Watchdog finished, incident terminal",
					zap.String("incident_id", incidentID),
					zap.String("status", string(incident.Status)))
				return
			}

		case <-deadline.C:
			s.logger.Warn("Response timeout exceeded, forcing escalation",
				zap.String("incident_id", incidentID),
				zap.Duration("timeout", s.timeout))
			if err := s.orchestrator.Escalate(ctx, incidentID, "Response timeout exceeded"); err != nil {
				s.logger.Error("Forced escalation failed",
					zap.String("incident_id", incidentID),
					zap.Error(err))
			}
			return
		}
	}
}
